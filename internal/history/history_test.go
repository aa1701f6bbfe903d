package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octaviuslabs/walter/internal/gh"
	"github.com/octaviuslabs/walter/internal/intent"
)

type fakeFetcher struct {
	issue    gh.Issue
	comments []gh.Comment
}

func (f *fakeFetcher) GetIssue(_ context.Context, _, _ string, _ int) (gh.Issue, error) {
	return f.issue, nil
}

func (f *fakeFetcher) ListIssueComments(_ context.Context, _, _ string, _ int) ([]gh.Comment, error) {
	return f.comments, nil
}

func newTestAssembler(fetcher IssueFetcher) *Assembler {
	return NewAssembler(fetcher, intent.NewClassifier("walter"), "walter")
}

func TestAssemble_IssueBodyIsTurnZero(t *testing.T) {
	fetcher := &fakeFetcher{
		issue: gh.Issue{Number: 7, Body: "please add a retry helper", Author: "jsfour"},
	}

	messages, err := newTestAssembler(fetcher).Assemble(context.Background(), "a", "b", 7)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "please add a retry helper", messages[0].Content)
	assert.Equal(t, "jsfour", messages[0].User)
}

func TestAssemble_RoleAttribution(t *testing.T) {
	fetcher := &fakeFetcher{
		issue: gh.Issue{Number: 7, Body: "issue body", Author: "jsfour"},
		comments: []gh.Comment{
			{ID: 1, Body: "here is my proposal", Author: "walter"},
			{ID: 2, Body: "looks reasonable", Author: "adalovelace"},
		},
	}

	messages, err := newTestAssembler(fetcher).Assemble(context.Background(), "a", "b", 7)
	require.NoError(t, err)

	require.Len(t, messages, 3)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, RoleUser, messages[2].Role)
}

func TestAssemble_FiltersBotStatusTurns(t *testing.T) {
	fetcher := &fakeFetcher{
		issue: gh.Issue{Number: 7, Body: "issue body", Author: "jsfour"},
		comments: []gh.Comment{
			{ID: 1, Body: "please change the parser", Author: "jsfour"},
			{ID: 2, Body: "> please change the parser \n\nQueued for processing...", Author: "walter"},
			{ID: 3, Body: "I suggest splitting the lexer from the interpreter.", Author: "walter"},
		},
	}

	messages, err := newTestAssembler(fetcher).Assemble(context.Background(), "a", "b", 7)
	require.NoError(t, err)

	// Issue body + user turn + bot design response; the status acknowledgment is dropped
	require.Len(t, messages, 3)
	assert.Equal(t, "issue body", messages[0].Content)
	assert.Equal(t, "please change the parser", messages[1].Content)
	assert.Equal(t, RoleAssistant, messages[2].Role)
	assert.Equal(t, "I suggest splitting the lexer from the interpreter.", messages[2].Content)
}

func TestAssemble_StatusTextFromUserIsKept(t *testing.T) {
	fetcher := &fakeFetcher{
		issue: gh.Issue{Number: 7, Body: "issue body", Author: "jsfour"},
		comments: []gh.Comment{
			{ID: 1, Body: "Queued for processing...", Author: "jsfour"},
		},
	}

	messages, err := newTestAssembler(fetcher).Assemble(context.Background(), "a", "b", 7)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[1].Role)
}

func TestAssemble_Deterministic(t *testing.T) {
	fetcher := &fakeFetcher{
		issue: gh.Issue{Number: 7, Body: "issue body", Author: "jsfour"},
		comments: []gh.Comment{
			{ID: 1, Body: "first", Author: "jsfour"},
			{ID: 2, Body: "second", Author: "walter"},
		},
	}

	asm := newTestAssembler(fetcher)
	first, err := asm.Assemble(context.Background(), "a", "b", 7)
	require.NoError(t, err)
	second, err := asm.Assemble(context.Background(), "a", "b", 7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
