package bot

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-github/v72/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octaviuslabs/walter/internal/config"
	"github.com/octaviuslabs/walter/internal/dispatch"
	"github.com/octaviuslabs/walter/internal/gen"
	"github.com/octaviuslabs/walter/internal/history"
	"github.com/octaviuslabs/walter/internal/intent"
	"github.com/octaviuslabs/walter/internal/job"
	"github.com/octaviuslabs/walter/internal/publish"
	"github.com/octaviuslabs/walter/internal/target"
)

type fakeGithub struct {
	files     map[string]string
	fileCalls []target.Reference
	posts     []string
}

func (f *fakeGithub) GetFile(_ context.Context, ref target.Reference) (target.FileContent, error) {
	f.fileCalls = append(f.fileCalls, ref)
	body, ok := f.files[ref.Path()]
	if !ok {
		return target.FileContent{}, fmt.Errorf("no such file: %s", ref.Path())
	}
	return target.FileContent{Ref: ref, Body: body}, nil
}

func (f *fakeGithub) PostIssueComment(_ context.Context, _, _ string, _ int, body string) error {
	f.posts = append(f.posts, body)
	return nil
}

type fakeHistories struct {
	messages []history.Message
	calls    int
}

func (f *fakeHistories) Assemble(_ context.Context, _, _ string, _ int) ([]history.Message, error) {
	f.calls++
	return f.messages, nil
}

type fakeEngine struct {
	chatCalls    int
	chatDeps     []string
	chatPersona  gen.Persona
	chatResponse string

	editCalls int
	diffCalls int
	editErr   error
}

func (f *fakeEngine) Chat(_ context.Context, _, _ string, _ []history.Message, deps []string, persona gen.Persona) (string, error) {
	f.chatCalls++
	f.chatDeps = deps
	f.chatPersona = persona
	return f.chatResponse, nil
}

func (f *fakeEngine) CreateEditWithChat(_ context.Context, j job.Job, _ []history.Message) (gen.Edit, error) {
	f.editCalls++
	if f.editErr != nil {
		return gen.Edit{}, f.editErr
	}
	return gen.Edit{Target: j.Targets[0], Original: "old body", Body: "new body"}, nil
}

func (f *fakeEngine) CreateEditWithDiff(_ context.Context, j job.Job, _ []history.Message) (gen.Edit, error) {
	f.diffCalls++
	if f.editErr != nil {
		return gen.Edit{}, f.editErr
	}
	return gen.Edit{Target: j.Targets[0], Original: "old body", Body: "new body"}, nil
}

type publishCall struct {
	owner, repo string
	edits       []publish.Edit
	issueNumber int
}

type fakePublisher struct {
	calls []publishCall
}

func (f *fakePublisher) Publish(_ context.Context, owner, repo string, edits []publish.Edit, issueNumber int) (*github.PullRequest, error) {
	f.calls = append(f.calls, publishCall{owner: owner, repo: repo, edits: edits, issueNumber: issueNumber})
	return &github.PullRequest{
		Number:  github.Ptr(42),
		HTMLURL: github.Ptr("https://github.com/octaviuslabs/walter/pull/42"),
	}, nil
}

type fixture struct {
	bot       *Bot
	github    *fakeGithub
	histories *fakeHistories
	engine    *fakeEngine
	publisher *fakePublisher
}

func newFixture(editMode string) *fixture {
	f := &fixture{
		github:    &fakeGithub{files: map[string]string{}},
		histories: &fakeHistories{},
		engine:    &fakeEngine{chatResponse: "here is a design"},
		publisher: &fakePublisher{},
	}
	settings := config.Settings{BotName: "walter-bot", EditMode: editMode}
	f.bot = &Bot{
		settings:   settings,
		classifier: intent.NewClassifier(settings.BotName),
		github:     f.github,
		histories:  f.histories,
		engine:     f.engine,
		publisher:  f.publisher,
	}
	return f
}

func event(issueBody, commentBody, commentAuthor string) dispatch.Event {
	return dispatch.Event{
		DeliveryID: "delivery-1",
		Key:        dispatch.KeyIssueComment,
		Repo:       dispatch.Repo{Owner: "octaviuslabs", Name: "walter", FullName: "octaviuslabs/walter"},
		Issue:      dispatch.Issue{Number: 7, Body: issueBody, Author: "jsfour"},
		Comment:    dispatch.Comment{ID: 1, Body: commentBody, Author: commentAuthor},
	}
}

func TestHandleIssueComment_StatusIsIgnored(t *testing.T) {
	f := newFixture(config.EditModeChat)

	err := f.bot.HandleIssueComment(context.Background(), event("body", "> hi \n\nQueued for processing...", "walter-bot"))
	require.NoError(t, err)

	assert.Zero(t, f.histories.calls)
	assert.Zero(t, f.engine.chatCalls)
	assert.Empty(t, f.github.posts)
}

func TestHandleIssueComment_ApprovalPublishesOnePR(t *testing.T) {
	f := newFixture(config.EditModeChat)

	issueBody := "!in https://github.com/octaviuslabs/walter/blob/main/src/api.go add input validation"
	err := f.bot.HandleIssueComment(context.Background(), event(issueBody, "@walter-bot APPROVED", "jsfour"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.engine.editCalls, "one model-backed edit per job")
	require.Len(t, f.publisher.calls, 1, "exactly one publish per approval")

	call := f.publisher.calls[0]
	assert.Equal(t, "octaviuslabs", call.owner)
	assert.Equal(t, "walter", call.repo)
	assert.Equal(t, 7, call.issueNumber)
	require.Len(t, call.edits, 1)
	assert.Equal(t, "src/api.go", call.edits[0].Path)
	assert.Equal(t, "new body", call.edits[0].Body)

	require.Len(t, f.github.posts, 1)
	assert.Contains(t, f.github.posts[0], "https://github.com/octaviuslabs/walter/pull/42")
}

func TestHandleIssueComment_ApprovalFromFreeTextIssue(t *testing.T) {
	f := newFixture(config.EditModeChat)

	issueBody := "Please clean up the handler in https://github.com/octaviuslabs/walter/blob/main/src/api.go, it has grown too large."
	err := f.bot.HandleIssueComment(context.Background(), event(issueBody, "@walter-bot APPROVED", "jsfour"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.engine.editCalls)
	require.Len(t, f.publisher.calls, 1)
	assert.Equal(t, "src/api.go", f.publisher.calls[0].edits[0].Path)
}

func TestHandleIssueComment_ApprovalWithURLInComment(t *testing.T) {
	f := newFixture(config.EditModeChat)

	comment := "@walter-bot APPROVED https://github.com/octaviuslabs/walter/blob/main/src/api.go"
	err := f.bot.HandleIssueComment(context.Background(), event("no links here", comment, "jsfour"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.engine.editCalls)
	require.Len(t, f.publisher.calls, 1)
	require.Len(t, f.publisher.calls[0].edits, 1)
	assert.Equal(t, "src/api.go", f.publisher.calls[0].edits[0].Path)
}

func TestHandleIssueComment_ApprovalCommentTargetsWinOverIssue(t *testing.T) {
	f := newFixture(config.EditModeChat)

	issueBody := "!in https://github.com/octaviuslabs/walter/blob/main/src/old.go rework this"
	comment := "@walter-bot APPROVED, but do it in https://github.com/octaviuslabs/walter/blob/main/src/new.go instead"
	err := f.bot.HandleIssueComment(context.Background(), event(issueBody, comment, "jsfour"))
	require.NoError(t, err)

	require.Len(t, f.publisher.calls, 1)
	require.Len(t, f.publisher.calls[0].edits, 1)
	assert.Equal(t, "src/new.go", f.publisher.calls[0].edits[0].Path)
}

func TestHandleIssueComment_ApprovalWithoutTargets(t *testing.T) {
	f := newFixture(config.EditModeChat)

	err := f.bot.HandleIssueComment(context.Background(), event("no links here", "@walter-bot APPROVED", "jsfour"))
	require.NoError(t, err)

	assert.Zero(t, f.engine.editCalls)
	assert.Empty(t, f.publisher.calls)
	require.Len(t, f.github.posts, 1)
	assert.Contains(t, f.github.posts[0], "couldn't find a file")
}

func TestHandleIssueComment_ApprovalUsesDiffMode(t *testing.T) {
	f := newFixture(config.EditModeDiff)

	issueBody := "!in https://github.com/octaviuslabs/walter/blob/main/src/api.go fix the bug"
	err := f.bot.HandleIssueComment(context.Background(), event(issueBody, "@walter-bot APPROVED", "jsfour"))
	require.NoError(t, err)

	assert.Zero(t, f.engine.editCalls)
	assert.Equal(t, 1, f.engine.diffCalls)
}

func TestHandleIssueComment_DesignRepliesWithModelResponse(t *testing.T) {
	f := newFixture(config.EditModeChat)
	f.github.files["src/api.go"] = "package api\n"

	comment := "What do you think about https://github.com/octaviuslabs/walter/blob/main/src/api.go?"
	err := f.bot.HandleIssueComment(context.Background(), event("the issue", comment, "jsfour"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.engine.chatCalls)
	assert.Equal(t, gen.PersonaDesign, f.engine.chatPersona)
	require.Len(t, f.engine.chatDeps, 1)
	assert.Contains(t, f.engine.chatDeps[0], "src/api.go")
	assert.Contains(t, f.engine.chatDeps[0], "package api")

	require.Len(t, f.github.posts, 1)
	assert.Equal(t, "here is a design", f.github.posts[0])
}

func TestHandleIssueComment_DesignFallsBackToIssueURLs(t *testing.T) {
	f := newFixture(config.EditModeChat)
	f.github.files["src/api.go"] = "package api\n"

	issueBody := "Refactor https://github.com/octaviuslabs/walter/blob/main/src/api.go"
	err := f.bot.HandleIssueComment(context.Background(), event(issueBody, "how should we start?", "jsfour"))
	require.NoError(t, err)

	require.Len(t, f.github.fileCalls, 1)
	assert.Equal(t, "src/api.go", f.github.fileCalls[0].Path())
}

func TestHandleIssueComment_DesignWithoutReferences(t *testing.T) {
	f := newFixture(config.EditModeChat)

	err := f.bot.HandleIssueComment(context.Background(), event("the issue", "any thoughts?", "jsfour"))
	require.NoError(t, err)

	assert.Empty(t, f.github.fileCalls)
	assert.Equal(t, 1, f.engine.chatCalls)
	assert.Empty(t, f.engine.chatDeps)
	require.Len(t, f.github.posts, 1)
}

func TestHandleReviewComment_LogsOnly(t *testing.T) {
	f := newFixture(config.EditModeChat)

	ev := event("body", "nit: rename this", "jsfour")
	ev.Key = dispatch.KeyReviewComment

	err := f.bot.HandleReviewComment(context.Background(), ev)
	require.NoError(t, err)

	assert.Zero(t, f.engine.chatCalls)
	assert.Empty(t, f.github.posts)
}
