// Package history reconstructs the conversation on an issue as an ordered sequence of
// attributed turns suitable for handing to the model.
package history

import (
	"context"
	"fmt"

	"github.com/octaviuslabs/walter/internal/gh"
	"github.com/octaviuslabs/walter/internal/intent"
)

// Role attributes a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one attributed turn in the reconstructed issue conversation
type Message struct {
	Role    Role
	Content string
	// User is the GitHub login that authored the turn; empty for synthetic turns
	User string
}

// IssueFetcher provides the read-only issue data the assembler needs. *gh.Client satisfies
// this
type IssueFetcher interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (gh.Issue, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]gh.Comment, error)
}

// Assembler builds conversation histories from issues and their comments
type Assembler struct {
	fetcher    IssueFetcher
	classifier intent.Classifier
	botName    string
}

// NewAssembler creates an Assembler. Turns authored by botName are attributed to the
// assistant role, and the bot's own status acknowledgments are excluded entirely
func NewAssembler(fetcher IssueFetcher, classifier intent.Classifier, botName string) *Assembler {
	return &Assembler{
		fetcher:    fetcher,
		classifier: classifier,
		botName:    botName,
	}
}

// Assemble returns the conversation on an issue, oldest first, with the issue body as turn
// zero. Status acknowledgments posted by the bot are filtered out so the model never sees
// its own scaffolding as conversation content. Assemble is read-only: calling it twice
// before any new comment is posted yields the same sequence
func (a *Assembler) Assemble(ctx context.Context, owner, repo string, issueNumber int) ([]Message, error) {
	issue, err := a.fetcher.GetIssue(ctx, owner, repo, issueNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue: %w", err)
	}

	comments, err := a.fetcher.ListIssueComments(ctx, owner, repo, issueNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue comments: %w", err)
	}

	messages := []Message{{
		Role:    a.roleFor(issue.Author),
		Content: issue.Body,
		User:    issue.Author,
	}}

	for _, comment := range comments {
		if a.classifier.Classify(comment.Body, comment.Author).Type == intent.Status {
			continue
		}
		messages = append(messages, Message{
			Role:    a.roleFor(comment.Author),
			Content: comment.Body,
			User:    comment.Author,
		})
	}

	return messages, nil
}

func (a *Assembler) roleFor(author string) Role {
	if author == a.botName {
		return RoleAssistant
	}
	return RoleUser
}
