// Package bot orchestrates the pipeline: it classifies an admitted comment, reconstructs
// the conversation, drives the generation engine, and publishes or replies with the result.
package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-github/v72/github"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/octaviuslabs/walter/internal/config"
	"github.com/octaviuslabs/walter/internal/dispatch"
	"github.com/octaviuslabs/walter/internal/gen"
	"github.com/octaviuslabs/walter/internal/gh"
	"github.com/octaviuslabs/walter/internal/history"
	"github.com/octaviuslabs/walter/internal/intent"
	"github.com/octaviuslabs/walter/internal/job"
	"github.com/octaviuslabs/walter/internal/publish"
	"github.com/octaviuslabs/walter/internal/target"
)

// Narrow views of the collaborating services, satisfied by *gh.Client,
// *history.Assembler, *gen.Engine, and *publish.Publisher respectively
type githubService interface {
	GetFile(ctx context.Context, ref target.Reference) (target.FileContent, error)
	PostIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

type historySource interface {
	Assemble(ctx context.Context, owner, repo string, issueNumber int) ([]history.Message, error)
}

type editEngine interface {
	Chat(ctx context.Context, requestID, prompt string, hist []history.Message, dependencies []string, persona gen.Persona) (string, error)
	CreateEditWithChat(ctx context.Context, j job.Job, hist []history.Message) (gen.Edit, error)
	CreateEditWithDiff(ctx context.Context, j job.Job, hist []history.Message) (gen.Edit, error)
}

type prPublisher interface {
	Publish(ctx context.Context, owner, repo string, edits []publish.Edit, issueNumber int) (*github.PullRequest, error)
}

// Bot handles dequeued events end to end
type Bot struct {
	settings   config.Settings
	classifier intent.Classifier
	github     githubService
	histories  historySource
	engine     editEngine
	publisher  prPublisher
}

// New creates a Bot
func New(settings config.Settings, githubClient *gh.Client, histories *history.Assembler, engine *gen.Engine, publisher *publish.Publisher) *Bot {
	return &Bot{
		settings:   settings,
		classifier: intent.NewClassifier(settings.BotName),
		github:     githubClient,
		histories:  histories,
		engine:     engine,
		publisher:  publisher,
	}
}

// HandleIssueComment routes an admitted issue comment by its classified intent: status
// acknowledgments are ignored, approvals execute the discussed work, and anything else is
// answered as a design conversation
func (b *Bot) HandleIssueComment(ctx context.Context, ev dispatch.Event) error {
	ctx, span := otel.Tracer("walter/internal/bot").Start(ctx, "handle_issue_comment")
	defer span.End()

	action := b.classifier.Classify(ev.Comment.Body, ev.Comment.Author)
	span.SetAttributes(
		attribute.String("intent", action.Type.String()),
		attribute.Int("issue", ev.Issue.Number),
	)
	log.Info().
		Str("repo", ev.Repo.FullName).
		Int("issue", ev.Issue.Number).
		Stringer("intent", action.Type).
		Msg("handling issue comment")

	switch action.Type {
	case intent.Status:
		return nil
	case intent.Approve:
		return b.executeApproval(ctx, ev)
	default:
		return b.converse(ctx, ev)
	}
}

// HandleReviewComment is acknowledged but not yet acted on; review threads carry too little
// issue context to derive a job from
func (b *Bot) HandleReviewComment(_ context.Context, ev dispatch.Event) error {
	log.Info().
		Str("repo", ev.Repo.FullName).
		Int("pull", ev.Issue.Number).
		Int64("comment", ev.Comment.ID).
		Msg("review comment received; no action taken")
	return nil
}

// executeApproval turns the issue into jobs, generates an edit per job, and lands them all
// in a single pull request. The PR link is posted back to the issue
func (b *Bot) executeApproval(ctx context.Context, ev dispatch.Event) error {
	hist, err := b.histories.Assemble(ctx, ev.Repo.Owner, ev.Repo.Name, ev.Issue.Number)
	if err != nil {
		return err
	}

	jobs := b.deriveJobs(ev.Comment.Body, ev.Issue.Body)
	if len(jobs) == 0 {
		return b.reply(ctx, ev, "I couldn't find a file to work on. Link the GitHub file you want changed and try again.")
	}

	edits := make([]publish.Edit, 0, len(jobs))
	for _, j := range jobs {
		edit, err := b.createEdit(ctx, j, hist)
		if err != nil {
			if errors.Is(err, gen.ErrNoTarget) {
				continue
			}
			return err
		}
		edits = append(edits, publish.Edit{
			Path: edit.Target.Path(),
			Body: edit.Body,
		})
	}
	if len(edits) == 0 {
		return b.reply(ctx, ev, "I couldn't find a file to work on. Link the GitHub file you want changed and try again.")
	}

	pr, err := b.publisher.Publish(ctx, ev.Repo.Owner, ev.Repo.Name, edits, ev.Issue.Number)
	if err != nil {
		return err
	}

	return b.reply(ctx, ev, fmt.Sprintf("Done! I've opened %s with the changes.", pr.GetHTMLURL()))
}

// deriveJobs extracts jobs from the approving comment, falling back to the issue body when
// the comment references no files. Within each source, structured "!in" statements win over
// free text
func (b *Bot) deriveJobs(commentBody, issueBody string) []job.Job {
	for _, text := range []string{commentBody, issueBody} {
		if jobs := job.ParseComment(text); len(jobs) > 0 {
			return jobs
		}
		if free := job.ParseFreeText(text); len(free.Targets) > 0 {
			return []job.Job{free}
		}
	}
	return nil
}

func (b *Bot) createEdit(ctx context.Context, j job.Job, hist []history.Message) (gen.Edit, error) {
	if b.settings.EditMode == config.EditModeDiff {
		return b.engine.CreateEditWithDiff(ctx, j, hist)
	}
	return b.engine.CreateEditWithChat(ctx, j, hist)
}

// converse answers a design comment: referenced files become dependency context, the
// conversation so far becomes history, and the model's reply is posted to the issue
func (b *Bot) converse(ctx context.Context, ev dispatch.Event) error {
	hist, err := b.histories.Assemble(ctx, ev.Repo.Owner, ev.Repo.Name, ev.Issue.Number)
	if err != nil {
		return err
	}

	refs := target.ExtractURLs(ev.Comment.Body)
	if len(refs) == 0 {
		refs = target.ExtractURLs(ev.Issue.Body)
	}

	var deps []string
	if len(refs) > 0 {
		fc, err := b.github.GetFile(ctx, refs[0])
		if err != nil {
			return fmt.Errorf("failed to fetch referenced file: %w", err)
		}
		deps = append(deps, fileContext(fc))
	}

	response, err := b.engine.Chat(ctx, uuid.NewString(), ev.Comment.Body, hist, deps, gen.PersonaDesign)
	if err != nil {
		return err
	}

	return b.reply(ctx, ev, response)
}

func (b *Bot) reply(ctx context.Context, ev dispatch.Event, body string) error {
	return b.github.PostIssueComment(ctx, ev.Repo.Owner, ev.Repo.Name, ev.Issue.Number, body)
}

// fileContext renders a fetched file as a dependency turn, narrowing to the referenced line
// range when one is present
func fileContext(fc target.FileContent) string {
	body := fc.Body
	if fc.Focus != "" {
		body = fc.Focus
	}
	return fmt.Sprintf("Contents of '%s':\n```\n%s\n```", fc.Ref.Path(), body)
}
