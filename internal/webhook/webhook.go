// Package webhook receives GitHub webhook deliveries, verifies their signatures, applies
// the admission rules, and enqueues accepted events for dispatch.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v72/github"
	"github.com/rs/zerolog/log"

	"github.com/octaviuslabs/walter/internal/config"
	"github.com/octaviuslabs/walter/internal/dispatch"
	"github.com/octaviuslabs/walter/internal/intent"
)

type queue interface {
	Enqueue(ev dispatch.Event)
}

type commenter interface {
	PostIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

// Handler is the HTTP endpoint GitHub delivers webhooks to
type Handler struct {
	secret   []byte
	settings config.Settings
	queue    queue
	comments commenter
}

// NewHandler creates the webhook endpoint
func NewHandler(settings config.Settings, q queue, comments commenter) *Handler {
	return &Handler{
		secret:   []byte(settings.GithubWebhookSecret),
		settings: settings,
		queue:    q,
		comments: comments,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		log.Warn().Err(err).Msg("rejecting webhook with invalid signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		log.Warn().Err(err).Str("type", github.WebHookType(r)).Msg("rejecting unparseable webhook payload")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	deliveryID := github.DeliveryID(r)

	switch ev := event.(type) {
	case *github.IssueCommentEvent:
		h.handleIssueComment(r.Context(), deliveryID, ev)
	case *github.PullRequestReviewCommentEvent:
		h.handleReviewComment(r.Context(), deliveryID, ev)
	default:
		log.Debug().Str("type", github.WebHookType(r)).Msg("ignoring webhook event type")
	}

	// Always accept what we could parse; admission drops are not delivery failures
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleIssueComment(ctx context.Context, deliveryID string, ev *github.IssueCommentEvent) {
	if ev.GetAction() != "created" {
		return
	}

	repo := dispatch.Repo{
		Owner:    ev.GetRepo().GetOwner().GetLogin(),
		Name:     ev.GetRepo().GetName(),
		FullName: ev.GetRepo().GetFullName(),
	}
	labels := labelNames(ev.GetIssue().Labels)
	author := ev.GetComment().GetUser().GetLogin()
	body := ev.GetComment().GetBody()

	if !h.admit(repo.FullName, author, labels, body) {
		log.Debug().Str("delivery", deliveryID).Str("repo", repo.FullName).Str("author", author).Msg("dropping issue comment")
		return
	}

	issueNumber := ev.GetIssue().GetNumber()
	ack := fmt.Sprintf("> %s \n\n%s", body, intent.StatusQueued)
	if err := h.comments.PostIssueComment(ctx, repo.Owner, repo.Name, issueNumber, ack); err != nil {
		log.Warn().Err(err).Str("delivery", deliveryID).Msg("failed to post queued acknowledgment")
	}

	h.queue.Enqueue(dispatch.Event{
		DeliveryID: deliveryID,
		Key:        dispatch.KeyIssueComment,
		Repo:       repo,
		Issue: dispatch.Issue{
			Number: issueNumber,
			Body:   ev.GetIssue().GetBody(),
			Author: ev.GetIssue().GetUser().GetLogin(),
			Labels: labels,
		},
		Comment: dispatch.Comment{
			ID:     ev.GetComment().GetID(),
			Body:   body,
			Author: author,
		},
	})
}

func (h *Handler) handleReviewComment(_ context.Context, deliveryID string, ev *github.PullRequestReviewCommentEvent) {
	if ev.GetAction() != "created" {
		return
	}

	repo := dispatch.Repo{
		Owner:    ev.GetRepo().GetOwner().GetLogin(),
		Name:     ev.GetRepo().GetName(),
		FullName: ev.GetRepo().GetFullName(),
	}
	labels := labelNames(ev.GetPullRequest().Labels)
	author := ev.GetComment().GetUser().GetLogin()
	body := ev.GetComment().GetBody()

	if !h.admit(repo.FullName, author, labels, body) {
		log.Debug().Str("delivery", deliveryID).Str("repo", repo.FullName).Str("author", author).Msg("dropping review comment")
		return
	}

	h.queue.Enqueue(dispatch.Event{
		DeliveryID: deliveryID,
		Key:        dispatch.KeyReviewComment,
		Repo:       repo,
		Issue: dispatch.Issue{
			Number: ev.GetPullRequest().GetNumber(),
			Body:   ev.GetPullRequest().GetBody(),
			Author: ev.GetPullRequest().GetUser().GetLogin(),
			Labels: labels,
		},
		Comment: dispatch.Comment{
			ID:     ev.GetComment().GetID(),
			Body:   body,
			Author: author,
		},
	})
}

// admit applies the admission rules: never react to the bot's own comments, the repository
// or the author must be on an allow-list, and the conversation must be marked for the bot
// by the task label or an @-mention
func (h *Handler) admit(repoFullName, author string, labels []string, commentBody string) bool {
	if strings.EqualFold(author, h.settings.BotName) {
		return false
	}
	if !h.settings.RepoSupported(repoFullName) && !h.settings.UserSupported(author) {
		return false
	}
	return hasLabel(labels, h.settings.BotTaskLabel) || mentions(commentBody, h.settings.BotName)
}

func hasLabel(labels []string, name string) bool {
	for _, label := range labels {
		if label == name {
			return true
		}
	}
	return false
}

func mentions(body, botName string) bool {
	return strings.Contains(strings.ToLower(body), "@"+strings.ToLower(botName))
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.GetName())
	}
	return names
}
