// Package dispatch serializes webhook events through a single worker so that comments on
// the same repository are handled strictly in arrival order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/octaviuslabs/walter/internal/gh"
	"github.com/octaviuslabs/walter/internal/intent"
)

// Routing keys in "{eventType}.{action}" form. Events with any other key are dropped
const (
	KeyIssueComment  = "issue_comment.created"
	KeyReviewComment = "pull_request_review_comment.created"
)

const defaultMaxAttempts = 3

// Repo identifies the repository an event belongs to
type Repo struct {
	Owner    string
	Name     string
	FullName string
}

// Issue is the issue (or pull request) a comment was posted on
type Issue struct {
	Number int
	Body   string
	Author string
	Labels []string
}

// Comment is the comment that triggered the event
type Comment struct {
	ID     int64
	Body   string
	Author string
}

// Event is a routed webhook delivery. Review comment events carry the pull request
// number in Issue.Number
type Event struct {
	DeliveryID string
	Key        string
	Repo       Repo
	Issue      Issue
	Comment    Comment
}

// Handler processes dequeued events. Exactly one of the methods is invoked per event,
// chosen by the routing key
type Handler interface {
	HandleIssueComment(ctx context.Context, ev Event) error
	HandleReviewComment(ctx context.Context, ev Event) error
}

type commenter interface {
	PostIssueComment(ctx context.Context, owner, repo string, number int, body string) error
}

// Queue buffers events and processes them one at a time. Enqueue is the only producer
// entry point; Run is the only consumer
type Queue struct {
	events   chan Event
	handler  Handler
	comments commenter

	maxAttempts int
	// backoff returns the delay before retry number attempt+1; replaceable in tests
	backoff func(attempt int) time.Duration
}

// NewQueue creates a Queue with the given buffer size
func NewQueue(handler Handler, comments commenter, size int) *Queue {
	return &Queue{
		events:      make(chan Event, size),
		handler:     handler,
		comments:    comments,
		maxAttempts: defaultMaxAttempts,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

// Enqueue adds an event to the queue, blocking if the buffer is full. Events with an
// unknown routing key are dropped
func (q *Queue) Enqueue(ev Event) {
	switch ev.Key {
	case KeyIssueComment, KeyReviewComment:
		q.events <- ev
	default:
		log.Debug().Str("key", ev.Key).Str("delivery", ev.DeliveryID).Msg("dropping event with unhandled routing key")
	}
}

// Close stops the queue accepting new events. Run drains what is already buffered and
// then returns
func (q *Queue) Close() {
	close(q.events)
}

// Run consumes events until the queue is closed and drained or ctx is cancelled. An
// event's processing completes fully before the next event is dequeued
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q.events:
			if !ok {
				return
			}
			q.process(ctx, ev)
		}
	}
}

func (q *Queue) process(ctx context.Context, ev Event) {
	ctx, span := otel.Tracer("walter/internal/dispatch").Start(ctx, "process_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("delivery.id", ev.DeliveryID),
		attribute.String("event.key", ev.Key),
		attribute.String("repo", ev.Repo.FullName),
	)

	q.acknowledge(ctx, ev)

	var err error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		err = q.handle(ctx, ev)
		if err == nil {
			return
		}
		if !errors.Is(err, gh.ErrTransient) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("delivery", ev.DeliveryID).Msg("transient failure handling event")
		if attempt < q.maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.backoff(attempt)):
			}
		}
	}

	log.Error().Err(err).Str("delivery", ev.DeliveryID).Msg("giving up on event")
	q.reportFailure(ctx, ev, err)
}

func (q *Queue) handle(ctx context.Context, ev Event) error {
	switch ev.Key {
	case KeyIssueComment:
		return q.handler.HandleIssueComment(ctx, ev)
	case KeyReviewComment:
		return q.handler.HandleReviewComment(ctx, ev)
	default:
		return nil
	}
}

// acknowledge tells the comment author that work has started. Failures are logged and
// ignored; acknowledgment is best-effort
func (q *Queue) acknowledge(ctx context.Context, ev Event) {
	if ev.Key != KeyIssueComment {
		return
	}
	body := fmt.Sprintf("> %s \n\n%s", ev.Comment.Body, intent.StatusProcessing)
	if err := q.comments.PostIssueComment(ctx, ev.Repo.Owner, ev.Repo.Name, ev.Issue.Number, body); err != nil {
		log.Warn().Err(err).Str("delivery", ev.DeliveryID).Msg("failed to post processing acknowledgment")
	}
}

func (q *Queue) reportFailure(ctx context.Context, ev Event, cause error) {
	body := fmt.Sprintf("I ran into an error while working on this and had to stop: %v", cause)
	if err := q.comments.PostIssueComment(ctx, ev.Repo.Owner, ev.Repo.Name, ev.Issue.Number, body); err != nil {
		log.Error().Err(err).Str("delivery", ev.DeliveryID).Msg("failed to post failure comment")
	}
}
