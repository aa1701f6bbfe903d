// Package gen builds prompts, invokes the language model, and turns its free-form responses
// into concrete file edits.
package gen

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/octaviuslabs/walter/internal/history"
)

var (
	// ErrEmptyResponse indicates the model returned no usable text. Fatal to the job
	ErrEmptyResponse = errors.New("empty model response")
	// ErrNoCodeBlock indicates a code-generation response contained no fenced code block.
	// Fatal to the job; never degraded to an empty edit
	ErrNoCodeBlock = errors.New("no code block in model response")
	// ErrNoTarget indicates a job resolved to zero target files. Fatal to the job, detected
	// before any model call is made
	ErrNoTarget = errors.New("job has no target files")
)

// Persona selects the system-prompt variant the model operates under
type Persona int

const (
	PersonaCode Persona = iota
	PersonaDiff
	PersonaDesign
)

func (p Persona) String() string {
	switch p {
	case PersonaCode:
		return "code"
	case PersonaDiff:
		return "diff"
	case PersonaDesign:
		return "design"
	}
	return fmt.Sprintf("persona(%d)", int(p))
}

//go:embed prompts/*.md
var promptFS embed.FS

// systemPrompt returns the embedded system prompt for a persona
func systemPrompt(p Persona) (string, error) {
	var name string
	switch p {
	case PersonaCode:
		name = "prompts/code-generator.md"
	case PersonaDiff:
		name = "prompts/diff-generator.md"
	case PersonaDesign:
		name = "prompts/design-assistant.md"
	default:
		return "", fmt.Errorf("unknown persona: %v", p)
	}

	b, err := promptFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt %s: %w", name, err)
	}
	return string(b), nil
}

// messageSender abstracts the single outbound model call so tests can fake the remote
type messageSender interface {
	SendMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// anthropicSender sends messages through the Anthropic API
type anthropicSender struct {
	client anthropic.Client
}

func (s anthropicSender) SendMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	msg, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("message request failed: %w", err)
	}
	return msg, nil
}

// Engine drives the language model: one outbound call per Chat invocation, with the raw
// interaction recorded to the audit store when one is configured
type Engine struct {
	sender          messageSender
	files           FileFetcher
	model           anthropic.Model
	maxOutputTokens int64
	audit           InteractionStore // May be nil
}

const defaultMaxOutputTokens = 4000

// NewEngine creates an Engine backed by the Anthropic API. audit may be nil to disable
// interaction recording
func NewEngine(client anthropic.Client, model anthropic.Model, files FileFetcher, audit InteractionStore) *Engine {
	return &Engine{
		sender:          anthropicSender{client: client},
		files:           files,
		model:           model,
		maxOutputTokens: defaultMaxOutputTokens,
		audit:           audit,
	}
}

// Chat sends one request to the model and returns the response text. The full prompt is
// [persona system message] + [dependency context turns] + [conversation history] + [the new
// instruction]. Sampling parameters are fixed; exactly one candidate is requested
func (e *Engine) Chat(
	ctx context.Context,
	requestID string,
	prompt string,
	hist []history.Message,
	dependencies []string,
	persona Persona,
) (string, error) {
	ctx, span := otel.Tracer("walter/internal/gen").Start(ctx, "gen.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("persona", persona.String()),
		attribute.String("model", string(e.model)),
	)

	system, err := systemPrompt(persona)
	if err != nil {
		return "", err
	}

	turns := make([]history.Message, 0, len(dependencies)+len(hist)+1)
	for _, dep := range dependencies {
		turns = append(turns, history.Message{Role: history.RoleUser, Content: dep})
	}
	turns = append(turns, hist...)
	turns = append(turns, history.Message{Role: history.RoleUser, Content: prompt})

	params := anthropic.MessageNewParams{
		Model:       e.model,
		MaxTokens:   e.maxOutputTokens,
		Temperature: anthropic.Float(0.5),
		TopP:        anthropic.Float(1),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: toMessageParams(turns),
	}

	started := time.Now()
	log.Info().Str("request_id", requestID).Stringer("persona", persona).Msg("sending request to chat")

	response, err := e.sender.SendMessage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}

	log.Info().Str("request_id", requestID).Dur("elapsed", time.Since(started)).Msg("model response received")

	out := responseText(response)

	// Audit recording is a side channel: failures are logged, never propagated
	if e.audit != nil {
		if err := e.audit.Record(requestID, prompt, hist, out); err != nil {
			log.Error().Err(err).Str("request_id", requestID).Msg("failed to record interaction")
		}
	}

	if out == "" {
		return "", fmt.Errorf("%w: request %s", ErrEmptyResponse, requestID)
	}

	return out, nil
}

// toMessageParams converts conversation turns to API message params, coalescing consecutive
// same-role turns: the messages API requires alternating roles, and requires the first turn
// to be a user turn, so an assistant-opened conversation gets a synthetic user preamble
func toMessageParams(turns []history.Message) []anthropic.MessageParam {
	var params []anthropic.MessageParam
	var pending []string
	var pendingRole history.Role

	if len(turns) > 0 && turns[0].Role == history.RoleAssistant {
		params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock("Continuing an existing conversation. The previous turns follow.")))
	}

	flush := func() {
		if len(pending) == 0 {
			return
		}
		content := strings.Join(pending, "\n\n")
		if pendingRole == history.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		} else {
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
		pending = nil
	}

	for _, turn := range turns {
		role := turn.Role
		if role != history.RoleAssistant {
			role = history.RoleUser
		}
		if role != pendingRole {
			flush()
			pendingRole = role
		}
		pending = append(pending, turn.Content)
	}
	flush()

	return params
}

// responseText concatenates the text blocks of a model response
func responseText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
