package gen

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/octaviuslabs/walter/internal/history"
	"github.com/octaviuslabs/walter/internal/job"
	"github.com/octaviuslabs/walter/internal/patch"
	"github.com/octaviuslabs/walter/internal/target"
)

// Edit is an accepted change to one file: the original body and the full replacement body
type Edit struct {
	Target   target.Reference
	Original string
	Body     string
}

// FileFetcher retrieves the file a target reference points at. *gh.Client satisfies this
type FileFetcher interface {
	GetFile(ctx context.Context, ref target.Reference) (target.FileContent, error)
}

// CreateEditWithChat produces an Edit for a job by asking the code-generation persona for a
// full rewritten file and taking the first fenced code block of the response. Jobs with no
// targets are rejected with ErrNoTarget before any model call
func (e *Engine) CreateEditWithChat(ctx context.Context, j job.Job, hist []history.Message) (Edit, error) {
	fc, err := e.fetchJobTarget(ctx, j)
	if err != nil {
		return Edit{}, err
	}

	res, err := e.Chat(ctx, j.ID, editInstruction(fc, j.Action), hist, nil, PersonaCode)
	if err != nil {
		return Edit{}, err
	}

	blocks := ExtractCodeBlocks(res)
	if len(blocks) == 0 {
		return Edit{}, fmt.Errorf("%w: job %s", ErrNoCodeBlock, j.ID)
	}
	log.Info().Str("job_id", j.ID).Int("blocks", len(blocks)).Msg("extracted code blocks from response")

	return Edit{
		Target:   fc.Ref,
		Original: fc.Body,
		Body:     blocks[0],
	}, nil
}

// CreateEditWithDiff produces an Edit for a job by asking the diff-generation persona for a
// unified diff and applying it to the original body. A diff that fails to apply aborts the
// job; no partial edit is returned
func (e *Engine) CreateEditWithDiff(ctx context.Context, j job.Job, hist []history.Message) (Edit, error) {
	fc, err := e.fetchJobTarget(ctx, j)
	if err != nil {
		return Edit{}, err
	}

	res, err := e.Chat(ctx, j.ID, editInstruction(fc, j.Action), hist, nil, PersonaDiff)
	if err != nil {
		return Edit{}, err
	}

	merged, err := patch.Merge(fc.Body, res)
	if err != nil {
		return Edit{}, fmt.Errorf("job %s: %w", j.ID, err)
	}

	return Edit{
		Target:   fc.Ref,
		Original: fc.Body,
		Body:     merged,
	}, nil
}

func (e *Engine) fetchJobTarget(ctx context.Context, j job.Job) (target.FileContent, error) {
	if len(j.Targets) == 0 {
		return target.FileContent{}, fmt.Errorf("%w: job %s", ErrNoTarget, j.ID)
	}

	// Jobs are scoped to their first target; additional targets are not yet supported
	fc, err := e.files.GetFile(ctx, j.Targets[0])
	if err != nil {
		return target.FileContent{}, fmt.Errorf("failed to fetch target file: %w", err)
	}
	return fc, nil
}

// editInstruction builds the instruction prompt for a file edit: the file body, the line
// range hints when present, and the requested action
func editInstruction(fc target.FileContent, action string) string {
	parts := []string{fc.Body}

	var lines []string
	if fc.Ref.StartLine != nil {
		lines = append(lines, fmt.Sprintf("On line %d.", *fc.Ref.StartLine))
	}
	if fc.Ref.EndLine != nil {
		lines = append(lines, fmt.Sprintf("To line %d.", *fc.Ref.EndLine))
	}
	if len(lines) > 0 {
		parts = append(parts, strings.Join(lines, " "))
	}

	parts = append(parts,
		fmt.Sprintf("Make the following changes to the above file named '%s':", fc.Ref.Path()),
		"- "+action,
	)

	return strings.Join(parts, "\n")
}
