package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/octaviuslabs/walter/internal/history"
)

// InteractionStore records one model interaction per call for after-the-fact inspection.
// Implementations are write-only sinks; the records are never read back by the system
type InteractionStore interface {
	Record(interactionID string, prompt string, hist []history.Message, response string) error
}

// FileSystemInteractionStore implements InteractionStore on the local file system, one
// human-readable markdown file per interaction under <dir>/<interactionID>/
type FileSystemInteractionStore struct {
	dir string
}

// NewFileSystemInteractionStore creates a store rooted at dir
func NewFileSystemInteractionStore(dir string) FileSystemInteractionStore {
	return FileSystemInteractionStore{dir: dir}
}

func (fis FileSystemInteractionStore) Record(interactionID string, prompt string, hist []history.Message, response string) error {
	dir := filepath.Join(fis.dir, interactionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create interaction directory: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# History\n\n")
	for _, msg := range hist {
		sb.WriteString(string(msg.Role))
		sb.WriteString("::\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	sb.WriteString("# Prompt\n\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\n# Response\n\n")
	sb.WriteString(response)
	sb.WriteString("\n")

	path := filepath.Join(dir, fmt.Sprintf("%d-interaction.md", time.Now().UnixMilli()))
	log.Info().Str("path", path).Msg("saving interaction")

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write interaction file: %w", err)
	}
	return nil
}
