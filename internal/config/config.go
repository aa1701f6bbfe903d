// Package config loads the bot's settings from the environment.
package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// EditMode selects how the generation engine turns model output into file edits
const (
	EditModeChat = "chat"
	EditModeDiff = "diff"
)

// Settings holds the process configuration. It is built once at startup and passed
// read-only into the components that need it
type Settings struct {
	// Authentication
	GithubToken         string `env:"GITHUB_API_TOKEN, required"`
	GithubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET, required"`
	AnthropicAPIKey     string `env:"ANTHROPIC_API_KEY, required"`

	// Bot identity and admission
	BotName        string   `env:"GITHUB_USERNAME, required"`
	SupportedRepos []string `env:"SUPPORTED_REPOS"` // qualified names, e.g. "octaviuslabs/walter"
	SupportedUsers []string `env:"SUPPORTED_USERS"`
	BotTaskLabel   string   `env:"BOT_TASK_LABEL, default=walter-build"`

	// Generation
	Model    string `env:"MODEL, default=claude-3-5-sonnet-latest"`
	EditMode string `env:"EDIT_MODE, default=chat"`

	// Audit logging
	SaveInteractions bool   `env:"SAVE_INTERACTIONS"`
	InteractionsDir  string `env:"INTERACTIONS_DIR, default=.interactions"`

	// Server
	ListenAddr string `env:"LISTEN_ADDR, default=:3000"`

	// Telemetry
	TelemetryEnabled bool   `env:"TELEMETRY_ENABLED"`
	OTLPEndpoint     string `env:"OTLP_ENDPOINT"`
}

// Load reads Settings from the process environment
func Load(ctx context.Context) (Settings, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Settings, error) {
	var s Settings
	err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &s, Lookuper: lookuper})
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks constraints the struct tags cannot express
func (s Settings) Validate() error {
	if s.EditMode != EditModeChat && s.EditMode != EditModeDiff {
		return fmt.Errorf("invalid EDIT_MODE %q: must be %q or %q", s.EditMode, EditModeChat, EditModeDiff)
	}
	if len(s.SupportedRepos) == 0 && len(s.SupportedUsers) == 0 {
		return fmt.Errorf("at least one of SUPPORTED_REPOS or SUPPORTED_USERS must be set")
	}
	return nil
}

// RepoSupported reports whether a qualified repository name is on the allow-list
func (s Settings) RepoSupported(fullName string) bool {
	for _, repo := range s.SupportedRepos {
		if repo == fullName {
			return true
		}
	}
	return false
}

// UserSupported reports whether a GitHub login is on the allow-list
func (s Settings) UserSupported(login string) bool {
	for _, user := range s.SupportedUsers {
		if user == login {
			return true
		}
	}
	return false
}
