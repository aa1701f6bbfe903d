package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/octaviuslabs/walter/internal/bot"
	"github.com/octaviuslabs/walter/internal/config"
	"github.com/octaviuslabs/walter/internal/dispatch"
	"github.com/octaviuslabs/walter/internal/gen"
	"github.com/octaviuslabs/walter/internal/gh"
	"github.com/octaviuslabs/walter/internal/history"
	"github.com/octaviuslabs/walter/internal/intent"
	"github.com/octaviuslabs/walter/internal/publish"
	"github.com/octaviuslabs/walter/internal/telemetry"
	"github.com/octaviuslabs/walter/internal/webhook"
)

var queueSize int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Starts the HTTP server that receives GitHub webhook deliveries and processes
admitted comments one at a time.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&queueSize, "queue-size", 64, "Event queue buffer size")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := setupContext()

	settings, err := config.Load(ctx)
	if err != nil {
		return err
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  settings.TelemetryEnabled,
		Endpoint: settings.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	rawGithub := createGithubClient(ctx, settings.GithubToken)
	githubClient := gh.NewClient(rawGithub)
	anthropicClient := createAnthropicClient(settings.AnthropicAPIKey)

	var audit gen.InteractionStore
	if settings.SaveInteractions {
		audit = gen.NewFileSystemInteractionStore(settings.InteractionsDir)
	}
	engine := gen.NewEngine(anthropicClient, anthropic.Model(settings.Model), githubClient, audit)

	classifier := intent.NewClassifier(settings.BotName)
	histories := history.NewAssembler(githubClient, classifier, settings.BotName)
	publisher := publish.NewPublisher(rawGithub)

	b := bot.New(settings, githubClient, histories, engine, publisher)
	queue := dispatch.NewQueue(b, githubClient, queueSize)
	hook := webhook.NewHandler(settings, queue, githubClient)

	mux := http.NewServeMux()
	mux.Handle("/webhook", hook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The worker runs on its own context so that already-accepted events drain after the
	// server stops taking new ones
	workerDone := make(chan struct{})
	go func() {
		queue.Run(context.Background())
		close(workerDone)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
		queue.Close()
	}()

	log.Info().
		Str("addr", settings.ListenAddr).
		Str("bot", settings.BotName).
		Str("model", settings.Model).
		Msg("listening for webhook deliveries")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-workerDone
	log.Info().Msg("event queue drained, exiting")
	return nil
}
