package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "walter",
	Short: "GitHub bot that turns issue conversations into pull requests",
	Long: `Walter is a GitHub bot that participates in issue conversations. It discusses
designs when asked, and when a comment approves the discussed work it generates the
code changes and opens a pull request with them.`,
	PersistentPreRun: setupEnvironment,
}

func Execute() error {
	return rootCmd.Execute()
}

func setupEnvironment(_ *cobra.Command, _ []string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
}
