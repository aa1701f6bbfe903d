package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/octaviuslabs/walter/internal/job"
)

var interpretCmd = &cobra.Command{
	Use:   "interpret [text]",
	Short: "Parse comment text into jobs and print them as JSON",
	Long: `Parses the given text (or stdin when no argument is given) the way the bot parses
an issue comment, and prints the resulting jobs. Useful for checking how a comment will
be interpreted before posting it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInterpret,
}

func init() {
	rootCmd.AddCommand(interpretCmd)
}

func runInterpret(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(b)
	}

	jobs := job.ParseComment(text)
	if len(jobs) == 0 {
		jobs = []job.Job{job.ParseFreeText(text)}
	}

	out, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
