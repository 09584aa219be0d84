package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
	"github.com/matsen/papershelf/internal/paper"
)

var summaryFile string

func init() {
	summarySetCmd.Flags().StringVar(&summaryFile, "file", "", "Markdown file holding the summary (- for stdin)")
	summarySetCmd.MarkFlagRequired("file")
	summaryCmd.AddCommand(summarySetCmd)
	summaryCmd.AddCommand(summaryShowCmd)
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Store and show paper summaries",
}

var summarySetCmd = &cobra.Command{
	Use:   "set <paper-id>",
	Short: "Store a summary for a collected paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarySet,
}

var summaryShowCmd = &cobra.Command{
	Use:   "show <paper-id>",
	Short: "Print the summary of a paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummaryShow,
}

// SummaryResponse is the response for summary commands.
type SummaryResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Summary string `json:"summary,omitempty"`
}

func runSummarySet(cmd *cobra.Command, args []string) error {
	data, err := readInput(summaryFile)
	if err != nil {
		exitWithErr(apperr.Wrap(apperr.FileError, err, "reading %s", summaryFile))
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		exitWithError(ExitError, "summary is empty")
	}

	st := mustOpenStore()
	var rec paper.Record
	err = exchange.WithWriteLock(st, config.GetLockTimeout(), func() error {
		var serr error
		rec, serr = st.SetSummary(args[0], text+"\n")
		return serr
	})
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Saved summary for %s\n", rec.ID)
		return nil
	}
	return outputJSON(SummaryResponse{Success: true, ID: rec.ID})
}

func runSummaryShow(cmd *cobra.Command, args []string) error {
	st := mustOpenStore()
	text, ok, err := st.ReadSummary(args[0])
	if err != nil {
		exitWithErr(err)
	}
	if !ok {
		if !st.HasPaper(args[0]) {
			exitWithErr(apperr.New(apperr.PaperNotFound, "paper not found: %s", args[0]))
		}
		exitWithErr(apperr.New(apperr.PaperNotFound, "paper %s has no summary", args[0]).
			WithHint("Store one with 'shelf summary set'."))
	}

	if humanOutput {
		outputHuman("%s\n", strings.TrimRight(text, "\n"))
		return nil
	}
	return outputJSON(SummaryResponse{Success: true, ID: args[0], Summary: text})
}
