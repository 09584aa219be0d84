package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/store"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past package imports",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

// HistoryResponse is the response for the history command.
type HistoryResponse struct {
	Success bool                 `json:"success"`
	Imports []store.HistoryEntry `json:"imports"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	entries, err := mustOpenStore().History()
	if err != nil {
		exitWithErr(err)
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}

	if humanOutput {
		if len(entries) == 0 {
			outputHuman("No imports yet\n")
			return nil
		}
		for _, e := range entries {
			by := e.CreatedBy
			if by == "" {
				by = "unknown"
			}
			outputHuman("%s  %s (from %s)\n", e.ImportedAt.Format("2006-01-02 15:04"), e.Source, by)
			outputHuman("  %d imported, %d skipped, %d annotation file(s)\n",
				len(e.ImportedIDs), len(e.SkippedIDs), e.AnnotationCount)
			if len(e.Failed) > 0 {
				outputHuman("  failed: %s\n", formatIDList(e.Failed))
			}
		}
		return nil
	}
	return outputJSON(HistoryResponse{Success: true, Imports: entries})
}
