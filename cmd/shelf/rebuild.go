package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
	"github.com/matsen/papershelf/internal/index"
)

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the paper index from the paper directories",
	Long: `Rebuild the paper index from the records on disk.

The index is a derived view; this regenerates it after manual edits or an
interrupted write. The query cache is refreshed on the next list or search.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

// RebuildResponse is the response for the rebuild command.
type RebuildResponse struct {
	Success bool `json:"success"`
	Papers  int  `json:"papers"`
}

func runRebuild(cmd *cobra.Command, args []string) error {
	st := mustOpenStore()
	var idx *index.Index
	err := exchange.WithWriteLock(st, config.GetLockTimeout(), func() error {
		var rerr error
		idx, rerr = st.RebuildIndex()
		return rerr
	})
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Rebuilt index with %d paper(s)\n", len(idx.Papers))
		return nil
	}
	return outputJSON(RebuildResponse{Success: true, Papers: len(idx.Papers)})
}
