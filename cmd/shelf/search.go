package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", DefaultListLimit, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over titles, authors and abstracts",
	Long: `Full-text search over the collection.

Usage:
  shelf search phylogenetic
  shelf search "tree inference" --limit 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		exitWithError(ExitError, "search query is empty")
	}
	if searchLimit <= 0 {
		exitWithError(ExitError, "--limit must be positive")
	}

	db, err := mustOpenStore().OpenCache()
	if err != nil {
		exitWithErr(err)
	}
	defer db.Close()

	rows, err := db.Search(query, searchLimit)
	if err != nil {
		exitWithErr(err)
	}
	printPapers(rows)
	return nil
}
