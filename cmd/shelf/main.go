// Package main provides the shelf CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/logging"
	"github.com/matsen/papershelf/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	dataDir     string
	verbose     bool
	quiet       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		// This ensures Cobra errors (like missing required flags) are visible
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "Local research-paper collection with package exchange",
	Long: `shelf keeps a local collection of arXiv papers and exchanges them with
other people as self-describing zip packages.

Papers live as one directory each under the data directory, with a
materialized index for fast listing. Packages are validated as untrusted
input before anything in the collection is touched. All commands output
JSON by default for easy integration with agents and scripts.`,
	SilenceUsage:     true,
	SilenceErrors:    true,
	PersistentPreRun: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Collection root (default: $SHELF_DATA_DIR, config data_dir, or ./data)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	rootCmd.Version = Version
}

// setup loads .env and configures logging before any command runs.
func setup(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()
	logging.SetLevel(resolveLogLevel())
}

// resolveLogLevel picks the log level: --verbose and --quiet win over
// SHELF_LOG_LEVEL and the config file.
func resolveLogLevel() logging.Level {
	switch {
	case verbose:
		return logging.LevelDebug
	case quiet:
		return logging.LevelError
	}
	if s := config.GetLogLevel(); s != "" {
		if level, err := logging.ParseLevel(s); err == nil {
			return level
		}
		fmt.Fprintf(os.Stderr, "warning: ignoring unknown log level %q\n", s)
	}
	return logging.LevelWarn
}

// storeRoot returns the collection root for this invocation.
func storeRoot() string {
	return config.ResolveDataDir(dataDir)
}

// mustOpenStore opens the collection, exits on error.
func mustOpenStore() *store.Store {
	st, err := store.Open(storeRoot())
	if err != nil {
		exitWithErr(err)
	}
	return st
}
