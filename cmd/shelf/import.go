package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/bundle"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
	"github.com/matsen/papershelf/internal/merge"
)

var importOverwrite bool

func init() {
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace local papers that differ from the package")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <package.zip>",
	Short: "Import a package into the collection",
	Long: `Validate a package and merge its papers into the collection.

Usage:
  shelf import papers.zip
  shelf import papers.zip --overwrite

The package is checked as untrusted input first (path confinement, size and
compression bounds, manifest shape). A rejected package leaves the
collection untouched. Papers already collected are skipped unless
--overwrite is given; annotations are merged either way. Importing the same
package twice changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// ImportResponse is the response for the import command.
type ImportResponse struct {
	Success bool   `json:"success"`
	Package string `json:"package"`
	*merge.Result
}

func runImport(cmd *cobra.Command, args []string) error {
	result, err := exchange.ImportPackage(exchange.ImportRequest{
		StorePath:   storeRoot(),
		PackagePath: args[0],
		Overwrite:   importOverwrite,
		Limits:      bundle.LimitsFromConfig(config.GetLimits()),
		LockTimeout: config.GetLockTimeout(),
	})
	if err != nil {
		if result != nil {
			exitWithPartial(err, result)
		}
		exitWithErr(err)
	}

	if humanOutput {
		printImportHuman(args[0], result)
		return nil
	}
	return outputJSON(ImportResponse{Success: true, Package: args[0], Result: result})
}

func printImportHuman(path string, r *merge.Result) {
	outputHuman("Imported %s: %d new, %d skipped, %d annotation file(s) added\n",
		path, r.ImportedCount, r.SkippedCount, r.AnnotationCount)
	if len(r.ImportedIDs) > 0 {
		outputHuman("  imported: %s\n", formatIDList(r.ImportedIDs))
	}
	if len(r.SkippedIDs) > 0 {
		outputHuman("  skipped:  %s\n", formatIDList(r.SkippedIDs))
	}
	for _, f := range r.Failed {
		outputHuman("  failed:   %s (%s)\n", f.ID, f.Error)
	}
	for _, d := range r.Dropped {
		outputHuman("  dropped:  %s\n", d)
	}
	if r.SkippedCount > 0 && !importOverwrite {
		fmt.Println("Use --overwrite to replace papers that differ from the package.")
	}
}
