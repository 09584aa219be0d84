package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
	"github.com/matsen/papershelf/internal/store"
)

var checkFix bool

func init() {
	checkCmd.Flags().BoolVar(&checkFix, "fix", false, "Rebuild the index when it disagrees with the records")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify collection integrity",
	Long: `Verify that the paper index agrees with the paper directories, that
every record parses, and that summarized papers have a summary file.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

// CheckResult is the response for the check command.
type CheckResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Fixed   bool   `json:"fixed,omitempty"`
	*store.CheckReport
}

func runCheck(cmd *cobra.Command, args []string) error {
	st := mustOpenStore()
	report, err := st.Check()
	if err != nil {
		exitWithErr(err)
	}

	fixed := false
	if checkFix && indexNeedsRebuild(report) {
		err := exchange.WithWriteLock(st, config.GetLockTimeout(), func() error {
			_, rerr := st.RebuildIndex()
			return rerr
		})
		if err != nil {
			exitWithErr(err)
		}
		if report, err = st.Check(); err != nil {
			exitWithErr(err)
		}
		fixed = true
	}

	status := "ok"
	if !report.OK() {
		status = "issues"
	}

	if humanOutput {
		printCheckHuman(report, fixed)
		return nil
	}
	return outputJSON(CheckResult{Success: true, Status: status, Fixed: fixed, CheckReport: report})
}

// indexNeedsRebuild reports whether rebuilding the index would resolve
// any of the issues found.
func indexNeedsRebuild(r *store.CheckReport) bool {
	return r.IndexMissing || len(r.NotIndexed) > 0 || len(r.Orphaned) > 0
}

func printCheckHuman(r *store.CheckReport, fixed bool) {
	if fixed {
		fmt.Println("Index rebuilt.")
	}
	if r.OK() {
		fmt.Printf("Collection check: OK\n\n%d papers checked\n", r.Papers)
		return
	}

	fmt.Printf("Collection check: issues found\n\n")
	if r.IndexMissing {
		fmt.Printf("  [WARN] Paper index is missing\n")
	}
	if len(r.NotIndexed) > 0 {
		fmt.Printf("  [WARN] Not in index: %s\n", formatIDList(r.NotIndexed))
	}
	if len(r.Orphaned) > 0 {
		fmt.Printf("  [WARN] Indexed but missing on disk: %s\n", formatIDList(r.Orphaned))
	}
	if len(r.Unreadable) > 0 {
		fmt.Printf("  [WARN] Unreadable records: %s\n", formatIDList(r.Unreadable))
	}
	if len(r.SummaryMissing) > 0 {
		fmt.Printf("  [WARN] Summary file missing: %s\n", formatIDList(r.SummaryMissing))
	}
	if !fixed && indexNeedsRebuild(r) {
		fmt.Printf("\nRun 'shelf check --fix' or 'shelf rebuild' to regenerate the index.\n")
	}
	fmt.Printf("\n%d papers checked, %d indexed\n", r.Papers, r.Indexed)
}
