package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/bundle"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
	"github.com/matsen/papershelf/internal/store"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <package.zip>",
	Short: "Validate a package and show what it contains",
	Long: `Validate a package without importing it.

Runs every check that import runs, then lists the papers the package holds
and whether each one is already in the collection. Nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

// InspectResponse is the response for the inspect command.
type InspectResponse struct {
	Success  bool            `json:"success"`
	Manifest bundle.Manifest `json:"manifest"`
	Papers   []InspectPaper  `json:"papers"`
	Entries  int             `json:"entries"`
	Dropped  []string        `json:"dropped"`
}

// InspectPaper describes one paper of an inspected package.
type InspectPaper struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	HasSummary  bool   `json:"has_summary"`
	Annotations int    `json:"annotations"`
	Collected   bool   `json:"collected"` // Already present in the local collection
}

func runInspect(cmd *cobra.Command, args []string) error {
	pkg, err := exchange.InspectPackage(args[0], bundle.LimitsFromConfig(config.GetLimits()))
	if err != nil {
		exitWithErr(err)
	}

	resp := summarizePackage(pkg, mustOpenStore())
	if humanOutput {
		m := resp.Manifest
		outputHuman("Package %s (format %s)\n", args[0], m.Version)
		outputHuman("  created by %s on %s\n", m.CreatedBy, m.CreatedAt.Format("2006-01-02 15:04"))
		if m.Description != "" {
			outputHuman("  %s\n", wrapText(m.Description, TextWrapWidth, "  "))
		}
		outputHuman("  %d paper(s), %d entries\n\n", len(resp.Papers), resp.Entries)
		for _, p := range resp.Papers {
			mark := "new"
			if p.Collected {
				mark = "collected"
			}
			outputHuman("  %-12s [%s] %s\n", p.ID, mark, truncateString(p.Title, DetailTitleMaxLen))
		}
		for _, d := range resp.Dropped {
			outputHuman("  dropped: %s\n", d)
		}
		return nil
	}
	return outputJSON(resp)
}

// summarizePackage describes a validated package relative to st, which is
// only read.
func summarizePackage(pkg *bundle.Package, st *store.Store) InspectResponse {
	resp := InspectResponse{
		Success:  true,
		Manifest: pkg.Manifest,
		Papers:   make([]InspectPaper, 0, len(pkg.Papers)),
		Entries:  len(pkg.Entries),
		Dropped:  nonNil(pkg.Dropped),
	}
	for _, e := range pkg.Papers {
		resp.Papers = append(resp.Papers, InspectPaper{
			ID:          e.ID,
			Title:       e.Record.Title,
			HasSummary:  e.HasSummary,
			Annotations: len(e.Annotations),
			Collected:   st.HasPaper(e.ID),
		})
	}
	return resp
}
