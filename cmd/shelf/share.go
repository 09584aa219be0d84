package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/bundle"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
)

var (
	shareOutput             string
	sharePaperIDs           []string
	shareIncludeSummaries   bool
	shareIncludeAnnotations bool
	shareUsername           string
	shareDescription        string
)

func init() {
	shareCmd.Flags().StringVarP(&shareOutput, "output", "o", "", "Path of the .zip package to write")
	shareCmd.Flags().StringSliceVar(&sharePaperIDs, "paper-id", nil, "Paper to include (repeatable; default: every paper)")
	shareCmd.Flags().BoolVar(&shareIncludeSummaries, "include-summaries", false, "Include paper summaries")
	shareCmd.Flags().BoolVar(&shareIncludeAnnotations, "include-annotations", false, "Include annotations")
	shareCmd.Flags().StringVar(&shareUsername, "username", "", "Name recorded as the package creator")
	shareCmd.Flags().StringVar(&shareDescription, "description", "", "Free-text description stored in the manifest")
	shareCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(shareCmd)
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Build a package of papers to send to someone",
	Long: `Build a zip package of papers that another shelf user can import.

Usage:
  shelf share --output papers.zip
  shelf share --output two.zip --paper-id 2401.12345 --paper-id 2401.54321
  shelf share --output full.zip --include-summaries --include-annotations

The collection is only read. Requested papers that are not collected are
reported as missing.`,
	Args: cobra.NoArgs,
	RunE: runShare,
}

// ShareResponse is the response for the share command.
type ShareResponse struct {
	Success bool `json:"success"`
	*bundle.BuildResult
}

func runShare(cmd *cobra.Command, args []string) error {
	result, err := exchange.BuildPackage(exchange.BuildRequest{
		StorePath:          storeRoot(),
		PaperIDs:           sharePaperIDs,
		IncludeSummaries:   shareIncludeSummaries,
		IncludeAnnotations: shareIncludeAnnotations,
		Username:           config.ResolveUsername(shareUsername),
		Description:        shareDescription,
		OutputPath:         shareOutput,
	})
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Packaged %d paper(s) into %s\n", result.PaperCount, result.OutputPath)
		outputHuman("  papers:      %s\n", wrapText(formatIDList(result.PaperIDs), TextWrapWidth, "               "))
		if result.IncludesSummaries {
			outputHuman("  summaries:   %d\n", result.SummaryCount)
		}
		if result.IncludesAnnotations {
			outputHuman("  annotations: %d\n", result.AnnotationCount)
		}
		if len(result.Missing) > 0 {
			outputHuman("  missing:     %s\n", formatIDList(result.Missing))
		}
		return nil
	}
	return outputJSON(ShareResponse{Success: true, BuildResult: result})
}
