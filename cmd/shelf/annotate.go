package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/annotation"
	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
)

var (
	annotateType     string
	annotateContent  string
	annotateFile     string
	annotateUsername string
	annotateFormat   string
)

func init() {
	annotateAddCmd.Flags().StringVarP(&annotateType, "type", "t", string(annotation.TypeNote),
		"Annotation type ("+joinTypes()+")")
	annotateAddCmd.Flags().StringVarP(&annotateContent, "content", "c", "", "Annotation text")
	annotateAddCmd.Flags().StringVar(&annotateFile, "file", "", "Read annotation text from a file (- for stdin)")
	annotateAddCmd.Flags().StringVar(&annotateUsername, "username", "", "Author recorded on the annotation")
	annotateListCmd.Flags().StringVarP(&annotateFormat, "format", "f", "",
		"Output format ("+strings.Join(annotation.Formats, ", ")+"; default json, or text with --human)")

	annotateCmd.AddCommand(annotateAddCmd)
	annotateCmd.AddCommand(annotateListCmd)
	rootCmd.AddCommand(annotateCmd)
}

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Add and list paper annotations",
}

var annotateAddCmd = &cobra.Command{
	Use:   "add <paper-id>",
	Short: "Add an annotation to a paper",
	Long: `Add an annotation to a collected paper.

Usage:
  shelf annotate add 2401.12345 --type question --content "Why this prior?"
  shelf annotate add 2401.12345 --file notes.md`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotateAdd,
}

var annotateListCmd = &cobra.Command{
	Use:   "list <paper-id>",
	Short: "List the annotations of a paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnnotateList,
}

// AnnotateResponse is the response for annotate add.
type AnnotateResponse struct {
	Success    bool                   `json:"success"`
	Annotation *annotation.Annotation `json:"annotation"`
}

func runAnnotateAdd(cmd *cobra.Command, args []string) error {
	content := annotateContent
	if annotateFile != "" {
		if content != "" {
			exitWithError(ExitError, "use either --content or --file, not both")
		}
		data, err := readInput(annotateFile)
		if err != nil {
			exitWithErr(apperr.Wrap(apperr.FileError, err, "reading %s", annotateFile))
		}
		content = string(data)
	}

	a, err := exchange.AddAnnotation(exchange.AnnotationRequest{
		StorePath:   storeRoot(),
		PaperID:     args[0],
		Username:    config.ResolveUsername(annotateUsername),
		Type:        annotateType,
		Content:     content,
		LockTimeout: config.GetLockTimeout(),
	})
	if err != nil {
		exitWithErr(err)
	}

	if humanOutput {
		outputHuman("Added %s %s to %s\n", a.Type, a.ID, a.PaperID)
		return nil
	}
	return outputJSON(AnnotateResponse{Success: true, Annotation: a})
}

func runAnnotateList(cmd *cobra.Command, args []string) error {
	format := annotateFormat
	if format == "" {
		format = annotation.FormatJSON
		if humanOutput {
			format = annotation.FormatText
		}
	}

	out, err := exchange.ListAnnotations(args[0], format, storeRoot())
	if err != nil {
		exitWithErr(err)
	}
	outputHuman("%s\n", strings.TrimRight(out, "\n"))
	return nil
}

func joinTypes() string {
	names := make([]string, len(annotation.Types))
	for i, t := range annotation.Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
