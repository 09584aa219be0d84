package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/export"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
	"github.com/matsen/papershelf/internal/store"
)

// Export formats.
const (
	FormatBibTeX   = "bibtex"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

var (
	exportFormat   string
	exportPaperIDs []string
	exportOutput   string
)

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", FormatBibTeX, "Export format (bibtex, markdown, csv)")
	exportCmd.Flags().StringSliceVar(&exportPaperIDs, "paper-id", nil, "Paper to export (repeatable; default: every paper)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (directory for markdown); default stdout")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export papers as BibTeX, Markdown or CSV",
	Long: `Export collected papers.

Usage:
  shelf export --format bibtex --output refs.bib    # appends only new entries
  shelf export --format markdown --output notes/    # one file per paper
  shelf export --format csv --paper-id 2401.12345

Without --output the export is written to stdout.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

// ExportResponse is the response for the export command when writing files.
type ExportResponse struct {
	Success  bool     `json:"success"`
	Format   string   `json:"format"`
	Output   string   `json:"output"`
	Exported []string `json:"exported"`
	Existing []string `json:"existing,omitempty"` // Already present in the .bib file
}

func runExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFormat)
	if format != FormatBibTeX && format != FormatMarkdown && format != FormatCSV {
		exitWithErr(apperr.New(apperr.InvalidArgument, "unknown export format: %s", exportFormat).
			WithHint("Valid formats: bibtex, markdown, csv."))
	}

	st := mustOpenStore()
	papers, err := collectPapers(st, exportPaperIDs, format != FormatBibTeX)
	if err != nil {
		exitWithErr(err)
	}

	if exportOutput == "" {
		out, err := renderExport(format, papers, st.Now())
		if err != nil {
			exitWithErr(err)
		}
		os.Stdout.WriteString(out)
		return nil
	}

	resp, err := writeExport(format, papers, exportOutput, st.Now())
	if err != nil {
		exitWithErr(err)
	}
	if humanOutput {
		outputHuman("Exported %d paper(s) to %s\n", len(resp.Exported), resp.Output)
		if len(resp.Existing) > 0 {
			outputHuman("  already present: %s\n", formatIDList(resp.Existing))
		}
		return nil
	}
	return outputJSON(resp)
}

// collectPapers loads the requested papers, or every readable paper when ids
// is empty.
func collectPapers(st *store.Store, ids []string, withSummaries bool) ([]export.Paper, error) {
	var records []paper.Record
	if len(ids) == 0 {
		all, _, err := st.AllRecords()
		if err != nil {
			return nil, err
		}
		records = all
	} else {
		for _, id := range ids {
			rec, err := st.ReadRecord(id)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}

	papers := make([]export.Paper, len(records))
	for i, rec := range records {
		papers[i].Record = rec
		if !withSummaries || !rec.HasSummary {
			continue
		}
		text, _, err := st.ReadSummary(rec.ID)
		if err != nil {
			return nil, err
		}
		papers[i].Summary = text
	}
	return papers, nil
}

// renderExport renders papers as a single document.
func renderExport(format string, papers []export.Paper, now time.Time) (string, error) {
	switch format {
	case FormatBibTeX:
		return export.ToBibTeXList(records(papers)), nil
	case FormatMarkdown:
		docs := make([]string, len(papers))
		for i, p := range papers {
			docs[i] = export.ToMarkdown(p, now)
		}
		return strings.Join(docs, "\n"), nil
	case FormatCSV:
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, papers); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("unknown export format: %s", format)
}

// writeExport writes papers to output. BibTeX appends only entries the file
// does not hold yet; Markdown writes one file per paper into the output
// directory; CSV replaces the output file.
func writeExport(format string, papers []export.Paper, output string, now time.Time) (*ExportResponse, error) {
	resp := &ExportResponse{Success: true, Format: format, Output: output, Exported: []string{}}

	switch format {
	case FormatBibTeX:
		appended, err := export.AppendToBibFile(output, records(papers))
		if err != nil {
			return nil, apperr.Wrap(apperr.FileError, err, "writing %s", output)
		}
		resp.Exported = nonNil(appended)
		added := make(map[string]bool, len(appended))
		for _, id := range appended {
			added[id] = true
		}
		for _, p := range papers {
			if !added[p.Record.ID] {
				resp.Existing = append(resp.Existing, p.Record.ID)
			}
		}

	case FormatMarkdown:
		if err := os.MkdirAll(output, 0755); err != nil {
			return nil, apperr.Wrap(apperr.FileError, err, "creating %s", output)
		}
		for _, p := range papers {
			path := filepath.Join(output, export.MarkdownFileName(p.Record.ID))
			if err := storage.WriteFileAtomic(path, []byte(export.ToMarkdown(p, now)), 0644); err != nil {
				return nil, apperr.Wrap(apperr.FileError, err, "writing %s", path)
			}
			resp.Exported = append(resp.Exported, p.Record.ID)
		}

	case FormatCSV:
		out, err := renderExport(format, papers, now)
		if err != nil {
			return nil, err
		}
		if err := storage.WriteFileAtomic(output, []byte(out), 0644); err != nil {
			return nil, apperr.Wrap(apperr.FileError, err, "writing %s", output)
		}
		for _, p := range papers {
			resp.Exported = append(resp.Exported, p.Record.ID)
		}
	}
	return resp, nil
}

func records(papers []export.Paper) []paper.Record {
	recs := make([]paper.Record, len(papers))
	for i, p := range papers {
		recs[i] = p.Record
	}
	return recs
}
