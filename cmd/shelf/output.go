package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/index"
	"github.com/matsen/papershelf/internal/merge"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
	"github.com/matsen/papershelf/internal/store"
)

// Constants for output formatting.
const (
	DefaultListLimit = 50 // Default limit for search/list commands

	ListTitleMaxLen   = 60 // Used in list and search output
	DetailTitleMaxLen = 70 // Used in share/import/inspect output

	TextWrapWidth = 68
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// errorResponse is the failure envelope, plus whatever partial result the
// command produced before failing.
type errorResponse struct {
	apperr.Envelope
	Result interface{} `json:"result,omitempty"`
}

// exitWithError reports an argument-style failure and exits.
func exitWithError(code int, format string, args ...interface{}) {
	err := apperr.New(apperr.InvalidArgument, format, args...)
	report(err, nil)
	os.Exit(code)
}

// exitWithErr reports err in the appropriate format and exits with the
// code matching its error code.
func exitWithErr(err error) {
	exitWithPartial(err, nil)
}

// exitWithPartial is exitWithErr for commands that made progress before
// failing; partial is included in the JSON envelope.
func exitWithPartial(err error, partial interface{}) {
	err = classify(err)
	report(err, partial)
	os.Exit(exitCodeFor(apperr.CodeOf(err)))
}

func report(err error, partial interface{}) {
	env := apperr.Failure(err)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", env.Error.Message)
		if env.Error.Details != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", env.Error.Details)
		}
		if env.Error.Hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", env.Error.Hint)
		}
		return
	}
	outputJSON(errorResponse{Envelope: env, Result: partial})
}

// classify gives a code to errors the store packages report as sentinels.
// Errors that already carry a code are returned unchanged.
func classify(err error) error {
	if apperr.CodeOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, index.ErrNotFound):
		return apperr.Wrap(apperr.IndexNotFound, err, "paper index not found")
	case errors.Is(err, store.ErrPaperNotFound):
		return apperr.Wrap(apperr.PaperNotFound, err, "paper not found")
	case errors.Is(err, paper.ErrInvalidID):
		return apperr.Wrap(apperr.InvalidPaperID, err, "invalid paper ID")
	case errors.Is(err, storage.ErrLocked):
		return apperr.Wrap(apperr.FileError, err, "store is busy")
	}
	var merr *merge.Error
	if errors.As(err, &merr) {
		return classify(merr.Err)
	}
	return err
}

// exitCodeFor maps an error code to the process exit code.
func exitCodeFor(code apperr.Code) int {
	switch code {
	case apperr.IndexNotFound:
		return ExitConfigError
	case apperr.InvalidPackage, apperr.PaperNotFound:
		return ExitDataError
	case apperr.PathTraversal, apperr.PackageTooLarge:
		return ExitSecurity
	case apperr.FileError:
		return ExitFileError
	}
	return ExitError
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	words := strings.Fields(text)
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n"+indent)
}

// formatIDList formats a list of IDs as a comma-separated string.
func formatIDList(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

// formatAuthorsShort formats authors as "A, B, C et al." keeping at most limit names.
func formatAuthorsShort(authors []string, limit int) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	if len(authors) <= limit {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:limit], ", ") + " et al."
}

// nonNil returns s, or an empty slice so it encodes as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
