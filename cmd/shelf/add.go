package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/exchange"
	"github.com/matsen/papershelf/internal/importer"
	"github.com/matsen/papershelf/internal/logging"
	"github.com/matsen/papershelf/internal/store"
)

var log = logging.New("cli")

var (
	addInput string
	addTopic string
)

func init() {
	addCmd.Flags().StringVarP(&addInput, "input", "i", "", "Collector JSON output (- for stdin)")
	addCmd.Flags().StringVar(&addTopic, "topic", "", "Topic to tag every added paper with")
	addCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(addCmd)
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add papers from collector output",
	Long: `Add papers from the JSON output of the arXiv collector.

Papers already in the collection are skipped untouched.

Usage:
  shelf add --input papers.json --topic phylogenetics
  arxiv-collect "tree inference" | shelf add --input -`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

// AddResponse is the response for the add command.
type AddResponse struct {
	Success     bool     `json:"success"`
	Query       string   `json:"query,omitempty"`
	Added       []string `json:"added"`
	Skipped     []string `json:"skipped"`
	Invalid     []string `json:"invalid,omitempty"`
	ParseErrors []string `json:"parse_errors,omitempty"`
}

func runAdd(cmd *cobra.Command, args []string) error {
	data, err := readInput(addInput)
	if err != nil {
		exitWithErr(apperr.Wrap(apperr.FileError, err, "reading %s", addInput))
	}

	query, records, parseErrs := importer.ParseCollector(data)
	var errMsgs []string
	for _, e := range parseErrs {
		log.Warnf("%v", e)
		errMsgs = append(errMsgs, e.Error())
	}
	if len(records) == 0 && len(parseErrs) > 0 {
		exitWithErr(apperr.Wrap(apperr.InvalidArgument, parseErrs[0], "no papers could be read from %s", addInput).
			WithHint("Pass the JSON printed by the arXiv collector."))
	}

	st := mustOpenStore()
	var result *store.AddResult
	err = exchange.WithWriteLock(st, config.GetLockTimeout(), func() error {
		var aerr error
		result, aerr = st.AddRecords(records, addTopic)
		return aerr
	})
	if err != nil {
		exitWithPartial(err, result)
	}

	if humanOutput {
		outputHuman("Added %d paper(s), skipped %d already collected\n", len(result.Added), len(result.Skipped))
		if len(result.Added) > 0 {
			outputHuman("  added: %s\n", formatIDList(result.Added))
		}
		if len(result.Invalid) > 0 {
			outputHuman("  invalid ids: %s\n", formatIDList(result.Invalid))
		}
		for _, msg := range errMsgs {
			outputHuman("  warning: %s\n", msg)
		}
		return nil
	}
	return outputJSON(AddResponse{
		Success:     true,
		Query:       query,
		Added:       result.Added,
		Skipped:     result.Skipped,
		Invalid:     result.Invalid,
		ParseErrors: errMsgs,
	})
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
