package main

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/storage"
)

var (
	listTopic        string
	listSummarized   bool
	listUnsummarized bool
	listImported     bool
	listLimit        int
)

func init() {
	listCmd.Flags().StringVar(&listTopic, "topic", "", "Only papers tagged with this topic")
	listCmd.Flags().BoolVar(&listSummarized, "summarized", false, "Only papers with a summary")
	listCmd.Flags().BoolVar(&listUnsummarized, "unsummarized", false, "Only papers without a summary")
	listCmd.Flags().BoolVar(&listImported, "imported", false, "Only papers that arrived in a package")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", DefaultListLimit, "Maximum number of papers (0 for all)")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(topicsCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List collected papers",
	Long: `List collected papers, most recently collected first.

Usage:
  shelf list
  shelf list --topic phylogenetics --summarized
  shelf list --imported --limit 0`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Show how many papers carry each topic",
	Args:  cobra.NoArgs,
	RunE:  runTopics,
}

// PaperSummary is one paper in list and search output.
type PaperSummary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Topics      []string `json:"topics"`
	CollectedAt string   `json:"collected_at"`
	HasSummary  bool     `json:"has_summary"`
	Imported    bool     `json:"imported"`
}

// PaperListResponse is the response for list and search.
type PaperListResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Papers  []PaperSummary `json:"papers"`
}

// TopicCount is one row of topics output.
type TopicCount struct {
	Topic  string `json:"topic"`
	Papers int    `json:"papers"`
}

func runList(cmd *cobra.Command, args []string) error {
	if listSummarized && listUnsummarized {
		exitWithError(ExitError, "--summarized and --unsummarized are mutually exclusive")
	}
	filter, err := buildFilter(listTopic, listSummarized, listUnsummarized, listImported, listLimit)
	if err != nil {
		exitWithErr(err)
	}

	db, err := mustOpenStore().OpenCache()
	if err != nil {
		exitWithErr(err)
	}
	defer db.Close()

	rows, err := db.ListPapers(filter)
	if err != nil {
		exitWithErr(err)
	}
	printPapers(rows)
	return nil
}

// buildFilter turns list flags into a cache filter.
func buildFilter(topic string, summarized, unsummarized, imported bool, limit int) (storage.PaperFilter, error) {
	if limit < 0 {
		return storage.PaperFilter{}, apperr.New(apperr.InvalidArgument, "--limit must not be negative")
	}
	filter := storage.PaperFilter{Topic: strings.TrimSpace(topic), Limit: limit}
	switch {
	case summarized:
		filter.Summarized = boolPtr(true)
	case unsummarized:
		filter.Summarized = boolPtr(false)
	}
	if imported {
		filter.Imported = boolPtr(true)
	}
	return filter, nil
}

func runTopics(cmd *cobra.Command, args []string) error {
	db, err := mustOpenStore().OpenCache()
	if err != nil {
		exitWithErr(err)
	}
	defer db.Close()

	counts, err := db.TopicCounts()
	if err != nil {
		exitWithErr(err)
	}
	topics := sortTopicCounts(counts)

	if humanOutput {
		for _, t := range topics {
			outputHuman("%4d  %s\n", t.Papers, t.Topic)
		}
		return nil
	}
	return outputJSON(topics)
}

// sortTopicCounts orders topics by paper count, then name.
func sortTopicCounts(counts map[string]int) []TopicCount {
	topics := make([]TopicCount, 0, len(counts))
	for topic, n := range counts {
		topics = append(topics, TopicCount{Topic: topic, Papers: n})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Papers != topics[j].Papers {
			return topics[i].Papers > topics[j].Papers
		}
		return topics[i].Topic < topics[j].Topic
	})
	return topics
}

// printPapers writes cached rows in the selected output format.
func printPapers(rows []storage.PaperRow) {
	papers := make([]PaperSummary, len(rows))
	for i, r := range rows {
		papers[i] = PaperSummary{
			ID:          r.ID,
			Title:       r.Title,
			Authors:     nonNil(r.Authors),
			Topics:      nonNil(r.Topics),
			CollectedAt: r.CollectedAt.UTC().Format("2006-01-02T15:04:05Z"),
			HasSummary:  r.HasSummary,
			Imported:    r.ImportedAt != nil,
		}
	}

	if !humanOutput {
		outputJSON(PaperListResponse{Success: true, Count: len(papers), Papers: papers})
		return
	}
	if len(papers) == 0 {
		outputHuman("No papers found\n")
		return
	}
	for _, p := range papers {
		flags := ""
		if p.HasSummary {
			flags += "S"
		}
		if p.Imported {
			flags += "I"
		}
		outputHuman("%-12s %-2s %s\n", p.ID, flags, truncateString(p.Title, ListTitleMaxLen))
		outputHuman("%16s%s\n", "", formatAuthorsShort(p.Authors, 3))
	}
}

func boolPtr(b bool) *bool {
	return &b
}
