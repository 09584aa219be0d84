package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/matsen/papershelf/internal/paper"
)

func TestToMarkdown(t *testing.T) {
	rec := testRecord()
	rec.Topics = []string{"phylogenetics"}
	exported := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	got := ToMarkdown(Paper{Record: rec, Summary: "Short summary.\n"}, exported)

	for _, want := range []string{
		"# Test Paper Title\n",
		"**arXiv:** [2401.12345](https://arxiv.org/abs/2401.12345)",
		"**Authors:** John Smith, Jane Q. Doe",
		"**Published:** 2024-01-15",
		"**Categories:** q-bio.PE, stat.ML",
		"**Topics:** phylogenetics",
		"## Abstract\n\nThis is the abstract\n",
		"## Summary\n\nShort summary.\n",
		"*Exported on 2024-02-01*",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ToMarkdown() should contain %q, got:\n%s", want, got)
		}
	}
}

func TestToMarkdown_Minimal(t *testing.T) {
	got := ToMarkdown(Paper{Record: paper.Record{ID: "2401.00001"}}, time.Now())

	if !strings.HasPrefix(got, "# Untitled\n") {
		t.Errorf("ToMarkdown() should fall back to Untitled, got:\n%s", got)
	}
	if !strings.Contains(got, "*No abstract available*") {
		t.Errorf("ToMarkdown() should note the missing abstract, got:\n%s", got)
	}
	if strings.Contains(got, "## Summary") || strings.Contains(got, "**Authors:**") {
		t.Errorf("ToMarkdown() should omit empty sections, got:\n%s", got)
	}
	if MarkdownFileName("2401.00001") != "paper_2401.00001.md" {
		t.Errorf("MarkdownFileName() = %q", MarkdownFileName("2401.00001"))
	}
}

func TestWriteCSV(t *testing.T) {
	rec := testRecord()
	rec.Title = `Trees, "Forests", and more`
	rec.HasSummary = true
	rec.CollectedAt = time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, []Paper{{Record: rec}, {Record: paper.Record{ID: "2401.00002"}}}); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != "id,title,authors,published,categories,topics,has_summary,pdf_url,collected_at" {
		t.Errorf("header = %v", rows[0])
	}

	want := []string{
		"2401.12345",
		`Trees, "Forests", and more`,
		"John Smith; Jane Q. Doe",
		"2024-01-15",
		"q-bio.PE; stat.ML",
		"",
		"true",
		"https://arxiv.org/pdf/2401.12345.pdf",
		"2024-01-20T08:00:00Z",
	}
	for i, w := range want {
		if rows[1][i] != w {
			t.Errorf("row[%d] = %q, want %q", i, rows[1][i], w)
		}
	}
	if rows[2][6] != "false" || rows[2][8] != "" {
		t.Errorf("minimal row = %v", rows[2])
	}
}
