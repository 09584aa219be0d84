package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/matsen/papershelf/internal/paper"
)

// Paper is a record with its summary text, as rendered by the exporters.
type Paper struct {
	Record  paper.Record
	Summary string // Empty when the paper has no summary or it was not requested
}

// ToMarkdown renders one paper as a Markdown document.
func ToMarkdown(p Paper, exportedAt time.Time) string {
	rec := p.Record
	var b strings.Builder

	title := rec.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**arXiv:** [%s](https://arxiv.org/abs/%s)\n", rec.ID, rec.ID)
	if len(rec.Authors) > 0 {
		fmt.Fprintf(&b, "**Authors:** %s\n", strings.Join(rec.Authors, ", "))
	}
	if rec.Published != "" {
		fmt.Fprintf(&b, "**Published:** %s\n", rec.Published)
	}
	if cats := Categories(rec); len(cats) > 0 {
		fmt.Fprintf(&b, "**Categories:** %s\n", strings.Join(cats, ", "))
	}
	if len(rec.Topics) > 0 {
		fmt.Fprintf(&b, "**Topics:** %s\n", strings.Join(rec.Topics, ", "))
	}

	b.WriteString("\n## Abstract\n\n")
	if rec.Abstract != "" {
		b.WriteString(rec.Abstract)
	} else {
		b.WriteString("*No abstract available*")
	}
	b.WriteString("\n\n")

	if p.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(strings.TrimRight(p.Summary, "\n"))
		b.WriteString("\n\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "*Exported on %s*\n", exportedAt.UTC().Format("2006-01-02"))
	return b.String()
}

// MarkdownFileName is the file name used for a paper's Markdown export.
func MarkdownFileName(id string) string {
	return "paper_" + id + ".md"
}
