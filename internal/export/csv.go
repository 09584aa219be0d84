package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
)

// csvHeader lists the CSV columns in order.
var csvHeader = []string{
	"id",
	"title",
	"authors",
	"published",
	"categories",
	"topics",
	"has_summary",
	"pdf_url",
	"collected_at",
}

// WriteCSV writes one row per paper. List-valued columns are joined with
// "; ".
func WriteCSV(w io.Writer, papers []Paper) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, p := range papers {
		rec := p.Record
		collected := ""
		if !rec.CollectedAt.IsZero() {
			collected = rec.CollectedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			rec.ID,
			rec.Title,
			strings.Join(rec.Authors, "; "),
			rec.Published,
			strings.Join(Categories(rec), "; "),
			strings.Join(rec.Topics, "; "),
			strconv.FormatBool(rec.HasSummary),
			extraString(rec, "pdf_url"),
			collected,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
