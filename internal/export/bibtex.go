// Package export renders paper records as BibTeX, Markdown or CSV.
package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/matsen/papershelf/internal/paper"
)

// ToBibTeX converts a record to a BibTeX entry keyed by its paper ID.
func ToBibTeX(rec paper.Record) string {
	entryType, venue := determineEntryType(rec)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, rec.ID))

	// Authors
	if len(rec.Authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(rec.Authors)))
	}

	// Title
	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(rec.Title)))

	// Venue
	if venue != "" {
		fieldName := "journal"
		if entryType == "inproceedings" {
			fieldName = "booktitle"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(venue)))
	}

	year, month := publicationDate(rec)
	if year > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", year))
	}
	if month > 0 {
		b.WriteString(fmt.Sprintf("  month = {%d},\n", month))
	}

	// arXiv identity
	b.WriteString(fmt.Sprintf("  eprint = {%s},\n", rec.ID))
	b.WriteString("  archivePrefix = {arXiv},\n")
	if cats := Categories(rec); len(cats) > 0 {
		b.WriteString(fmt.Sprintf("  primaryClass = {%s},\n", cats[0]))
	}

	// DOI (optional)
	if doi := extraString(rec, "doi"); doi != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", doi))
	}

	// Abstract (optional, if present)
	if rec.Abstract != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(rec.Abstract)))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple records to BibTeX format.
func ToBibTeXList(recs []paper.Record) string {
	var entries []string
	for _, rec := range recs {
		entries = append(entries, ToBibTeX(rec))
	}
	return strings.Join(entries, "\n")
}

// determineEntryType returns the BibTeX entry type and venue. Papers with a
// journal reference are articles or proceedings; the rest are preprints.
func determineEntryType(rec paper.Record) (string, string) {
	venue := extraString(rec, "journal_ref")
	if venue == "" {
		return "misc", ""
	}

	v := strings.ToLower(venue)
	if strings.Contains(v, "proceedings") ||
		strings.Contains(v, "conference") ||
		strings.Contains(v, "workshop") ||
		strings.Contains(v, "symposium") {
		return "inproceedings", venue
	}
	return "article", venue
}

// publicationDate returns the year and month from the published date, or
// from the YYMM prefix of the arXiv ID when the date is missing.
func publicationDate(rec paper.Record) (year, month int) {
	if len(rec.Published) >= 4 {
		if y, err := strconv.Atoi(rec.Published[:4]); err == nil {
			year = y
			if len(rec.Published) >= 7 {
				if m, err := strconv.Atoi(rec.Published[5:7]); err == nil && m >= 1 && m <= 12 {
					month = m
				}
			}
			return year, month
		}
	}
	if len(rec.ID) >= 4 {
		yy, err1 := strconv.Atoi(rec.ID[:2])
		mm, err2 := strconv.Atoi(rec.ID[2:4])
		if err1 == nil && err2 == nil && mm >= 1 && mm <= 12 {
			return 2000 + yy, mm
		}
	}
	return 0, 0
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First".
// The last word of a name is taken as the family name.
func formatAuthors(authors []string) string {
	var formatted []string
	for _, a := range authors {
		fields := strings.Fields(a)
		switch len(fields) {
		case 0:
			continue
		case 1:
			formatted = append(formatted, escapeLatex(fields[0]))
		default:
			last := fields[len(fields)-1]
			first := strings.Join(fields[:len(fields)-1], " ")
			formatted = append(formatted, escapeLatex(fmt.Sprintf("%s, %s", last, first)))
		}
	}
	return strings.Join(formatted, " and ")
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Order matters: & must be first (before other escapes that might produce &)
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}

// Categories returns the arXiv categories kept in the record's extra fields.
func Categories(rec paper.Record) []string {
	raw, ok := rec.Extra["categories"]
	if !ok {
		return nil
	}
	var cats []string
	if err := json.Unmarshal(raw, &cats); err != nil {
		return nil
	}
	return cats
}

// extraString returns a string-valued extra field, or "".
func extraString(rec paper.Record, key string) string {
	raw, ok := rec.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
