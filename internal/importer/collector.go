// Package importer parses the output of the paper collector into records.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/papershelf/internal/paper"
)

// ErrCollectorFailed is returned when the collector reported failure.
var ErrCollectorFailed = errors.New("collector reported failure")

// FlexibleString can unmarshal from either string or number JSON values.
// Some tools emit arXiv IDs as bare numbers; json.Number keeps the literal
// text so trailing zeros survive.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*f = ""
		return nil
	}

	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	// Try number
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// CollectorOutput is the JSON document written by the collector.
type CollectorOutput struct {
	Success bool              `json:"success"`
	Query   string            `json:"query"`
	Error   string            `json:"error,omitempty"`
	Papers  []json.RawMessage `json:"papers"`
}

// collectorPaper holds the fields that need normalizing before a paper
// becomes a Record.
type collectorPaper struct {
	ID      FlexibleString  `json:"id"`
	Title   string          `json:"title"`
	Authors json.RawMessage `json:"authors"`
}

// arxivIDPattern finds an arXiv ID in IDs like "arXiv:2401.12345v2" or
// "http://arxiv.org/abs/2401.12345v1".
var arxivIDPattern = regexp.MustCompile(`(?:^|[^0-9])(\d{4}\.\d{4,5})(v\d+)?$`)

// ParseCollector parses collector output. Papers that cannot be converted
// are reported in errs and left out of records.
func ParseCollector(data []byte) (query string, records []paper.Record, errs []error) {
	var out CollectorOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", nil, []error{fmt.Errorf("parsing collector JSON: %w", err)}
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "no error message"
		}
		return out.Query, nil, []error{fmt.Errorf("%w: %s", ErrCollectorFailed, msg)}
	}

	for i, raw := range out.Papers {
		rec, err := collectorPaperToRecord(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("paper %d: %w", i+1, err))
			continue
		}
		records = append(records, rec)
	}
	return out.Query, records, errs
}

// collectorPaperToRecord converts one collector paper. Fields the record
// does not model (categories, pdf_url, ...) are kept in Record.Extra.
func collectorPaperToRecord(raw json.RawMessage) (paper.Record, error) {
	var p collectorPaper
	if err := json.Unmarshal(raw, &p); err != nil {
		return paper.Record{}, err
	}

	id, err := NormalizeID(p.ID.String())
	if err != nil {
		return paper.Record{}, err
	}
	title := collapseSpace(p.Title)
	if title == "" {
		return paper.Record{}, fmt.Errorf("%s: missing required field 'title'", id)
	}
	authors, err := parseAuthors(p.Authors)
	if err != nil {
		return paper.Record{}, fmt.Errorf("%s: %w", id, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return paper.Record{}, err
	}
	fields["id"] = json.RawMessage(strconv.Quote(id))
	fields["title"] = json.RawMessage(strconv.Quote(title))
	authorsJSON, err := json.Marshal(authors)
	if err != nil {
		return paper.Record{}, err
	}
	fields["authors"] = authorsJSON

	normalized, err := json.Marshal(fields)
	if err != nil {
		return paper.Record{}, err
	}
	var rec paper.Record
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return paper.Record{}, fmt.Errorf("%s: %w", id, err)
	}
	rec.Abstract = collapseSpace(rec.Abstract)
	return rec, nil
}

// NormalizeID extracts a bare arXiv ID, dropping any "arXiv:" prefix, URL
// or version suffix.
func NormalizeID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("missing required field 'id'")
	}
	m := arxivIDPattern.FindStringSubmatch(s)
	if m == nil || !paper.ValidID(m[1]) {
		return "", fmt.Errorf("%w: %q", paper.ErrInvalidID, raw)
	}
	return m[1], nil
}

// parseAuthors accepts either a list of names or a list of {"name": ...}
// objects.
func parseAuthors(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return cleanNames(names), nil
	}

	var objs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil, fmt.Errorf("authors must be a list of names")
	}
	names = make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Name
	}
	return cleanNames(names), nil
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = collapseSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// collapseSpace joins wrapped lines and runs of whitespace, as found in
// arXiv Atom titles and abstracts.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
