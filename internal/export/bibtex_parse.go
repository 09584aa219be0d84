package export

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/matsen/papershelf/internal/paper"
)

// BibTeXIndex indexes the entries of an existing .bib file so that
// appending never duplicates a paper.
type BibTeXIndex struct {
	// Keys maps citation keys to true for existence check
	Keys map[string]bool
	// Eprints maps arXiv IDs to citation keys
	Eprints map[string]string
	// DOIs maps normalized DOIs to citation keys
	DOIs map[string]string
}

// NewBibTeXIndex creates an empty BibTeX index.
func NewBibTeXIndex() *BibTeXIndex {
	return &BibTeXIndex{
		Keys:    make(map[string]bool),
		Eprints: make(map[string]string),
		DOIs:    make(map[string]string),
	}
}

// Has reports whether the .bib file already holds rec, matched by arXiv ID,
// then DOI, then citation key.
func (idx *BibTeXIndex) Has(rec paper.Record) bool {
	if _, ok := idx.Eprints[rec.ID]; ok {
		return true
	}
	if doi := extraString(rec, "doi"); doi != "" {
		if _, ok := idx.DOIs[normalizeDOI(doi)]; ok {
			return true
		}
	}
	return idx.Keys[rec.ID]
}

var (
	// Match entry start: @type{key,
	entryStartRegex = regexp.MustCompile(`@\w+\{([^,]+),`)
	// Match eprint or doi fields: name = {value} or name = "value"
	fieldRegex = regexp.MustCompile(`(?i)^\s*(eprint|doi)\s*=\s*[\{"]([^\}"]+)[\}"]`)
)

// ParseBibTeXFile builds an index from an existing .bib file.
// Returns an empty index if the file doesn't exist or is empty.
func ParseBibTeXFile(path string) (*BibTeXIndex, error) {
	idx := NewBibTeXIndex()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var currentKey string

	for scanner.Scan() {
		line := scanner.Text()

		if matches := entryStartRegex.FindStringSubmatch(line); len(matches) > 1 {
			currentKey = strings.TrimSpace(matches[1])
			idx.Keys[currentKey] = true
		}

		matches := fieldRegex.FindStringSubmatch(line)
		if len(matches) < 3 || currentKey == "" {
			continue
		}
		value := strings.TrimSpace(matches[2])
		switch strings.ToLower(matches[1]) {
		case "eprint":
			idx.Eprints[value] = currentKey
		case "doi":
			if doi := normalizeDOI(value); doi != "" {
				idx.DOIs[doi] = currentKey
			}
		}
	}

	return idx, scanner.Err()
}

// normalizeDOI normalizes a DOI for comparison.
// Removes common prefixes like "https://doi.org/" and lowercases.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi.org/", "DOI:", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.ToLower(doi)
}

// AppendToBibFile appends the records that path does not hold yet and
// returns the IDs it appended.
func AppendToBibFile(path string, recs []paper.Record) ([]string, error) {
	idx, err := ParseBibTeXFile(path)
	if err != nil {
		return nil, err
	}

	var fresh []paper.Record
	var ids []string
	for _, rec := range recs {
		if idx.Has(rec) {
			continue
		}
		fresh = append(fresh, rec)
		ids = append(ids, rec.ID)
		idx.Eprints[rec.ID] = rec.ID
	}
	if len(fresh) == 0 {
		return ids, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Ensure we start on a new line
	if _, err := file.WriteString("\n" + ToBibTeXList(fresh)); err != nil {
		return nil, err
	}
	return ids, nil
}
