package store

import (
	"errors"

	"github.com/matsen/papershelf/internal/index"
)

// CheckReport describes how the index and the records on disk disagree.
type CheckReport struct {
	Papers         int      `json:"papers"`
	Indexed        int      `json:"indexed"`
	NotIndexed     []string `json:"not_indexed"`     // Records missing from the index
	Orphaned       []string `json:"orphaned"`        // Index entries with no record
	Unreadable     []string `json:"unreadable"`      // Records that fail to parse
	SummaryMissing []string `json:"summary_missing"` // has_summary set but no summary.md
	IndexMissing   bool     `json:"index_missing"`
}

// OK reports whether the store is consistent.
func (r *CheckReport) OK() bool {
	return !r.IndexMissing && len(r.NotIndexed) == 0 && len(r.Orphaned) == 0 &&
		len(r.Unreadable) == 0 && len(r.SummaryMissing) == 0
}

// Check compares the index against the records on disk. It never writes.
func (s *Store) Check() (*CheckReport, error) {
	report := &CheckReport{
		NotIndexed:     []string{},
		Orphaned:       []string{},
		Unreadable:     []string{},
		SummaryMissing: []string{},
	}

	records, unreadable, err := s.AllRecords()
	if err != nil {
		return nil, err
	}
	report.Papers = len(records) + len(unreadable)
	report.Unreadable = append(report.Unreadable, unreadable...)

	idx, err := s.LoadIndex()
	if errors.Is(err, index.ErrNotFound) {
		report.IndexMissing = report.Papers > 0
		idx = index.New()
	} else if err != nil {
		return nil, err
	}
	report.Indexed = len(idx.Papers)

	onDisk := make(map[string]bool)
	for _, rec := range records {
		onDisk[rec.ID] = true
		if !idx.Has(rec.ID) {
			report.NotIndexed = append(report.NotIndexed, rec.ID)
		}
		if rec.HasSummary {
			if _, ok, _ := s.ReadSummary(rec.ID); !ok {
				report.SummaryMissing = append(report.SummaryMissing, rec.ID)
			}
		}
	}
	for _, id := range unreadable {
		onDisk[id] = true
	}
	for _, id := range idx.IDs() {
		if !onDisk[id] {
			report.Orphaned = append(report.Orphaned, id)
		}
	}
	return report, nil
}
