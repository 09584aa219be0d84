package store

import (
	"fmt"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
)

// AddResult reports what AddRecords did with each record.
type AddResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
	Invalid []string `json:"invalid,omitempty"`
}

// AddRecords stores records from the collector. Papers already present are
// skipped untouched; new papers get collected_at stamped and topic added.
// The index is updated once at the end.
func (s *Store) AddRecords(records []paper.Record, topic string) (*AddResult, error) {
	result := &AddResult{Added: []string{}, Skipped: []string{}}
	now := s.Now().UTC()

	var added []paper.Record
	seen := make(map[string]bool)
	for _, rec := range records {
		if !paper.ValidID(rec.ID) {
			log.Warnf("skipping record with invalid id %q", rec.ID)
			result.Invalid = append(result.Invalid, rec.ID)
			continue
		}
		if seen[rec.ID] || s.HasPaper(rec.ID) {
			result.Skipped = append(result.Skipped, rec.ID)
			continue
		}
		seen[rec.ID] = true

		if rec.CollectedAt.IsZero() {
			rec.CollectedAt = now
		}
		if topic != "" {
			rec.Topics = append(rec.Topics, topic)
		}
		rec.Topics = paper.NormalizeTopics(rec.Topics)
		rec.HasSummary = false
		rec.SummaryGeneratedAt = nil

		unit, err := s.NewUnit(rec.ID)
		if err != nil {
			return result, err
		}
		if err := unit.WriteRecord(rec); err != nil {
			unit.Abort()
			return result, err
		}
		if err := unit.Commit(); err != nil {
			return result, err
		}
		added = append(added, rec)
		result.Added = append(result.Added, rec.ID)
	}

	if len(added) == 0 {
		return result, nil
	}

	idx, err := s.CurrentIndex()
	if err != nil {
		return result, err
	}
	for _, rec := range added {
		idx.Put(rec)
	}
	idx.Retain(s.HasPaper)
	if err := s.SaveIndex(idx); err != nil {
		return result, err
	}
	return result, nil
}

// SetSummary stores summary text for an existing paper and marks the record
// and index as summarized.
func (s *Store) SetSummary(id, text string) (paper.Record, error) {
	rec, err := s.ReadRecord(id)
	if err != nil {
		return paper.Record{}, err
	}

	if err := storage.WriteFileAtomic(config.SummaryPath(s.Root, id), []byte(text), 0644); err != nil {
		return paper.Record{}, fmt.Errorf("writing summary: %w", err)
	}

	now := s.Now().UTC()
	rec.HasSummary = true
	rec.SummaryGeneratedAt = &now
	data, err := storage.MarshalJSON(rec)
	if err != nil {
		return paper.Record{}, err
	}
	if err := storage.WriteFileAtomic(config.MetadataPath(s.Root, id), data, 0644); err != nil {
		return paper.Record{}, fmt.Errorf("writing record: %w", err)
	}

	idx, err := s.CurrentIndex()
	if err != nil {
		return rec, err
	}
	idx.Put(rec)
	if err := s.SaveIndex(idx); err != nil {
		return rec, err
	}
	return rec, nil
}
