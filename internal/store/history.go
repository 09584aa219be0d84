package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/storage"
)

// HistoryEntry records one completed package import.
type HistoryEntry struct {
	ImportedAt      time.Time `json:"imported_at"`
	Source          string    `json:"source"`
	CreatedBy       string    `json:"created_by,omitempty"`
	ImportedIDs     []string  `json:"imported_ids"`
	SkippedIDs      []string  `json:"skipped_ids"`
	Failed          []string  `json:"failed,omitempty"`
	AnnotationCount int       `json:"annotation_count"`
}

// AppendHistory appends entry to the import history.
func (s *Store) AppendHistory(entry HistoryEntry) error {
	path := config.HistoryPath(s.Root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	return storage.AppendJSONL(path, entry)
}

// History returns every recorded import, oldest first.
func (s *Store) History() ([]HistoryEntry, error) {
	return storage.ReadJSONL[HistoryEntry](config.HistoryPath(s.Root))
}
