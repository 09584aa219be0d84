package store

import (
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/index"
	"github.com/matsen/papershelf/internal/storage"
)

// IndexHash returns the BLAKE2b-256 fingerprint of the index file.
func (s *Store) IndexHash() (string, error) {
	data, err := os.ReadFile(config.IndexPath(s.Root))
	if err != nil {
		if os.IsNotExist(err) {
			return "", index.ErrNotFound
		}
		return "", fmt.Errorf("reading index: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// OpenCache opens the SQLite query cache, rebuilding it first if it was
// built from a different index. The caller must close the returned DB.
func (s *Store) OpenCache() (*storage.DB, error) {
	hash, err := s.IndexHash()
	if err != nil {
		return nil, err
	}
	idx, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.CachePath(s.Root), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := storage.OpenDB(config.DBPath(s.Root))
	if err != nil {
		return nil, err
	}

	cached, err := db.SourceHash()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading cache fingerprint: %w", err)
	}
	if cached == hash {
		return db, nil
	}

	log.Debugf("query cache stale, rebuilding from index")
	if _, err := db.Rebuild(rowsFromIndex(idx), hash); err != nil {
		db.Close()
		return nil, fmt.Errorf("rebuilding query cache: %w", err)
	}
	return db, nil
}

func rowsFromIndex(idx *index.Index) []storage.PaperRow {
	rows := make([]storage.PaperRow, 0, len(idx.Papers))
	for _, id := range idx.IDs() {
		e := idx.Papers[id]
		rows = append(rows, storage.PaperRow{
			ID:          id,
			Title:       e.Title,
			Authors:     e.Authors,
			Abstract:    e.Abstract,
			Topics:      e.Topics,
			CollectedAt: e.CollectedAt,
			HasSummary:  e.HasSummary,
			ImportedAt:  e.ImportedAt,
		})
	}
	return rows
}
