// Package index maintains the denormalized paper index.
//
// The index is a materialized view over paper records: it is always built
// from records (FromRecords) or merged from other indexes (Merge), pruned
// to records that exist (Retain), and never edited by hand.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
)

// ErrNotFound is returned by Load when the index file does not exist.
var ErrNotFound = errors.New("paper index not found")

const (
	// CurrentVersion is the index format version.
	CurrentVersion = "1.0"

	// MaxAbstractLength is how much of the abstract is copied into the index.
	MaxAbstractLength = 500
)

// Index maps paper IDs to summary entries.
type Index struct {
	Version   string           `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
	Papers    map[string]Entry `json:"papers"`
}

// Entry is the indexed projection of one paper record.
type Entry struct {
	Title       string     `json:"title"`
	Authors     []string   `json:"authors"`
	Abstract    string     `json:"abstract,omitempty"`
	Topics      []string   `json:"topics"`
	CollectedAt time.Time  `json:"collected_at"`
	HasSummary  bool       `json:"has_summary"`
	ImportedAt  *time.Time `json:"imported_at,omitempty"`
}

// New returns an empty index.
func New() *Index {
	return &Index{
		Version: CurrentVersion,
		Papers:  make(map[string]Entry),
	}
}

// EntryFor projects a record into an index entry.
func EntryFor(rec paper.Record) Entry {
	abstract := rec.Abstract
	if r := []rune(abstract); len(r) > MaxAbstractLength {
		abstract = string(r[:MaxAbstractLength])
	}
	authors := rec.Authors
	if authors == nil {
		authors = []string{}
	}
	return Entry{
		Title:       rec.Title,
		Authors:     authors,
		Abstract:    abstract,
		Topics:      paper.NormalizeTopics(rec.Topics),
		CollectedAt: rec.CollectedAt,
		HasSummary:  rec.HasSummary,
		ImportedAt:  rec.ImportedAt,
	}
}

// FromRecords builds an index from records. Records with invalid IDs are ignored.
func FromRecords(records []paper.Record) *Index {
	idx := New()
	for _, rec := range records {
		idx.Put(rec)
	}
	return idx
}

// Put adds or replaces the entry for rec.
func (idx *Index) Put(rec paper.Record) {
	if !paper.ValidID(rec.ID) {
		return
	}
	if idx.Papers == nil {
		idx.Papers = make(map[string]Entry)
	}
	idx.Papers[rec.ID] = EntryFor(rec)
}

// Merge adds every entry of other, replacing entries with the same ID.
func (idx *Index) Merge(other *Index) {
	if other == nil {
		return
	}
	if idx.Papers == nil {
		idx.Papers = make(map[string]Entry)
	}
	for id, e := range other.Papers {
		if paper.ValidID(id) {
			idx.Papers[id] = e
		}
	}
}

// Retain drops every entry for which present returns false and reports the
// dropped IDs.
func (idx *Index) Retain(present func(id string) bool) []string {
	var dropped []string
	for id := range idx.Papers {
		if !paper.ValidID(id) || !present(id) {
			delete(idx.Papers, id)
			dropped = append(dropped, id)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// Subset returns a new index with only the given IDs.
func (idx *Index) Subset(ids []string) *Index {
	sub := New()
	for _, id := range ids {
		if e, ok := idx.Papers[id]; ok {
			sub.Papers[id] = e
		}
	}
	return sub
}

// IDs returns the indexed paper IDs in sorted order.
func (idx *Index) IDs() []string {
	ids := make([]string, 0, len(idx.Papers))
	for id := range idx.Papers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether id is indexed.
func (idx *Index) Has(id string) bool {
	_, ok := idx.Papers[id]
	return ok
}

// Decode parses index JSON. Entries with invalid IDs are dropped.
func Decode(data []byte) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing index: %w", err)
	}
	if idx.Version == "" {
		idx.Version = CurrentVersion
	}
	if idx.Papers == nil {
		idx.Papers = make(map[string]Entry)
	}
	for id := range idx.Papers {
		if !paper.ValidID(id) {
			delete(idx.Papers, id)
		}
	}
	return &idx, nil
}

// Load reads the index at path. Returns ErrNotFound if it does not exist.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return Decode(data)
}

// Save stamps UpdatedAt and writes the index atomically.
func (idx *Index) Save(path string, now time.Time) error {
	idx.UpdatedAt = now.UTC()
	if idx.Version == "" {
		idx.Version = CurrentVersion
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	if err := storage.WriteJSONAtomic(path, idx); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}
