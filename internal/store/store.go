// Package store is the on-disk record store: one directory per paper under
// <root>/papers, a materialized index, and the advisory writer lock.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/index"
	"github.com/matsen/papershelf/internal/logging"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
)

// ErrPaperNotFound is returned when a paper has no record in the store.
var ErrPaperNotFound = errors.New("paper not found")

const (
	stagingPrefix = ".staging-"
	oldPrefix     = ".old-"
)

var log = logging.New("store")

// Store is a record store rooted at a directory.
type Store struct {
	Root string

	// Now is the clock used for index and record stamps.
	Now func() time.Time
}

// Open returns the store at root. A missing root is not an error: it is an
// empty store. Open never writes; writers call Recover once they hold the
// lock.
func Open(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("store root is empty")
	}
	return &Store{Root: root, Now: time.Now}, nil
}

// Recover removes abandoned staging directories and puts back any paper
// directory that was moved aside by a swap that never completed. It must
// only run under the writer lock, since a live writer's staging directory
// looks abandoned from outside.
func (s *Store) Recover() error {
	entries, err := os.ReadDir(config.PapersPath(s.Root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading papers directory: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(config.PapersPath(s.Root), name)
		switch {
		case strings.HasPrefix(name, stagingPrefix):
			log.Warnf("removing abandoned staging directory %s", name)
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("removing %s: %w", name, err)
			}
		case strings.HasPrefix(name, oldPrefix):
			id := idFromAside(name)
			target := config.PaperPath(s.Root, id)
			if _, err := os.Stat(target); os.IsNotExist(err) && paper.ValidID(id) {
				log.Warnf("restoring %s from interrupted replace", id)
				if err := os.Rename(path, target); err != nil {
					return fmt.Errorf("restoring %s: %w", id, err)
				}
				continue
			}
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("removing %s: %w", name, err)
			}
		}
	}
	return nil
}

// idFromAside extracts the paper ID from ".old-<id>-<nonce>".
func idFromAside(name string) string {
	rest := strings.TrimPrefix(name, oldPrefix)
	if i := strings.LastIndex(rest, "-"); i >= 0 {
		return rest[:i]
	}
	return rest
}

// HasPaper reports whether id has a record in the store.
func (s *Store) HasPaper(id string) bool {
	if !paper.ValidID(id) {
		return false
	}
	info, err := os.Stat(config.MetadataPath(s.Root, id))
	return err == nil && info.Mode().IsRegular()
}

// ReadRecord loads the record for id.
func (s *Store) ReadRecord(id string) (paper.Record, error) {
	if err := paper.ValidateID(id); err != nil {
		return paper.Record{}, err
	}
	data, err := os.ReadFile(config.MetadataPath(s.Root, id))
	if err != nil {
		if os.IsNotExist(err) {
			return paper.Record{}, fmt.Errorf("%w: %s", ErrPaperNotFound, id)
		}
		return paper.Record{}, fmt.Errorf("reading record %s: %w", id, err)
	}

	var rec paper.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return paper.Record{}, fmt.Errorf("parsing record %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

// ReadSummary returns the summary text for id and whether one exists.
func (s *Store) ReadSummary(id string) (string, bool, error) {
	if err := paper.ValidateID(id); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(config.SummaryPath(s.Root, id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading summary %s: %w", id, err)
	}
	return string(data), true, nil
}

// PaperIDs lists the IDs of every paper with a record, sorted.
func (s *Store) PaperIDs() ([]string, error) {
	entries, err := os.ReadDir(config.PapersPath(s.Root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading papers directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && s.HasPaper(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// AllRecords loads every readable record. Unreadable records are logged
// and reported by ID in skipped.
func (s *Store) AllRecords() (records []paper.Record, skipped []string, err error) {
	ids, err := s.PaperIDs()
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		rec, err := s.ReadRecord(id)
		if err != nil {
			log.Warnf("skipping unreadable record %s: %v", id, err)
			skipped = append(skipped, id)
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// AnnotationDir returns the directory holding annotations for id.
func (s *Store) AnnotationDir(id string) string {
	return config.AnnotationsPath(s.Root, id)
}

// AnnotationFiles lists the annotation file names for id, sorted.
func (s *Store) AnnotationFiles(id string) ([]string, error) {
	if err := paper.ValidateID(id); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.AnnotationDir(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading annotations for %s: %w", id, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReadAnnotationFile returns the raw bytes of one annotation file.
func (s *Store) ReadAnnotationFile(id, name string) ([]byte, error) {
	if err := checkFileName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.AnnotationDir(id), name))
}

// WriteAnnotationFile atomically creates one annotation file for an existing
// paper. Returns storage.ErrExists if the file is already present.
func (s *Store) WriteAnnotationFile(id, name string, data []byte) error {
	if err := checkFileName(name); err != nil {
		return err
	}
	if !s.HasPaper(id) {
		return fmt.Errorf("%w: %s", ErrPaperNotFound, id)
	}
	dir := s.AnnotationDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating annotations directory: %w", err)
	}
	return storage.WriteFileExclusive(filepath.Join(dir, name), data, 0644)
}

// checkFileName rejects anything but a plain file name.
func checkFileName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

// LoadIndex reads the store's index. Returns index.ErrNotFound if the store
// has never been populated.
func (s *Store) LoadIndex() (*index.Index, error) {
	return index.Load(config.IndexPath(s.Root))
}

// SaveIndex writes idx atomically, stamping it with the store clock.
func (s *Store) SaveIndex(idx *index.Index) error {
	return idx.Save(config.IndexPath(s.Root), s.Now())
}

// RebuildIndex regenerates the index from the records on disk.
func (s *Store) RebuildIndex() (*index.Index, error) {
	records, _, err := s.AllRecords()
	if err != nil {
		return nil, err
	}
	idx := index.FromRecords(records)
	if err := s.SaveIndex(idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// CurrentIndex loads the index, recomputing it from records if it is
// missing or unreadable.
func (s *Store) CurrentIndex() (*index.Index, error) {
	idx, err := s.LoadIndex()
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, index.ErrNotFound) {
		log.Warnf("index unreadable, rebuilding: %v", err)
	}
	records, _, rerr := s.AllRecords()
	if rerr != nil {
		return nil, rerr
	}
	return index.FromRecords(records), nil
}

// Lock takes the store's advisory writer lock. The release function is
// always safe to call.
func (s *Store) Lock(timeout time.Duration) (func(), error) {
	return storage.AcquireLock(config.LockPath(s.Root), timeout)
}
