package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
)

var errUnitFinished = errors.New("unit already finished")

// Unit stages every file of one paper in a hidden directory and installs
// them together, so a reader sees either the old paper or the new one.
type Unit struct {
	st   *Store
	id   string
	dir  string
	done bool
}

// NewUnit starts staging files for id.
func (s *Store) NewUnit(id string) (*Unit, error) {
	if err := paper.ValidateID(id); err != nil {
		return nil, err
	}
	papersDir := config.PapersPath(s.Root)
	if err := os.MkdirAll(papersDir, 0755); err != nil {
		return nil, fmt.Errorf("creating papers directory: %w", err)
	}
	dir, err := os.MkdirTemp(papersDir, stagingPrefix+id+"-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	if err := os.Chmod(dir, 0755); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("setting staging directory mode: %w", err)
	}
	return &Unit{st: s, id: id, dir: dir}, nil
}

// WriteRecord stages metadata.json.
func (u *Unit) WriteRecord(rec paper.Record) error {
	if rec.ID != u.id {
		return fmt.Errorf("record id %q does not match unit %q", rec.ID, u.id)
	}
	data, err := storage.MarshalJSON(rec)
	if err != nil {
		return err
	}
	return u.writeFile(config.MetadataFile, data)
}

// WriteSummary stages summary.md.
func (u *Unit) WriteSummary(text string) error {
	return u.writeFile(config.SummaryFile, []byte(text))
}

// WriteAnnotation stages one annotation file. Returns storage.ErrExists if
// the name was already staged.
func (u *Unit) WriteAnnotation(name string, data []byte) error {
	if u.done {
		return errUnitFinished
	}
	if err := checkFileName(name); err != nil {
		return err
	}
	dir := filepath.Join(u.dir, config.AnnotationsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating staged annotations directory: %w", err)
	}
	if err := storage.CreateFileSync(filepath.Join(dir, name), data, 0644); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return fmt.Errorf("%w: %s", storage.ErrExists, name)
		}
		return fmt.Errorf("staging annotation %s for %s: %w", name, u.id, err)
	}
	return nil
}

func (u *Unit) writeFile(name string, data []byte) error {
	if u.done {
		return errUnitFinished
	}
	if err := storage.WriteFileSync(filepath.Join(u.dir, name), data, 0644); err != nil {
		return fmt.Errorf("staging %s for %s: %w", name, u.id, err)
	}
	return nil
}

// Commit installs the staged paper. A new paper is installed with one
// rename. An existing paper is moved aside, replaced, then removed; if the
// replacement rename fails the old directory is put back.
func (u *Unit) Commit() error {
	if u.done {
		return errUnitFinished
	}
	u.done = true

	if _, err := os.Stat(filepath.Join(u.dir, config.MetadataFile)); err != nil {
		os.RemoveAll(u.dir)
		return fmt.Errorf("unit for %s has no record", u.id)
	}

	// The staged entries must be durable before the rename publishes them.
	storage.SyncDir(filepath.Join(u.dir, config.AnnotationsDir))
	storage.SyncDir(u.dir)

	papersDir := config.PapersPath(u.st.Root)
	target := config.PaperPath(u.st.Root, u.id)

	if _, err := os.Lstat(target); os.IsNotExist(err) {
		if err := os.Rename(u.dir, target); err != nil {
			os.RemoveAll(u.dir)
			return fmt.Errorf("installing %s: %w", u.id, err)
		}
		storage.SyncDir(papersDir)
		return nil
	}

	aside := filepath.Join(papersDir, fmt.Sprintf("%s%s-%d", oldPrefix, u.id, u.st.Now().UnixNano()))
	if err := os.Rename(target, aside); err != nil {
		os.RemoveAll(u.dir)
		return fmt.Errorf("moving aside %s: %w", u.id, err)
	}
	if err := os.Rename(u.dir, target); err != nil {
		if rerr := os.Rename(aside, target); rerr != nil {
			log.Errorf("could not restore %s from %s: %v", u.id, aside, rerr)
		}
		os.RemoveAll(u.dir)
		return fmt.Errorf("replacing %s: %w", u.id, err)
	}
	storage.SyncDir(papersDir)

	if err := os.RemoveAll(aside); err != nil {
		log.Warnf("could not remove replaced copy of %s: %v", u.id, err)
	}
	return nil
}

// Abort discards the staged files. Safe to call after Commit.
func (u *Unit) Abort() {
	if u.done {
		return
	}
	u.done = true
	os.RemoveAll(u.dir)
}
