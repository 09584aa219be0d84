// Package merge reconciles a validated package into a local store.
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/matsen/papershelf/internal/annotation"
	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/bundle"
	"github.com/matsen/papershelf/internal/index"
	"github.com/matsen/papershelf/internal/logging"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
	"github.com/matsen/papershelf/internal/store"
)

var log = logging.New("merge")

// Options controls how conflicts with local papers are resolved.
type Options struct {
	Overwrite bool
	Source    string // Recorded as imported_from on written records
}

// Result reports the outcome of a merge.
type Result struct {
	ImportedCount   int       `json:"imported_count"`
	SkippedCount    int       `json:"skipped_count"`
	AnnotationCount int       `json:"annotation_count"` // Annotation files newly written
	ImportedIDs     []string  `json:"imported_ids"`
	SkippedIDs      []string  `json:"skipped_ids"`
	Failed          []Failure `json:"failed"`
	Dropped         []string  `json:"dropped"`
}

// Failure is one paper that could not be merged.
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Error is a merge that failed as a whole. Result holds whatever was written
// before the failure, so a later run can reconcile.
type Error struct {
	Result *Result
	Err    error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// outcome is what happened to one paper.
type outcome int

const (
	imported outcome = iota
	skipped
)

// Merge copies the papers of pkg into st. A failure on one paper is logged
// and recorded in Result.Failed; the others still go through. The merge
// fails as a whole only when every paper failed or the index cannot be
// written. The caller holds the store lock.
func Merge(st *store.Store, pkg *bundle.Package, opts Options) (*Result, error) {
	result := &Result{
		ImportedIDs: []string{},
		SkippedIDs:  []string{},
		Failed:      []Failure{},
		Dropped:     append([]string{}, pkg.Dropped...),
	}
	now := st.Now().UTC().Truncate(time.Second)

	var written []paper.Record
	for _, entry := range pkg.Papers {
		m := &paperMerge{st: st, entry: entry, opts: opts, now: now}
		out, err := m.run()
		result.AnnotationCount += m.annotations
		if err != nil {
			log.Errorf("failed to import %s: %v", entry.ID, err)
			result.Failed = append(result.Failed, Failure{ID: entry.ID, Error: err.Error()})
			continue
		}
		switch out {
		case imported:
			result.ImportedIDs = append(result.ImportedIDs, entry.ID)
			written = append(written, m.record)
		case skipped:
			result.SkippedIDs = append(result.SkippedIDs, entry.ID)
		}
	}
	result.ImportedCount = len(result.ImportedIDs)
	result.SkippedCount = len(result.SkippedIDs)

	if len(pkg.Papers) > 0 && len(result.Failed) == len(pkg.Papers) {
		return result, &Error{
			Result: result,
			Err: apperr.New(apperr.FileError, "no papers could be imported").
				WithDetails("%d of %d papers failed; first: %s", len(result.Failed), len(pkg.Papers), result.Failed[0].Error),
		}
	}

	if err := updateIndex(st, written); err != nil {
		return result, &Error{
			Result: result,
			Err: apperr.Wrap(apperr.FileError, err, "writing paper index").
				WithHint(fmt.Sprintf("Imported %v before the failure; run 'shelf rebuild' to reconcile.", result.ImportedIDs)),
		}
	}

	log.Infof("imported %d, skipped %d, failed %d, %d new annotations",
		result.ImportedCount, result.SkippedCount, len(result.Failed), result.AnnotationCount)
	return result, nil
}

// updateIndex recomputes the index as the existing entries plus the written
// records, limited to papers present on disk. It is left alone when nothing
// changed.
func updateIndex(st *store.Store, written []paper.Record) error {
	_, loadErr := st.LoadIndex()
	idx, err := st.CurrentIndex()
	if err != nil {
		return err
	}
	idx.Merge(index.FromRecords(written))
	dropped := idx.Retain(st.HasPaper)
	if len(dropped) > 0 {
		log.Warnf("removed %d index entries with no record: %v", len(dropped), dropped)
	}

	if len(written) == 0 && len(dropped) == 0 && loadErr == nil {
		return nil
	}
	return st.SaveIndex(idx)
}

// paperMerge merges one package paper.
type paperMerge struct {
	st    *store.Store
	entry bundle.PaperEntry
	opts  Options
	now   time.Time

	record      paper.Record // Written record, when imported
	annotations int          // Annotation files newly written
}

func (m *paperMerge) run() (outcome, error) {
	id := m.entry.ID
	if !m.st.HasPaper(id) {
		return imported, m.install(nil)
	}
	if !m.opts.Overwrite {
		log.Debugf("%s already present; skipping", id)
		return skipped, m.addMissingAnnotations()
	}

	local, err := m.st.ReadRecord(id)
	if err != nil {
		log.Warnf("local record of %s unreadable, replacing it: %v", id, err)
		return imported, m.install(nil)
	}
	localSummary, hasLocalSummary, err := m.st.ReadSummary(id)
	if err != nil {
		return 0, err
	}

	sameSummary := !m.entry.HasSummary || (hasLocalSummary && localSummary == m.entry.Summary)
	if local.SameContent(m.entry.Record) && sameSummary {
		log.Debugf("%s unchanged; skipping", id)
		return skipped, m.addMissingAnnotations()
	}
	return imported, m.install(&localCopy{record: local, summary: localSummary, hasSummary: hasLocalSummary})
}

// localCopy is the paper being replaced.
type localCopy struct {
	record     paper.Record
	summary    string
	hasSummary bool
}

// install stages the package paper as a unit and commits it. When local is
// set the unit replaces it: collected_at is kept, the local summary is kept
// if the package has none, and local annotations are carried over.
func (m *paperMerge) install(local *localCopy) error {
	id := m.entry.ID
	rec := m.entry.Record
	rec.Topics = paper.NormalizeTopics(rec.Topics)
	if rec.Authors == nil {
		rec.Authors = []string{}
	}
	if rec.CollectedAt.IsZero() {
		rec.CollectedAt = m.now
	}
	importedAt := m.now
	rec.ImportedAt = &importedAt
	rec.ImportedFrom = m.opts.Source

	summary := ""
	switch {
	case m.entry.HasSummary:
		summary = m.entry.Summary
		rec.HasSummary = true
		if rec.SummaryGeneratedAt == nil {
			rec.SummaryGeneratedAt = &importedAt
		}
	case local != nil && local.hasSummary:
		summary = local.summary
		rec.HasSummary = true
		rec.SummaryGeneratedAt = local.record.SummaryGeneratedAt
	default:
		rec.HasSummary = false
		rec.SummaryGeneratedAt = nil
	}
	if local != nil && !local.record.CollectedAt.IsZero() {
		rec.CollectedAt = local.record.CollectedAt
	}

	unit, err := m.st.NewUnit(id)
	if err != nil {
		return err
	}
	defer unit.Abort()

	if err := unit.WriteRecord(rec); err != nil {
		return err
	}
	if rec.HasSummary {
		if err := unit.WriteSummary(summary); err != nil {
			return err
		}
	}

	seen := make(map[annotation.Key]bool)
	names := make(map[string]bool)
	if local != nil {
		keys, err := m.copyLocalAnnotations(unit, names)
		if err != nil {
			return err
		}
		seen = keys
	}

	added := 0
	for _, a := range m.entry.Annotations {
		name := a.FileName()
		if seen[a.Key()] || names[name] {
			log.Debugf("annotation %s of %s already present", name, id)
			continue
		}
		data, err := storage.MarshalJSON(a)
		if err != nil {
			return err
		}
		if err := unit.WriteAnnotation(name, data); err != nil {
			return err
		}
		seen[a.Key()] = true
		names[name] = true
		added++
	}

	if err := unit.Commit(); err != nil {
		return err
	}
	m.record = rec
	m.annotations = added
	return nil
}

// copyLocalAnnotations stages every local annotation file unchanged and
// returns the identities of those that decode. Names are added to names.
func (m *paperMerge) copyLocalAnnotations(unit *store.Unit, names map[string]bool) (map[annotation.Key]bool, error) {
	id := m.entry.ID
	files, err := m.st.AnnotationFiles(id)
	if err != nil {
		return nil, err
	}

	keys := make(map[annotation.Key]bool)
	for _, name := range files {
		data, err := m.st.ReadAnnotationFile(id, name)
		if err != nil {
			return nil, fmt.Errorf("reading local annotation %s: %w", name, err)
		}
		if err := unit.WriteAnnotation(name, data); err != nil {
			return nil, err
		}
		names[name] = true
		if a, err := annotation.Decode(data); err == nil {
			keys[a.Key()] = true
		}
	}
	return keys, nil
}

// addMissingAnnotations writes the package annotations that the local paper
// lacks, one atomic file each. Existing identities are never overwritten.
func (m *paperMerge) addMissingAnnotations() error {
	id := m.entry.ID
	if len(m.entry.Annotations) == 0 {
		return nil
	}

	local, err := m.localAnnotations()
	if err != nil {
		return err
	}

	for _, a := range m.entry.Annotations {
		data, err := storage.MarshalJSON(a)
		if err != nil {
			return err
		}
		if existing, ok := local[a.Key()]; ok {
			if existing.Content != a.Content || existing.Type != a.Type {
				log.Warnf("annotation %s of %s differs from the local copy; keeping local", a.FileName(), id)
			}
			continue
		}

		err = m.st.WriteAnnotationFile(id, a.FileName(), data)
		if errors.Is(err, storage.ErrExists) {
			if current, rerr := m.st.ReadAnnotationFile(id, a.FileName()); rerr == nil && !bytes.Equal(current, data) {
				log.Warnf("annotation file %s of %s differs from the package copy; keeping local", a.FileName(), id)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("writing annotation %s: %w", a.FileName(), err)
		}
		local[a.Key()] = a
		m.annotations++
	}
	return nil
}

// localAnnotations decodes the local annotations of the paper, keyed by
// identity. Unreadable files are skipped.
func (m *paperMerge) localAnnotations() (map[annotation.Key]annotation.Annotation, error) {
	id := m.entry.ID
	files, err := m.st.AnnotationFiles(id)
	if err != nil {
		return nil, err
	}
	out := make(map[annotation.Key]annotation.Annotation, len(files))
	for _, name := range files {
		data, err := m.st.ReadAnnotationFile(id, name)
		if err != nil {
			log.Warnf("skipping unreadable annotation %s of %s: %v", name, id, err)
			continue
		}
		a, err := annotation.Decode(data)
		if err != nil {
			log.Warnf("skipping invalid annotation %s of %s: %v", name, id, err)
			continue
		}
		out[a.Key()] = a
	}
	return out, nil
}
