package merge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/papershelf/internal/annotation"
	"github.com/matsen/papershelf/internal/apperr"
	"github.com/matsen/papershelf/internal/bundle"
	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
	"github.com/matsen/papershelf/internal/store"
)

var (
	collectedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	importNow   = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	st.Now = func() time.Time { return importNow }
	return st
}

func record(id, title string) paper.Record {
	return paper.Record{
		ID:          id,
		Title:       title,
		Authors:     []string{"Ada Lovelace"},
		Abstract:    "About " + id,
		CollectedAt: collectedAt,
		Topics:      []string{"phylo"},
	}
}

func note(id, author, content string, at time.Time) annotation.Annotation {
	return annotation.New(id, paper.SanitizeUsername(author), annotation.TypeNote, content, at)
}

func entry(rec paper.Record, summary string, anns ...annotation.Annotation) bundle.PaperEntry {
	if anns == nil {
		anns = []annotation.Annotation{}
	}
	return bundle.PaperEntry{
		ID:          rec.ID,
		Record:      rec,
		Summary:     summary,
		HasSummary:  summary != "",
		Annotations: anns,
	}
}

func pkgOf(entries ...bundle.PaperEntry) *bundle.Package {
	return &bundle.Package{
		Manifest: bundle.Manifest{Version: bundle.ManifestVersion, PaperCount: len(entries)},
		Papers:   entries,
		Dropped:  []string{},
	}
}

// seed adds a local paper with optional annotations.
func seed(t *testing.T, st *store.Store, rec paper.Record, anns ...annotation.Annotation) {
	t.Helper()
	_, err := st.AddRecords([]paper.Record{rec}, "")
	require.NoError(t, err)
	for _, a := range anns {
		data, err := storage.MarshalJSON(a)
		require.NoError(t, err)
		require.NoError(t, st.WriteAnnotationFile(rec.ID, a.FileName(), data))
	}
}

func annotationFiles(t *testing.T, st *store.Store, id string) []string {
	t.Helper()
	names, err := st.AnnotationFiles(id)
	require.NoError(t, err)
	return names
}

// snapshot maps every file under root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestMerge_IntoEmptyStore(t *testing.T) {
	st := newStore(t)
	a := note("2401.00001", "bob", "Great paper.", collectedAt)
	pkg := pkgOf(
		entry(record("2401.00001", "First"), "A summary.", a),
		entry(record("2401.00002", "Second"), ""),
	)

	result, err := Merge(st, pkg, Options{Source: "share.zip"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ImportedCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Equal(t, 1, result.AnnotationCount)
	assert.Equal(t, []string{"2401.00001", "2401.00002"}, result.ImportedIDs)
	assert.Empty(t, result.Failed)

	rec, err := st.ReadRecord("2401.00001")
	require.NoError(t, err)
	assert.Equal(t, "First", rec.Title)
	assert.True(t, rec.CollectedAt.Equal(collectedAt))
	require.NotNil(t, rec.ImportedAt)
	assert.True(t, rec.ImportedAt.Equal(importNow))
	assert.Equal(t, "share.zip", rec.ImportedFrom)
	assert.True(t, rec.HasSummary)

	summary, ok, err := st.ReadSummary("2401.00001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A summary.", summary)
	assert.Equal(t, []string{a.FileName()}, annotationFiles(t, st, "2401.00001"))

	idx, err := st.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, []string{"2401.00001", "2401.00002"}, idx.IDs())
	require.NotNil(t, idx.Papers["2401.00002"].ImportedAt)
}

func TestMerge_Idempotent(t *testing.T) {
	for _, overwrite := range []bool{false, true} {
		t.Run(map[bool]string{false: "skip", true: "overwrite"}[overwrite], func(t *testing.T) {
			st := newStore(t)
			pkg := pkgOf(
				entry(record("2401.00001", "First"), "A summary.", note("2401.00001", "bob", "Hi.", collectedAt)),
				entry(record("2401.00002", "Second"), ""),
			)

			first, err := Merge(st, pkg, Options{Overwrite: overwrite})
			require.NoError(t, err)
			assert.Equal(t, 2, first.ImportedCount)
			after := snapshot(t, st.Root)

			second, err := Merge(st, pkg, Options{Overwrite: overwrite})
			require.NoError(t, err)
			assert.Equal(t, 0, second.ImportedCount)
			assert.Equal(t, 2, second.SkippedCount)
			assert.Equal(t, 0, second.AnnotationCount)
			assert.Equal(t, []string{"2401.00001", "2401.00002"}, second.SkippedIDs)
			assert.Equal(t, after, snapshot(t, st.Root))
		})
	}
}

func TestMerge_SkipKeepsLocalRecord(t *testing.T) {
	st := newStore(t)
	seed(t, st, record("2401.00001", "Local title"))
	before, err := st.ReadRecord("2401.00001")
	require.NoError(t, err)

	result, err := Merge(st, pkgOf(entry(record("2401.00001", "Package title"), "Package summary.")), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ImportedCount)
	assert.Equal(t, 1, result.SkippedCount)

	after, err := st.ReadRecord("2401.00001")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, ok, err := st.ReadSummary("2401.00001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMerge_OverwriteReplaces(t *testing.T) {
	st := newStore(t)
	local := record("2401.00001", "Local title")
	local.CollectedAt = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	localNote := note("2401.00001", "alice", "Mine.", collectedAt)
	seed(t, st, local, localNote)
	_, err := st.SetSummary("2401.00001", "Local summary.")
	require.NoError(t, err)

	incoming := record("2401.00001", "Package title")
	pkgNote := note("2401.00001", "bob", "Theirs.", collectedAt.Add(time.Hour))

	result, err := Merge(st, pkgOf(entry(incoming, "", pkgNote)), Options{Overwrite: true, Source: "x.zip"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImportedCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Equal(t, 1, result.AnnotationCount)

	rec, err := st.ReadRecord("2401.00001")
	require.NoError(t, err)
	assert.Equal(t, "Package title", rec.Title)
	assert.True(t, rec.CollectedAt.Equal(local.CollectedAt), "local collected_at is kept")
	assert.Equal(t, "x.zip", rec.ImportedFrom)

	// The package had no summary, so the local one survives.
	assert.True(t, rec.HasSummary)
	summary, ok, err := st.ReadSummary("2401.00001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Local summary.", summary)

	assert.ElementsMatch(t, []string{localNote.FileName(), pkgNote.FileName()}, annotationFiles(t, st, "2401.00001"))

	idx, err := st.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, "Package title", idx.Papers["2401.00001"].Title)

	entries, err := os.ReadDir(config.PapersPath(st.Root))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, '.', e.Name()[0], "leftover %s", e.Name())
	}
}

func TestMerge_AnnotationUnion(t *testing.T) {
	st := newStore(t)
	a1 := note("2401.00001", "alice", "one", collectedAt)
	a2 := note("2401.00001", "alice", "two", collectedAt.Add(time.Minute))
	a3 := note("2401.00001", "bob", "three", collectedAt.Add(2*time.Minute))
	seed(t, st, record("2401.00001", "Title"), a1, a2)

	pkg := pkgOf(entry(record("2401.00001", "Title"), "", a2, a3))

	result, err := Merge(st, pkg, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, 1, result.AnnotationCount)
	assert.ElementsMatch(t, []string{a1.FileName(), a2.FileName(), a3.FileName()}, annotationFiles(t, st, "2401.00001"))

	again, err := Merge(st, pkg, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.AnnotationCount)
	assert.Len(t, annotationFiles(t, st, "2401.00001"), 3)
}

func TestMerge_ConflictingAnnotationKeepsLocal(t *testing.T) {
	st := newStore(t)
	local := note("2401.00001", "alice", "original", collectedAt)
	seed(t, st, record("2401.00001", "Title"), local)

	forged := local
	forged.Content = "rewritten"

	result, err := Merge(st, pkgOf(entry(record("2401.00001", "Title"), "", forged)), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.AnnotationCount)

	data, err := st.ReadAnnotationFile("2401.00001", local.FileName())
	require.NoError(t, err)
	got, err := annotation.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)
}

func TestMerge_FailureIsolation(t *testing.T) {
	st := newStore(t)
	bad := entry(record("2401.00003", "Mismatch"), "")
	bad.ID = "2401.00002"

	result, err := Merge(st, pkgOf(entry(record("2401.00001", "Good"), ""), bad), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2401.00001"}, result.ImportedIDs)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "2401.00002", result.Failed[0].ID)
	assert.False(t, st.HasPaper("2401.00002"))
	assert.False(t, st.HasPaper("2401.00003"))

	idx, err := st.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, []string{"2401.00001"}, idx.IDs())
}

func TestMerge_AllFailed(t *testing.T) {
	st := newStore(t)
	bad := entry(record("2401.00003", "Mismatch"), "")
	bad.ID = "2401.00002"

	result, err := Merge(st, pkgOf(bad), Options{})
	require.Error(t, err)
	assert.Equal(t, apperr.FileError, apperr.CodeOf(err))

	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Same(t, result, merr.Result)
	assert.Len(t, merr.Result.Failed, 1)
}

func TestMerge_IndexWriteFailure(t *testing.T) {
	st := newStore(t)
	// A directory where the index file belongs makes the final write fail.
	require.NoError(t, os.MkdirAll(config.IndexPath(st.Root), 0755))

	result, err := Merge(st, pkgOf(entry(record("2401.00001", "First"), "")), Options{})
	require.Error(t, err)
	assert.Equal(t, apperr.FileError, apperr.CodeOf(err))

	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, []string{"2401.00001"}, merr.Result.ImportedIDs)
	assert.Equal(t, result, merr.Result)
	assert.True(t, st.HasPaper("2401.00001"))
}

func TestMerge_EmptyPackage(t *testing.T) {
	st := newStore(t)
	pkg := pkgOf()
	pkg.Dropped = []string{"papers/bad: invalid paper ID"}

	result, err := Merge(st, pkg, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ImportedCount)
	assert.Equal(t, []string{"papers/bad: invalid paper ID"}, result.Dropped)
}
