package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matsen/papershelf/internal/config"
	"github.com/matsen/papershelf/internal/index"
	"github.com/matsen/papershelf/internal/paper"
	"github.com/matsen/papershelf/internal/storage"
)

var fixedNow = time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

// setupTestStore opens an empty store with a fixed clock.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Now = func() time.Time { return fixedNow }
	return s
}

func testRecord(id string) paper.Record {
	return paper.Record{
		ID:       id,
		Title:    "Paper " + id,
		Authors:  []string{"Ada Lovelace"},
		Abstract: "About " + id,
	}
}

func TestAddRecords(t *testing.T) {
	s := setupTestStore(t)

	result, err := s.AddRecords([]paper.Record{
		testRecord("2401.00001"),
		testRecord("2401.00002"),
		testRecord("bogus"),
		testRecord("2401.00001"),
	}, "phylo")
	if err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if strings.Join(result.Added, ",") != "2401.00001,2401.00002" {
		t.Errorf("Added = %v", result.Added)
	}
	if len(result.Skipped) != 1 || len(result.Invalid) != 1 {
		t.Errorf("Skipped = %v, Invalid = %v", result.Skipped, result.Invalid)
	}

	rec, err := s.ReadRecord("2401.00001")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !rec.CollectedAt.Equal(fixedNow) {
		t.Errorf("CollectedAt = %v, want %v", rec.CollectedAt, fixedNow)
	}
	if len(rec.Topics) != 1 || rec.Topics[0] != "phylo" {
		t.Errorf("Topics = %v", rec.Topics)
	}

	idx, err := s.LoadIndex()
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if len(idx.Papers) != 2 {
		t.Errorf("index has %d papers, want 2", len(idx.Papers))
	}

	// A second run skips everything and leaves records untouched.
	again, err := s.AddRecords([]paper.Record{testRecord("2401.00001")}, "other")
	if err != nil {
		t.Fatalf("AddRecords: %v", err)
	}
	if len(again.Added) != 0 || len(again.Skipped) != 1 {
		t.Errorf("second AddRecords = %+v", again)
	}
	rec, _ = s.ReadRecord("2401.00001")
	if len(rec.Topics) != 1 {
		t.Errorf("existing record modified: topics = %v", rec.Topics)
	}
}

func TestReadRecord_Errors(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.ReadRecord("../etc"); !errors.Is(err, paper.ErrInvalidID) {
		t.Errorf("ReadRecord(bad id) error = %v, want ErrInvalidID", err)
	}
	if _, err := s.ReadRecord("2401.00001"); !errors.Is(err, ErrPaperNotFound) {
		t.Errorf("ReadRecord(missing) error = %v, want ErrPaperNotFound", err)
	}
}

func TestUnit_CommitNewAndReplace(t *testing.T) {
	s := setupTestStore(t)

	unit, err := s.NewUnit("2401.00001")
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	if err := unit.WriteRecord(testRecord("2401.00001")); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := unit.WriteSummary("first summary"); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if err := unit.WriteAnnotation("ada_20240101000000_abcd1234.json", []byte(`{}`)); err != nil {
		t.Fatalf("WriteAnnotation: %v", err)
	}
	if s.HasPaper("2401.00001") {
		t.Fatal("paper visible before Commit")
	}
	if err := unit.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !s.HasPaper("2401.00001") {
		t.Fatal("paper missing after Commit")
	}

	// Replace with a unit that has no summary.
	replacement := testRecord("2401.00001")
	replacement.Title = "Replaced"
	unit, _ = s.NewUnit("2401.00001")
	if err := unit.WriteRecord(replacement); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := unit.Commit(); err != nil {
		t.Fatalf("Commit replace: %v", err)
	}

	rec, _ := s.ReadRecord("2401.00001")
	if rec.Title != "Replaced" {
		t.Errorf("Title = %q, want Replaced", rec.Title)
	}
	if _, ok, _ := s.ReadSummary("2401.00001"); ok {
		t.Error("replaced unit should carry only its own files")
	}
	assertNoHiddenDirs(t, s)
}

func TestUnit_Abort(t *testing.T) {
	s := setupTestStore(t)

	unit, err := s.NewUnit("2401.00001")
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	_ = unit.WriteRecord(testRecord("2401.00001"))
	unit.Abort()

	if s.HasPaper("2401.00001") {
		t.Error("aborted unit was installed")
	}
	assertNoHiddenDirs(t, s)
}

func TestUnit_Guards(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.NewUnit("../../x"); err == nil {
		t.Error("NewUnit accepted an invalid id")
	}

	unit, _ := s.NewUnit("2401.00001")
	defer unit.Abort()
	if err := unit.WriteRecord(testRecord("2401.00002")); err == nil {
		t.Error("WriteRecord accepted a record for another paper")
	}
	if err := unit.WriteAnnotation("../escape.json", []byte("{}")); err == nil {
		t.Error("WriteAnnotation accepted a path")
	}
	if err := unit.WriteAnnotation("a.json", []byte("{}")); err != nil {
		t.Fatalf("WriteAnnotation: %v", err)
	}
	if err := unit.WriteAnnotation("a.json", []byte("{}")); !errors.Is(err, storage.ErrExists) {
		t.Errorf("WriteAnnotation twice error = %v, want ErrExists", err)
	}
	if err := unit.Commit(); err == nil {
		t.Error("Commit succeeded without a record")
	}
	if s.HasPaper("2401.00001") {
		t.Error("empty unit was installed")
	}
	if err := unit.WriteAnnotation("b.json", []byte("{}")); err == nil {
		t.Error("WriteAnnotation succeeded on a finished unit")
	}
	if err := unit.WriteSummary("late"); err == nil {
		t.Error("WriteSummary succeeded on a finished unit")
	}
}

func TestUnit_WriteAfterAbort(t *testing.T) {
	s := setupTestStore(t)

	unit, err := s.NewUnit("2401.00001")
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	unit.Abort()

	if err := unit.WriteAnnotation("a.json", []byte("{}")); err == nil {
		t.Error("WriteAnnotation succeeded after Abort")
	}
	entries, _ := os.ReadDir(config.PapersPath(s.Root))
	if len(entries) != 0 {
		t.Errorf("papers directory not empty after Abort: %v", entries)
	}
}

func TestUnit_CommitInstallsStagedBytes(t *testing.T) {
	s := setupTestStore(t)
	note := []byte(`{"id":"abcd1234","content":"kept verbatim"}` + "\n")

	unit, err := s.NewUnit("2401.00001")
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	if err := unit.WriteRecord(testRecord("2401.00001")); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := unit.WriteSummary("# Summary\n"); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if err := unit.WriteAnnotation("ada_20240101000000_abcd1234.json", note); err != nil {
		t.Fatalf("WriteAnnotation: %v", err)
	}
	if err := unit.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	summary, ok, err := s.ReadSummary("2401.00001")
	if err != nil || !ok || summary != "# Summary\n" {
		t.Errorf("ReadSummary = %q, %v, %v", summary, ok, err)
	}
	got, err := s.ReadAnnotationFile("2401.00001", "ada_20240101000000_abcd1234.json")
	if err != nil {
		t.Fatalf("ReadAnnotationFile: %v", err)
	}
	if string(got) != string(note) {
		t.Errorf("annotation = %q, want %q", got, note)
	}
	info, err := os.Stat(config.PaperPath(s.Root, "2401.00001"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("paper directory mode = %v, want 0755", info.Mode().Perm())
	}
}

func TestRecover(t *testing.T) {
	root := t.TempDir()
	papers := config.PapersPath(root)

	// An interrupted swap: the old copy is aside and the target is gone.
	aside := filepath.Join(papers, ".old-2401.00001-12345")
	if err := os.MkdirAll(aside, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(aside, config.MetadataFile), []byte(`{"id":"2401.00001","title":"kept"}`), 0644); err != nil {
		t.Fatal(err)
	}
	// An abandoned staging directory.
	staging := filepath.Join(papers, ".staging-2401.00002-999")
	if err := os.MkdirAll(staging, 0755); err != nil {
		t.Fatal(err)
	}

	s, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	rec, err := s.ReadRecord("2401.00001")
	if err != nil {
		t.Fatalf("restored record unreadable: %v", err)
	}
	if rec.Title != "kept" {
		t.Errorf("Title = %q", rec.Title)
	}
	assertNoHiddenDirs(t, s)
}

func TestWriteAnnotationFile(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.AddRecords([]paper.Record{testRecord("2401.00001")}, ""); err != nil {
		t.Fatal(err)
	}

	name := "ada_20240101000000_abcd1234.json"
	if err := s.WriteAnnotationFile("2401.00001", name, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteAnnotationFile: %v", err)
	}
	if err := s.WriteAnnotationFile("2401.00001", name, []byte(`{"a":2}`)); !errors.Is(err, storage.ErrExists) {
		t.Errorf("second write error = %v, want ErrExists", err)
	}
	if err := s.WriteAnnotationFile("2401.00009", name, []byte(`{}`)); !errors.Is(err, ErrPaperNotFound) {
		t.Errorf("write for missing paper error = %v, want ErrPaperNotFound", err)
	}

	names, err := s.AnnotationFiles("2401.00001")
	if err != nil || len(names) != 1 || names[0] != name {
		t.Errorf("AnnotationFiles = %v, %v", names, err)
	}
	data, _ := s.ReadAnnotationFile("2401.00001", name)
	if string(data) != `{"a":1}` {
		t.Errorf("annotation overwritten: %s", data)
	}
}

func TestSetSummary(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.AddRecords([]paper.Record{testRecord("2401.00001")}, ""); err != nil {
		t.Fatal(err)
	}

	rec, err := s.SetSummary("2401.00001", "# Summary\n")
	if err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	if !rec.HasSummary || rec.SummaryGeneratedAt == nil {
		t.Errorf("record not marked summarized: %+v", rec)
	}
	text, ok, _ := s.ReadSummary("2401.00001")
	if !ok || text != "# Summary\n" {
		t.Errorf("ReadSummary = %q, %v", text, ok)
	}
	idx, _ := s.LoadIndex()
	if !idx.Papers["2401.00001"].HasSummary {
		t.Error("index not updated")
	}

	if _, err := s.SetSummary("2401.00009", "x"); !errors.Is(err, ErrPaperNotFound) {
		t.Errorf("SetSummary(missing) error = %v", err)
	}
}

func TestRebuildIndexAndCheck(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.AddRecords([]paper.Record{testRecord("2401.00001"), testRecord("2401.00002")}, ""); err != nil {
		t.Fatal(err)
	}

	report, err := s.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.OK() {
		t.Errorf("fresh store not OK: %+v", report)
	}

	// Remove a record behind the index's back.
	if err := os.RemoveAll(config.PaperPath(s.Root, "2401.00002")); err != nil {
		t.Fatal(err)
	}
	report, _ = s.Check()
	if report.OK() || len(report.Orphaned) != 1 || report.Orphaned[0] != "2401.00002" {
		t.Errorf("Check after removal = %+v", report)
	}

	idx, err := s.RebuildIndex()
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if len(idx.Papers) != 1 {
		t.Errorf("rebuilt index has %d papers, want 1", len(idx.Papers))
	}
	report, _ = s.Check()
	if !report.OK() {
		t.Errorf("Check after rebuild = %+v", report)
	}
}

func TestOpenCache(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.OpenCache(); !errors.Is(err, index.ErrNotFound) {
		t.Fatalf("OpenCache on empty store error = %v, want index.ErrNotFound", err)
	}

	if _, err := s.AddRecords([]paper.Record{testRecord("2401.00001")}, "a"); err != nil {
		t.Fatal(err)
	}
	db, err := s.OpenCache()
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if n, _ := db.Count(); n != 1 {
		t.Errorf("cache count = %d, want 1", n)
	}
	db.Close()

	if _, err := s.AddRecords([]paper.Record{testRecord("2401.00002")}, "a"); err != nil {
		t.Fatal(err)
	}
	db, err = s.OpenCache()
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer db.Close()
	if n, _ := db.Count(); n != 2 {
		t.Errorf("stale cache not rebuilt: count = %d, want 2", n)
	}
}

func TestHistory(t *testing.T) {
	s := setupTestStore(t)

	entries, err := s.History()
	if err != nil || len(entries) != 0 {
		t.Fatalf("History on empty store = %v, %v", entries, err)
	}

	if err := s.AppendHistory(HistoryEntry{ImportedAt: fixedNow, Source: "a.zip", ImportedIDs: []string{"2401.00001"}}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := s.AppendHistory(HistoryEntry{ImportedAt: fixedNow, Source: "b.zip"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	entries, err = s.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 || entries[0].Source != "a.zip" || entries[1].Source != "b.zip" {
		t.Errorf("History = %+v", entries)
	}
}

func assertNoHiddenDirs(t *testing.T, s *Store) {
	t.Helper()
	entries, err := os.ReadDir(config.PapersPath(s.Root))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("leftover hidden entry %s", e.Name())
		}
	}
}
