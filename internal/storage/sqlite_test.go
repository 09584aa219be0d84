package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a test database loaded with three papers.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	imported := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []PaperRow{
		{
			ID:          "2401.00001",
			Title:       "Phylogenetic Inference at Scale",
			Authors:     []string{"Alice Smith", "Bob Jones"},
			Abstract:    "We infer large phylogenies.",
			Topics:      []string{"phylogenetics"},
			CollectedAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			HasSummary:  true,
		},
		{
			ID:          "2401.00002",
			Title:       "Transformers for Protein Design",
			Authors:     []string{"Carol White"},
			Abstract:    "Protein language models.",
			Topics:      []string{"ml", "proteins"},
			CollectedAt: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
			ImportedAt:  &imported,
		},
		{
			ID:          "2312.12345",
			Title:       "Bayesian Trees",
			Authors:     []string{"Dan Brown"},
			Topics:      []string{"phylogenetics"},
			CollectedAt: time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC),
		},
	}

	if _, err := db.Rebuild(rows, "hash-1"); err != nil {
		t.Fatalf("Failed to rebuild DB: %v", err)
	}
	return db
}

func TestOpenDB_CreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("OpenDB() did not create database file")
	}

	hash, err := db.SourceHash()
	if err != nil {
		t.Fatalf("SourceHash() error = %v", err)
	}
	if hash != "" {
		t.Errorf("SourceHash() on fresh cache = %q, want empty", hash)
	}
}

func TestDB_Rebuild(t *testing.T) {
	db := setupTestDB(t)

	count, err := db.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}

	rebuilt, err := db.Rebuild([]PaperRow{{ID: "2402.00001", Title: "Only"}}, "hash-2")
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if rebuilt != 1 {
		t.Errorf("Rebuild() = %d, want 1", rebuilt)
	}

	count, _ = db.Count()
	if count != 1 {
		t.Errorf("After rebuild, Count() = %d, want 1", count)
	}
	if hash, _ := db.SourceHash(); hash != "hash-2" {
		t.Errorf("SourceHash() = %q, want hash-2", hash)
	}
	counts, _ := db.TopicCounts()
	if len(counts) != 0 {
		t.Errorf("TopicCounts() after rebuild = %v, want empty", counts)
	}
}

func TestDB_GetByID(t *testing.T) {
	db := setupTestDB(t)

	p, err := db.GetByID("2401.00002")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if p == nil {
		t.Fatal("GetByID() returned nil")
	}
	if p.Title != "Transformers for Protein Design" {
		t.Errorf("Title = %q", p.Title)
	}
	if len(p.Topics) != 2 || p.Topics[1] != "proteins" {
		t.Errorf("Topics = %v", p.Topics)
	}
	if p.ImportedAt == nil || p.ImportedAt.Year() != 2024 {
		t.Errorf("ImportedAt = %v", p.ImportedAt)
	}

	missing, err := db.GetByID("9999.99999")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetByID() = %+v, want nil", missing)
	}
}

func TestDB_ListPapers(t *testing.T) {
	db := setupTestDB(t)
	yes, no := true, false

	tests := []struct {
		name    string
		filter  PaperFilter
		wantIDs []string
	}{
		{"all newest first", PaperFilter{}, []string{"2401.00002", "2401.00001", "2312.12345"}},
		{"topic", PaperFilter{Topic: "phylogenetics"}, []string{"2401.00001", "2312.12345"}},
		{"summarized", PaperFilter{Summarized: &yes}, []string{"2401.00001"}},
		{"unsummarized", PaperFilter{Summarized: &no}, []string{"2401.00002", "2312.12345"}},
		{"imported", PaperFilter{Imported: &yes}, []string{"2401.00002"}},
		{"limit", PaperFilter{Limit: 1}, []string{"2401.00002"}},
		{"unknown topic", PaperFilter{Topic: "astronomy"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			papers, err := db.ListPapers(tt.filter)
			if err != nil {
				t.Fatalf("ListPapers() error = %v", err)
			}
			if len(papers) != len(tt.wantIDs) {
				t.Fatalf("ListPapers() returned %d papers, want %d", len(papers), len(tt.wantIDs))
			}
			for i, p := range papers {
				if p.ID != tt.wantIDs[i] {
					t.Errorf("papers[%d].ID = %s, want %s", i, p.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestDB_Search(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		query string
		want  int
	}{
		{"phylogenies", 1},
		{"protein", 1},
		{"Brown", 1},
		{"nonexistentterm", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := db.Search(tt.query, 10)
			if err != nil {
				t.Fatalf("Search(%q) error = %v", tt.query, err)
			}
			if len(results) != tt.want {
				t.Errorf("Search(%q) returned %d results, want %d", tt.query, len(results), tt.want)
			}
		})
	}
}

func TestDB_TopicCounts(t *testing.T) {
	db := setupTestDB(t)

	counts, err := db.TopicCounts()
	if err != nil {
		t.Fatalf("TopicCounts() error = %v", err)
	}
	if counts["phylogenetics"] != 2 || counts["ml"] != 1 || counts["proteins"] != 1 {
		t.Errorf("TopicCounts() = %v", counts)
	}
}

func TestPrepareFTSQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"simple", "simple"},
		{"  padded  ", "padded"},
		{"2401.00001", `"2401.00001"`},
		{`say "hi"`, `"say ""hi"""`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := prepareFTSQuery(tt.in); got != tt.want {
			t.Errorf("prepareFTSQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
