package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite query cache. The cache is ephemeral: it is rebuilt
// from the paper index whenever the index changes and is never read back
// into the store.
type DB struct {
	db *sql.DB
}

// PaperRow is one row of the papers table.
type PaperRow struct {
	ID          string
	Title       string
	Authors     []string
	Abstract    string
	Topics      []string
	CollectedAt time.Time
	HasSummary  bool
	ImportedAt  *time.Time
}

// PaperFilter narrows ListPapers. Zero values mean "no filter".
type PaperFilter struct {
	Topic      string // Exact topic match
	Summarized *bool  // Only papers with (true) or without (false) a summary
	Imported   *bool  // Only papers that did (true) or did not (false) arrive in a package
	Limit      int
}

// selectPaperFields contains the standard field list for SELECT queries.
const selectPaperFields = `id, title, authors_json, abstract, topics_json,
	collected_at, has_summary, imported_at`

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			authors_json TEXT NOT NULL,
			abstract TEXT,
			topics_json TEXT NOT NULL,
			collected_at INTEGER NOT NULL,
			has_summary INTEGER NOT NULL,
			imported_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS paper_topics (
			paper_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			PRIMARY KEY (paper_id, topic)
		);

		CREATE INDEX IF NOT EXISTS idx_paper_topics_topic ON paper_topics(topic);

		CREATE VIRTUAL TABLE IF NOT EXISTS papers_fts USING fts5(
			id,
			title,
			abstract,
			authors_text
		);

		-- Fingerprint of the index the cache was built from
		CREATE TABLE IF NOT EXISTS cache_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := db.Exec(schema)
	return err
}

// Rebuild clears the cache and loads rows, recording sourceHash so that
// later callers can tell whether the cache is stale.
func (d *DB) Rebuild(rows []PaperRow, sourceHash string) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning rebuild: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"papers", "paper_topics", "papers_fts"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, fmt.Errorf("clearing %s table: %w", table, err)
		}
	}

	papersStmt, err := tx.Prepare(`
		INSERT INTO papers (` + selectPaperFields + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing papers insert: %w", err)
	}
	defer papersStmt.Close()

	topicStmt, err := tx.Prepare(`INSERT OR IGNORE INTO paper_topics (paper_id, topic) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing topic insert: %w", err)
	}
	defer topicStmt.Close()

	ftsStmt, err := tx.Prepare(`
		INSERT INTO papers_fts (id, title, abstract, authors_text)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsStmt.Close()

	for _, p := range rows {
		authorsJSON, err := json.Marshal(nonNil(p.Authors))
		if err != nil {
			return 0, fmt.Errorf("marshaling authors for %s: %w", p.ID, err)
		}
		topicsJSON, err := json.Marshal(nonNil(p.Topics))
		if err != nil {
			return 0, fmt.Errorf("marshaling topics for %s: %w", p.ID, err)
		}

		var importedAt sql.NullInt64
		if p.ImportedAt != nil {
			importedAt = sql.NullInt64{Int64: p.ImportedAt.Unix(), Valid: true}
		}

		_, err = papersStmt.Exec(
			p.ID, p.Title, string(authorsJSON), nullableStringValue(p.Abstract), string(topicsJSON),
			p.CollectedAt.Unix(), p.HasSummary, importedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting paper %s: %w", p.ID, err)
		}

		for _, topic := range p.Topics {
			if _, err := topicStmt.Exec(p.ID, topic); err != nil {
				return 0, fmt.Errorf("inserting topic for %s: %w", p.ID, err)
			}
		}

		if _, err := ftsStmt.Exec(p.ID, p.Title, p.Abstract, strings.Join(p.Authors, ", ")); err != nil {
			return 0, fmt.Errorf("inserting fts for %s: %w", p.ID, err)
		}
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO cache_meta (key, value) VALUES ('source_hash', ?)`, sourceHash); err != nil {
		return 0, fmt.Errorf("recording source hash: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rebuild: %w", err)
	}
	return len(rows), nil
}

// SourceHash returns the fingerprint recorded by the last Rebuild, or "" if
// the cache has never been built.
func (d *DB) SourceHash() (string, error) {
	var hash string
	err := d.db.QueryRow(`SELECT value FROM cache_meta WHERE key = 'source_hash'`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// GetByID retrieves a paper by its ID. Returns nil if it is not cached.
func (d *DB) GetByID(id string) (*PaperRow, error) {
	row := d.db.QueryRow(`SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	return scanPaper(row)
}

// ListPapers returns cached papers newest-collected first.
func (d *DB) ListPapers(filter PaperFilter) ([]PaperRow, error) {
	query := `SELECT ` + selectPaperFields + ` FROM papers WHERE 1=1`
	var args []interface{}

	if filter.Topic != "" {
		query += " AND id IN (SELECT paper_id FROM paper_topics WHERE topic = ?)"
		args = append(args, filter.Topic)
	}
	if filter.Summarized != nil {
		query += " AND has_summary = ?"
		args = append(args, *filter.Summarized)
	}
	if filter.Imported != nil {
		if *filter.Imported {
			query += " AND imported_at IS NOT NULL"
		} else {
			query += " AND imported_at IS NULL"
		}
	}

	query += " ORDER BY collected_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	return scanPapers(rows)
}

// Search performs a full-text search over titles, abstracts and authors.
func (d *DB) Search(query string, limit int) ([]PaperRow, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := d.db.Query(`
		SELECT `+selectPaperFields+`
		FROM papers
		WHERE id IN (SELECT id FROM papers_fts WHERE papers_fts MATCH ?)
		ORDER BY collected_at DESC, id
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	return scanPapers(rows)
}

// TopicCounts returns the number of papers per topic.
func (d *DB) TopicCounts() (map[string]int, error) {
	rows, err := d.db.Query(`SELECT topic, COUNT(*) FROM paper_topics GROUP BY topic`)
	if err != nil {
		return nil, fmt.Errorf("counting topics: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var topic string
		var n int
		if err := rows.Scan(&topic, &n); err != nil {
			return nil, err
		}
		counts[topic] = n
	}
	return counts, rows.Err()
}

// Count returns the total number of cached papers.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM papers").Scan(&count)
	return count, err
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPaper(s scanner) (*PaperRow, error) {
	var p PaperRow
	var authorsJSON, topicsJSON string
	var abstract sql.NullString
	var collectedAt int64
	var importedAt sql.NullInt64

	err := s.Scan(
		&p.ID, &p.Title, &authorsJSON, &abstract, &topicsJSON,
		&collectedAt, &p.HasSummary, &importedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	p.Abstract = abstract.String
	p.CollectedAt = time.Unix(collectedAt, 0).UTC()
	if importedAt.Valid {
		t := time.Unix(importedAt.Int64, 0).UTC()
		p.ImportedAt = &t
	}

	if err := json.Unmarshal([]byte(authorsJSON), &p.Authors); err != nil {
		return nil, fmt.Errorf("parsing authors JSON for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(topicsJSON), &p.Topics); err != nil {
		return nil, fmt.Errorf("parsing topics JSON for %s: %w", p.ID, err)
	}

	return &p, nil
}

func scanPapers(rows *sql.Rows) ([]PaperRow, error) {
	var papers []PaperRow
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		if p != nil {
			papers = append(papers, *p)
		}
	}
	return papers, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	// FTS5 uses double quotes for phrase matching
	if strings.ContainsAny(query, "\"*+-:(){}[]^~.") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}
