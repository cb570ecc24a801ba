package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Mavwarf/appicon/internal/paths"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore implements Store using a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) a SQLite database at path and creates
// its tables and indexes.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), paths.DirPerm); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT    PRIMARY KEY,
    timestamp   TEXT    NOT NULL,
    source      TEXT    NOT NULL DEFAULT '',
    format      TEXT    NOT NULL DEFAULT '',
    width       INTEGER NOT NULL DEFAULT 0,
    height      INTEGER NOT NULL DEFAULT 0,
    output_dir  TEXT    NOT NULL DEFAULT '',
    renditions  INTEGER NOT NULL DEFAULT 0,
    bytes       INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    error       TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS renditions (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id   TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    filename TEXT    NOT NULL,
    pixels   INTEGER NOT NULL,
    bytes    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_timestamp    ON runs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_renditions_run_id ON renditions(run_id);
`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores run and its renditions in one transaction. A missing
// run ID or timestamp is filled in; the stored ID is returned.
func (s *SQLiteStore) Record(run Run, renditions []Rendition) (string, error) {
	if run.ID == "" {
		run.ID = NewID()
	}
	if run.Time.IsZero() {
		run.Time = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, timestamp, source, format, width, height, output_dir, renditions, bytes, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Time.UTC().Format(timeLayout), run.Source, run.Format, run.Width, run.Height, run.OutputDir,
		run.Renditions, run.Bytes, run.Duration.Milliseconds(), run.Error,
	)
	if err != nil {
		return "", err
	}

	for _, r := range renditions {
		if _, err := tx.Exec(
			`INSERT INTO renditions (run_id, filename, pixels, bytes) VALUES (?, ?, ?, ?)`,
			run.ID, r.Filename, r.Pixels, r.Bytes,
		); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Recent returns up to limit runs, newest first. limit <= 0 returns all.
func (s *SQLiteStore) Recent(limit int) ([]Run, error) {
	query := `SELECT id, timestamp, source, format, width, height, output_dir, renditions, bytes, duration_ms, error
		FROM runs ORDER BY timestamp DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var tsStr string
		var durMS int64
		if err := rows.Scan(&r.ID, &tsStr, &r.Source, &r.Format, &r.Width, &r.Height, &r.OutputDir,
			&r.Renditions, &r.Bytes, &durMS, &r.Error); err != nil {
			return nil, err
		}
		ts, err := time.Parse(timeLayout, tsStr)
		if err != nil {
			continue
		}
		r.Time = ts.Local()
		r.Duration = time.Duration(durMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Renditions returns the files recorded for runID in insertion order.
func (s *SQLiteStore) Renditions(runID string) ([]Rendition, error) {
	rows, err := s.db.Query(
		`SELECT filename, pixels, bytes FROM renditions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rendition
	for rows.Next() {
		var r Rendition
		if err := rows.Scan(&r.Filename, &r.Pixels, &r.Bytes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Clean(days int) (int, error) {
	cutoff := Cutoff(days).UTC().Format(timeLayout)
	res, err := s.db.Exec(`DELETE FROM runs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM runs`)
	return err
}

func (s *SQLiteStore) Path() string {
	return s.path
}
