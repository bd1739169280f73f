// Package history keeps a local archive of snatch attempts in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const dbFile = "history.db"

// Status values recorded per attempt.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is one archived snatch attempt. Failed attempts carry the error
// text and no output path.
type Record struct {
	ID         int64
	URL        string
	Title      string
	OutputPath string
	Engine     string
	Status     string
	Error      string
	PDFBytes   int64
	DurationMS int64
	CreatedAt  time.Time
}

// DB stores snatch records in a single SQLite file under the archive
// directory.
type DB struct {
	db   *sql.DB
	path string
}

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and database file on first use.
	CreateIfNotExists bool

	// EnableWAL enables write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the options used by the CLI and the server.
func DefaultOptions() Options {
	return Options{CreateIfNotExists: true, EnableWAL: true}
}

// Open opens or creates the archive in dir.
func Open(dir string, opts Options) (*DB, error) {
	path := filepath.Join(dir, dbFile)

	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("history: no archive at %s: %w", path, err)
	}

	// modernc.org/sqlite: mode=rwc allows creation, mode=rw does not.
	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	db, err := sql.Open("sqlite", path+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &DB{db: db, path: path}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: enable WAL: %w", err)
		}
	}
	if err := h.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create tables: %w", err)
	}
	return h, nil
}

// Path returns the database file path.
func (h *DB) Path() string {
	return h.path
}

// Close closes the database connection.
func (h *DB) Close() error {
	return h.db.Close()
}

func (h *DB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snatches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		title TEXT,
		output_path TEXT,
		engine TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		pdf_bytes INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snatches_url ON snatches(url);
	CREATE INDEX IF NOT EXISTS idx_snatches_created ON snatches(created_at);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// Insert stores one attempt and returns its row id. A zero CreatedAt is
// filled with the current time.
func (h *DB) Insert(ctx context.Context, rec *Record) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	res, err := h.db.ExecContext(ctx, `
	INSERT INTO snatches (url, title, output_path, engine, status, error, pdf_bytes, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.URL,
		rec.Title,
		rec.OutputPath,
		rec.Engine,
		rec.Status,
		rec.Error,
		rec.PDFBytes,
		rec.DurationMS,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert record: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the latest records, newest first. A non-positive limit
// defaults to 20.
func (h *DB) Recent(ctx context.Context, limit int) ([]Record, error) {
	return h.query(ctx, `
	SELECT id, url, title, output_path, engine, status, error, pdf_bytes, duration_ms, created_at
	FROM snatches ORDER BY id DESC LIMIT ?`, clampLimit(limit))
}

// Search returns the latest records whose URL contains q, newest first.
func (h *DB) Search(ctx context.Context, q string, limit int) ([]Record, error) {
	return h.query(ctx, `
	SELECT id, url, title, output_path, engine, status, error, pdf_bytes, duration_ms, created_at
	FROM snatches WHERE url LIKE ? ORDER BY id DESC LIMIT ?`, "%"+q+"%", clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func (h *DB) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var createdAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.URL,
			&rec.Title,
			&rec.OutputPath,
			&rec.Engine,
			&rec.Status,
			&rec.Error,
			&rec.PDFBytes,
			&rec.DurationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate records: %w", err)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
