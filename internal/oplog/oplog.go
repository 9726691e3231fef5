// Package oplog provides a SQLite-backed log of administrative operations:
// ingestion runs, index creation and deletion, feedback updates, and
// promotions. It gives operators a local answer to "what changed the
// knowledge base, and when" without depending on the document store itself.
package oplog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Operation names recorded in the log.
const (
	OpIngest      = "ingest"
	OpIndexCreate = "index_create"
	OpIndexDelete = "index_delete"
	OpFeedback    = "feedback"
	OpPromote     = "promote"
)

// Entry is a single recorded operation.
type Entry struct {
	// Operation is the operation name (see Op* constants).
	Operation string `json:"operation"`
	// Target is what the operation acted on (index name, document id, path).
	Target string `json:"target"`
	// Detail is a free-form summary (counts, outcome).
	Detail string `json:"detail,omitempty"`
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Log records and retrieves administrative operations. Implementations must
// be safe for concurrent use.
type Log interface {
	// Append persists a single operation entry.
	Append(ctx context.Context, operation, target, detail string) error
	// Recent returns the most recent n entries, newest-first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteLog is a Log backed by a local SQLite database.
type SQLiteLog struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Nop is a Log that records nothing. Used when the operations log is
// disabled by configuration.
type Nop struct{}

func (Nop) Append(context.Context, string, string, string) error { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error)         { return nil, nil }
func (Nop) Close() error                                         { return nil }

// DefaultDBPath returns the default path for the operations log database.
// It resolves to ~/.carevoice/oplog.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("oplog: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".carevoice")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("oplog: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "oplog.db"), nil
}

// Open opens (or creates) a SQLiteLog at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("oplog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// migrate creates the schema if it does not already exist.
func (l *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS operations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    operation    TEXT    NOT NULL,
    target       TEXT    NOT NULL,
    detail       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_operations_created
    ON operations (created_at);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("oplog: migrate: %w", err)
	}
	return nil
}

// Append persists a single operation entry.
func (l *SQLiteLog) Append(ctx context.Context, operation, target, detail string) error {
	const q = `INSERT INTO operations (operation, target, detail, created_at) VALUES (?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, q, operation, target, detail, time.Now().Unix()); err != nil {
		return fmt.Errorf("oplog: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, newest-first.
func (l *SQLiteLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT operation, target, detail, created_at
FROM   operations
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := l.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("oplog: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.Operation, &e.Target, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("oplog: recent scan: %w", err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("oplog: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (l *SQLiteLog) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("oplog: close: %w", err)
	}
	return nil
}
