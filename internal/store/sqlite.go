package store

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLiteStore is the embedded single-binary deployment target.
type SQLiteStore struct {
	sqlStore
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL,
    entity TEXT NOT NULL,
    context_key TEXT NOT NULL,
    variant_a TEXT NOT NULL,
    variant_b TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    winner TEXT,
    winner_confidence REAL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tests_entity_context ON tests(entity, context_key, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tests_one_running ON tests(entity, context_key) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL,
    identity_key TEXT NOT NULL,
    contact_id INTEGER,
    anon_id TEXT NOT NULL DEFAULT '',
    variant TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (test_id) REFERENCES tests(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_identity ON assignments(test_id, identity_key);

CREATE TABLE IF NOT EXISTS conversions (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL,
    assignment_id TEXT NOT NULL,
    variant TEXT NOT NULL,
    conversion_type TEXT NOT NULL,
    value REAL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (assignment_id) REFERENCES assignments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversions_dedup ON conversions(assignment_id, conversion_type);
CREATE INDEX IF NOT EXISTS idx_conversions_test ON conversions(test_id);
`

// Open opens (creating if necessary) a SQLite database at dbPath and applies
// the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode so concurrent readers don't block the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{sqlStore{db: db, isUnique: isSQLiteUniqueViolation}}, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT,
		sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
