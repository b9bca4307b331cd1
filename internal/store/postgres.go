package store

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore backs multi-instance deployments. The schema carries the same
// uniqueness constraints as the SQLite store; postgres reports violations with
// SQLSTATE 23505 which we fold into ErrDuplicate.
type PostgresStore struct {
	sqlStore
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL,
    entity TEXT NOT NULL,
    context_key TEXT NOT NULL,
    variant_a TEXT NOT NULL,
    variant_b TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    winner TEXT,
    winner_confidence DOUBLE PRECISION,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tests_entity_context ON tests(entity, context_key, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tests_one_running ON tests(entity, context_key) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL REFERENCES tests(id),
    identity_key TEXT NOT NULL,
    contact_id BIGINT,
    anon_id TEXT NOT NULL DEFAULT '',
    variant TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_identity ON assignments(test_id, identity_key);

CREATE TABLE IF NOT EXISTS conversions (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL,
    assignment_id TEXT NOT NULL REFERENCES assignments(id),
    variant TEXT NOT NULL,
    conversion_type TEXT NOT NULL,
    value DOUBLE PRECISION,
    created_at BIGINT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversions_dedup ON conversions(assignment_id, conversion_type);
CREATE INDEX IF NOT EXISTS idx_conversions_test ON conversions(test_id);
`

// OpenPostgres connects to the database at dsn and applies the schema.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{sqlStore{db: db, isUnique: isPostgresUniqueViolation}}, nil
}

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
