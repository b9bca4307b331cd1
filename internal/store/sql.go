package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// sqlStore implements Store against any sqlx-backed SQL database. Queries are
// written with ? placeholders and rebound per driver. Uniqueness-constraint
// detection is driver-specific and supplied by the concrete store.
type sqlStore struct {
	db       *sqlx.DB
	isUnique func(error) bool
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for health checks.
func (s *sqlStore) DB() *sqlx.DB {
	return s.db
}

const testColumns = `id, org_id, entity, context_key, variant_a, variant_b, status, winner, winner_confidence, created_at, updated_at`

func (s *sqlStore) CreateTest(ctx context.Context, t *Test) error {
	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO tests (id, org_id, entity, context_key, variant_a, variant_b, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.OrgID, t.Entity, t.ContextKey, string(t.VariantA), string(t.VariantB), t.Status, now, now,
	)
	if err != nil {
		if s.isUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert test: %w", err)
	}
	return nil
}

func (s *sqlStore) GetTest(ctx context.Context, id string) (*Test, error) {
	var t Test
	err := s.db.GetContext(ctx, &t, s.db.Rebind(
		`SELECT `+testColumns+` FROM tests WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return &t, nil
}

// FindRunningTest returns the earliest-created running test for the given
// (entity, context key) pair. First match wins; this ordering is the
// documented tie-break policy.
func (s *sqlStore) FindRunningTest(ctx context.Context, entity, contextKey string) (*Test, error) {
	var t Test
	err := s.db.GetContext(ctx, &t, s.db.Rebind(
		`SELECT `+testColumns+` FROM tests
		 WHERE entity = ? AND context_key = ? AND status = ?
		 ORDER BY created_at ASC, id ASC LIMIT 1`),
		entity, contextKey, StatusRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find running test: %w", err)
	}
	return &t, nil
}

func (s *sqlStore) ListTests(ctx context.Context) ([]*Test, error) {
	var tests []*Test
	err := s.db.SelectContext(ctx, &tests,
		`SELECT `+testColumns+` FROM tests ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	return tests, nil
}

func (s *sqlStore) CompleteTest(ctx context.Context, id string, winner Variant, confidence float64) error {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE tests SET status = ?, winner = ?, winner_confidence = ?, updated_at = ?
		 WHERE id = ? AND status = ?`),
		StatusCompleted, winner, confidence, now, id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete test: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// No row transitioned: either the test is unknown or a concurrent caller
	// completed it first.
	t, err := s.GetTest(ctx, id)
	if err != nil {
		return err
	}
	if t.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	return fmt.Errorf("test %s not updated", id)
}

const assignmentColumns = `id, test_id, identity_key, contact_id, anon_id, variant, created_at`

func (s *sqlStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	a.CreatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO assignments (id, test_id, identity_key, contact_id, anon_id, variant, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.TestID, a.IdentityKey, a.ContactID, a.AnonID, a.Variant, a.CreatedAt,
	)
	if err != nil {
		if s.isUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

func (s *sqlStore) GetAssignment(ctx context.Context, testID, identityKey string) (*Assignment, error) {
	var a Assignment
	err := s.db.GetContext(ctx, &a, s.db.Rebind(
		`SELECT `+assignmentColumns+` FROM assignments WHERE test_id = ? AND identity_key = ?`),
		testID, identityKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

func (s *sqlStore) GetAssignmentByID(ctx context.Context, id string) (*Assignment, error) {
	var a Assignment
	err := s.db.GetContext(ctx, &a, s.db.Rebind(
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

const conversionColumns = `id, test_id, assignment_id, variant, conversion_type, value, created_at`

func (s *sqlStore) CreateConversion(ctx context.Context, c *Conversion) error {
	c.CreatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO conversions (id, test_id, assignment_id, variant, conversion_type, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.TestID, c.AssignmentID, c.Variant, c.Type, c.Value, c.CreatedAt,
	)
	if err != nil {
		if s.isUnique(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert conversion: %w", err)
	}
	return nil
}

func (s *sqlStore) HasConversion(ctx context.Context, assignmentID, conversionType string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM conversions WHERE assignment_id = ? AND conversion_type = ?`),
		assignmentID, conversionType)
	if err != nil {
		return false, fmt.Errorf("failed to check conversion: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) ListConversions(ctx context.Context, testID string) ([]*Conversion, error) {
	var conversions []*Conversion
	err := s.db.SelectContext(ctx, &conversions, s.db.Rebind(
		`SELECT `+conversionColumns+` FROM conversions WHERE test_id = ? ORDER BY created_at ASC, id ASC`),
		testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	return conversions, nil
}

func (s *sqlStore) CountByVariant(ctx context.Context, testID string) (*VariantCounts, error) {
	var counts VariantCounts

	err := s.db.GetContext(ctx, &counts, s.db.Rebind(`
		SELECT
			COUNT(CASE WHEN variant = 'A' THEN 1 END) AS assignments_a,
			COUNT(CASE WHEN variant = 'B' THEN 1 END) AS assignments_b
		FROM assignments WHERE test_id = ?`), testID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}

	var conv struct {
		ConversionsA int64 `db:"conversions_a"`
		ConversionsB int64 `db:"conversions_b"`
	}
	err = s.db.GetContext(ctx, &conv, s.db.Rebind(`
		SELECT
			COUNT(CASE WHEN variant = 'A' THEN 1 END) AS conversions_a,
			COUNT(CASE WHEN variant = 'B' THEN 1 END) AS conversions_b
		FROM conversions WHERE test_id = ?`), testID)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions: %w", err)
	}

	counts.ConversionsA = conv.ConversionsA
	counts.ConversionsB = conv.ConversionsB
	return &counts, nil
}
