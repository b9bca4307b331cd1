package store

import "encoding/json"

type Variant string

const (
	VariantA Variant = "A"
	VariantB Variant = "B"
)

type TestStatus string

const (
	StatusRunning   TestStatus = "running"
	StatusCompleted TestStatus = "completed"
)

// Test is a two-arm experiment scoped to an organization. ContextKey is the
// canonical form of the caller's context object; together with Entity it
// identifies which experiment an assignment request belongs to.
type Test struct {
	ID         string          `db:"id"`
	OrgID      string          `db:"org_id"`
	Entity     string          `db:"entity"`
	ContextKey string          `db:"context_key"`
	VariantA   json.RawMessage `db:"variant_a"`
	VariantB   json.RawMessage `db:"variant_b"`
	Status     TestStatus      `db:"status"`
	Winner     *Variant        `db:"winner"`
	Confidence *float64        `db:"winner_confidence"`
	CreatedAt  int64           `db:"created_at"` // unix seconds
	UpdatedAt  int64           `db:"updated_at"`
}

// Assignment binds one identity to one variant of one test. Exactly one of
// ContactID/AnonID is set; IdentityKey is the normalized form used for the
// uniqueness constraint.
type Assignment struct {
	ID          string  `db:"id"`
	TestID      string  `db:"test_id"`
	IdentityKey string  `db:"identity_key"`
	ContactID   *int64  `db:"contact_id"`
	AnonID      string  `db:"anon_id"`
	Variant     Variant `db:"variant"`
	CreatedAt   int64   `db:"created_at"`
}

// Conversion is one accepted success event. Variant is denormalized from the
// owning assignment at record time.
type Conversion struct {
	ID           string   `db:"id"`
	TestID       string   `db:"test_id"`
	AssignmentID string   `db:"assignment_id"`
	Variant      Variant  `db:"variant"`
	Type         string   `db:"conversion_type"`
	Value        *float64 `db:"value"`
	CreatedAt    int64    `db:"created_at"`
}

// VariantCounts holds the per-arm aggregates the decision engine runs on.
type VariantCounts struct {
	AssignmentsA int64 `db:"assignments_a"`
	AssignmentsB int64 `db:"assignments_b"`
	ConversionsA int64 `db:"conversions_a"`
	ConversionsB int64 `db:"conversions_b"`
}
