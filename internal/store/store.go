package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert hits a uniqueness constraint:
	// a second assignment for the same (test, identity) or a second
	// conversion of the same type for the same assignment.
	ErrDuplicate = errors.New("duplicate record")

	// ErrAlreadyCompleted is returned by CompleteTest when the test has
	// already transitioned to completed.
	ErrAlreadyCompleted = errors.New("test already completed")
)

// Store defines the durable operations the engine runs on. All state lives
// here; the engine itself keeps nothing between calls.
type Store interface {
	// Test operations
	CreateTest(ctx context.Context, t *Test) error
	GetTest(ctx context.Context, id string) (*Test, error)
	FindRunningTest(ctx context.Context, entity, contextKey string) (*Test, error)
	ListTests(ctx context.Context) ([]*Test, error)
	// CompleteTest transitions running -> completed and records the winner
	// and deciding confidence. Returns ErrAlreadyCompleted if another caller
	// got there first.
	CompleteTest(ctx context.Context, id string, winner Variant, confidence float64) error

	// Assignment operations
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, testID, identityKey string) (*Assignment, error)
	GetAssignmentByID(ctx context.Context, id string) (*Assignment, error)

	// Conversion operations
	CreateConversion(ctx context.Context, c *Conversion) error
	HasConversion(ctx context.Context, assignmentID, conversionType string) (bool, error)
	ListConversions(ctx context.Context, testID string) ([]*Conversion, error)

	// Aggregates
	CountByVariant(ctx context.Context, testID string) (*VariantCounts, error)

	// Lifecycle
	Close() error
}
