package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/analytics"
	"github.com/splitpilot/splitpilot/internal/store"
)

// AssignmentResult is what a caller needs to render a variant and to report
// conversions later.
type AssignmentResult struct {
	AssignmentID string
	TestID       string
	Variant      store.Variant
}

// Assign returns the variant for the given identity on the test identified by
// (entity, context), creating test and assignment as needed. Repeated calls
// with the same tuple always return the same variant: the stored assignment
// is checked before any hashing, and the (test, identity) unique constraint
// backstops concurrent first-time requests.
func (e *Engine) Assign(ctx context.Context, orgID, entity string, contextJSON json.RawMessage, identity Identity) (*AssignmentResult, error) {
	if !identity.Valid() {
		return nil, newError(KindInvalidIdentity, "a contact id or anonymous id is required")
	}

	test, err := e.FindOrCreateTest(ctx, orgID, entity, contextJSON)
	if err != nil {
		return nil, err
	}

	key := identity.Key()
	if a, err := e.store.GetAssignment(ctx, test.ID, key); err == nil {
		return &AssignmentResult{AssignmentID: a.ID, TestID: a.TestID, Variant: a.Variant}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	a := &store.Assignment{
		ID:          uuid.NewString(),
		TestID:      test.ID,
		IdentityKey: key,
		ContactID:   identity.ContactID,
		AnonID:      identity.AnonID,
		Variant:     identity.Bucket(),
	}
	if err := e.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a concurrent first-assignment race; the stored row is
			// authoritative, never re-roll.
			existing, err := e.store.GetAssignment(ctx, test.ID, key)
			if err != nil {
				return nil, err
			}
			return &AssignmentResult{AssignmentID: existing.ID, TestID: existing.TestID, Variant: existing.Variant}, nil
		}
		return nil, err
	}

	e.logger.Debug("assigned variant",
		zap.String("test_id", test.ID),
		zap.String("identity", key),
		zap.String("variant", string(a.Variant)),
	)
	e.sink.Emit(ctx, analytics.Event{
		Type:         "assignment_created",
		TestID:       test.ID,
		AssignmentID: a.ID,
		Variant:      string(a.Variant),
	})

	return &AssignmentResult{AssignmentID: a.ID, TestID: a.TestID, Variant: a.Variant}, nil
}
