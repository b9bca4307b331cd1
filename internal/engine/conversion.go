package engine

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/analytics"
	"github.com/splitpilot/splitpilot/internal/store"
)

// ConversionRequest is one reported success event. ClaimedTestID and
// ClaimedVariant are optional caller claims; when present they must agree
// with the assignment of record.
type ConversionRequest struct {
	AssignmentID string
	Type         string
	Value        *float64
	Identity     Identity

	ClaimedTestID  string
	ClaimedVariant string
}

// RecordConversion validates and persists one conversion. The canonical test
// id and variant always come from the stored assignment, never from the
// caller. Duplicate (assignment, type) submissions and identity mismatches
// are rejected; the unique index catches duplicates the pre-check misses
// under concurrency, and both paths surface the same error kind.
func (e *Engine) RecordConversion(ctx context.Context, req ConversionRequest) (*store.Conversion, error) {
	if req.AssignmentID == "" {
		return nil, newError(KindInvalidArgument, "assignment id is required")
	}
	if req.Type == "" {
		return nil, newError(KindInvalidArgument, "conversion type is required")
	}
	if req.Value != nil {
		v := *req.Value
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, newError(KindInvalidArgument, "conversion value must be a finite, non-negative number")
		}
	}

	a, err := e.store.GetAssignmentByID(ctx, req.AssignmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "assignment %s not found", req.AssignmentID)
	}
	if err != nil {
		return nil, err
	}

	if req.ClaimedTestID != "" && req.ClaimedTestID != a.TestID {
		return nil, newError(KindInconsistentRequest, "test id does not match the assignment of record")
	}
	if req.ClaimedVariant != "" && store.Variant(req.ClaimedVariant) != a.Variant {
		return nil, newError(KindInconsistentRequest, "variant does not match the assignment of record")
	}

	if !req.Identity.Valid() {
		return nil, newError(KindInvalidIdentity, "a contact id or anonymous id is required")
	}
	if !req.Identity.Matches(a) {
		// Hard fraud gate, logged distinctly from ordinary validation noise.
		e.logger.Warn("conversion rejected: reported identity does not match assignment (potential fraud)",
			zap.String("assignment_id", a.ID),
			zap.String("test_id", a.TestID),
			zap.String("reported_identity", req.Identity.Key()),
		)
		return nil, newError(KindIdentityMismatch, "reported identity does not match the assignment")
	}

	// Pre-check for a friendly rejection; the unique index is the actual
	// correctness mechanism under concurrent submissions.
	exists, err := e.store.HasConversion(ctx, a.ID, req.Type)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(KindDuplicateConversion, "conversion of type %q already recorded for this assignment", req.Type)
	}

	c := &store.Conversion{
		ID:           uuid.NewString(),
		TestID:       a.TestID,
		AssignmentID: a.ID,
		Variant:      a.Variant,
		Type:         req.Type,
		Value:        req.Value,
	}
	if err := e.store.CreateConversion(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, newError(KindDuplicateConversion, "conversion of type %q already recorded for this assignment", req.Type)
		}
		return nil, err
	}

	e.sink.Emit(ctx, analytics.Event{
		Type:         "conversion_recorded",
		TestID:       c.TestID,
		AssignmentID: c.AssignmentID,
		Variant:      string(c.Variant),
		Detail:       c.Type,
	})

	return c, nil
}
