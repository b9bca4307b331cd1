package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/store"
)

// CanonicalContext normalizes an arbitrary context payload into a stable
// lookup key. Decoding and re-encoding through encoding/json sorts map keys,
// so equivalent objects produce the same key regardless of field order. An
// empty context canonicalizes to "{}".
func CanonicalContext(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", &Error{Kind: KindInvalidArgument, Message: "context is not valid JSON", Cause: err}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", &Error{Kind: KindInvalidArgument, Message: "context cannot be canonicalized", Cause: err}
	}
	return string(b), nil
}

// FindOrCreateTest resolves the running test for (entity, context), creating
// one with default variant payloads if none exists. The earliest-created
// running test wins when several could match; the store's partial unique
// index prevents two running tests for the same pair, and losing the create
// race falls back to the winner's row.
func (e *Engine) FindOrCreateTest(ctx context.Context, orgID, entity string, contextJSON json.RawMessage) (*store.Test, error) {
	if entity == "" {
		return nil, newError(KindInvalidArgument, "entity name is required")
	}

	key, err := CanonicalContext(contextJSON)
	if err != nil {
		return nil, err
	}

	t, err := e.store.FindRunningTest(ctx, entity, key)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	t = &store.Test{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Entity:     entity,
		ContextKey: key,
		VariantA:   defaultVariantPayload(entity, store.VariantA),
		VariantB:   defaultVariantPayload(entity, store.VariantB),
		Status:     store.StatusRunning,
	}
	if err := e.store.CreateTest(ctx, t); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent creator got there first; reuse its test.
			return e.store.FindRunningTest(ctx, entity, key)
		}
		return nil, err
	}

	e.logger.Info("created test",
		zap.String("test_id", t.ID),
		zap.String("entity", entity),
		zap.String("context_key", key),
	)
	return t, nil
}

// MarkCompleted transitions a test to completed with the given winner and
// deciding confidence. store.ErrAlreadyCompleted passes through so callers
// can treat a lost completion race as a no-op.
func (e *Engine) MarkCompleted(ctx context.Context, testID string, winner store.Variant, confidence float64) error {
	err := e.store.CompleteTest(ctx, testID, winner, confidence)
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, "test %s not found", testID)
	}
	return err
}

func defaultVariantPayload(entity string, v store.Variant) json.RawMessage {
	b, _ := json.Marshal(map[string]string{
		"variant": string(v),
		"content": fmt.Sprintf("%s variant %s", entity, v),
	})
	return b
}
