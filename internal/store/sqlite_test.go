package store_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpilot/splitpilot/internal/store"
	"github.com/splitpilot/splitpilot/internal/testutil"
)

func newTest(entity, contextKey string) *store.Test {
	return &store.Test{
		ID:         uuid.NewString(),
		OrgID:      "org-1",
		Entity:     entity,
		ContextKey: contextKey,
		VariantA:   json.RawMessage(`{"content":"a"}`),
		VariantB:   json.RawMessage(`{"content":"b"}`),
		Status:     store.StatusRunning,
	}
}

func newAssignment(testID, anonID string, v store.Variant) *store.Assignment {
	return &store.Assignment{
		ID:          uuid.NewString(),
		TestID:      testID,
		IdentityKey: "anon:" + anonID,
		AnonID:      anonID,
		Variant:     v,
	}
}

func TestCreateAndGetTest(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	tt := newTest("headline", "{}")
	require.NoError(t, s.CreateTest(ctx, tt))
	assert.NotZero(t, tt.CreatedAt)

	got, err := s.GetTest(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, tt.ID, got.ID)
	assert.Equal(t, "headline", got.Entity)
	assert.Equal(t, store.StatusRunning, got.Status)
	assert.Nil(t, got.Winner)
	assert.Nil(t, got.Confidence)
	assert.JSONEq(t, `{"content":"a"}`, string(got.VariantA))

	_, err = s.GetTest(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOnlyOneRunningTestPerContext(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	first := newTest("headline", "{}")
	require.NoError(t, s.CreateTest(ctx, first))

	// A second running test for the same (entity, context) hits the partial
	// unique index.
	err := s.CreateTest(ctx, newTest("headline", "{}"))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// A different context is unaffected.
	require.NoError(t, s.CreateTest(ctx, newTest("headline", `{"page":"home"}`)))

	// Once the first test completes, a replacement is allowed.
	require.NoError(t, s.CompleteTest(ctx, first.ID, store.VariantA, 0.99))
	require.NoError(t, s.CreateTest(ctx, newTest("headline", "{}")))
}

func TestFindRunningTest(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	tt := newTest("headline", "{}")
	require.NoError(t, s.CreateTest(ctx, tt))

	got, err := s.FindRunningTest(ctx, "headline", "{}")
	require.NoError(t, err)
	assert.Equal(t, tt.ID, got.ID)

	_, err = s.FindRunningTest(ctx, "headline", `{"page":"home"}`)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Completed tests are invisible to the lookup.
	require.NoError(t, s.CompleteTest(ctx, tt.ID, store.VariantA, 0.95))
	_, err = s.FindRunningTest(ctx, "headline", "{}")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteTest(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	tt := newTest("headline", "{}")
	require.NoError(t, s.CreateTest(ctx, tt))

	require.NoError(t, s.CompleteTest(ctx, tt.ID, store.VariantB, 0.99))

	got, err := s.GetTest(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	require.NotNil(t, got.Winner)
	assert.Equal(t, store.VariantB, *got.Winner)
	require.NotNil(t, got.Confidence)
	assert.Equal(t, 0.99, *got.Confidence)

	// Second completion loses the conditional update.
	err = s.CompleteTest(ctx, tt.ID, store.VariantA, 0.95)
	assert.ErrorIs(t, err, store.ErrAlreadyCompleted)

	// The stored decision is untouched by the failed attempt.
	got, err = s.GetTest(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VariantB, *got.Winner)

	err = s.CompleteTest(ctx, "missing", store.VariantA, 0.95)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListTests(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTest(ctx, newTest("headline", "{}")))
	require.NoError(t, s.CreateTest(ctx, newTest("cta_button", "{}")))

	tests, err := s.ListTests(ctx)
	require.NoError(t, err)
	assert.Len(t, tests, 2)
}

func TestAssignments(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	tt := newTest("headline", "{}")
	require.NoError(t, s.CreateTest(ctx, tt))

	a := newAssignment(tt.ID, "visitor-1", store.VariantA)
	require.NoError(t, s.CreateAssignment(ctx, a))
	assert.NotZero(t, a.CreatedAt)

	got, err := s.GetAssignment(ctx, tt.ID, "anon:visitor-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, store.VariantA, got.Variant)
	assert.Nil(t, got.ContactID)
	assert.Equal(t, "visitor-1", got.AnonID)

	byID, err := s.GetAssignmentByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.IdentityKey, byID.IdentityKey)

	_, err = s.GetAssignment(ctx, tt.ID, "anon:visitor-2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Same identity on the same test violates the unique index.
	err = s.CreateAssignment(ctx, newAssignment(tt.ID, "visitor-1", store.VariantB))
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// Same identity on another test is fine.
	other := newTest("cta_button", "{}")
	require.NoError(t, s.CreateTest(ctx, other))
	assert.NoError(t, s.CreateAssignment(ctx, newAssignment(other.ID, "visitor-1", store.VariantB)))
}

func TestConversions(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	tt := newTest("headline", "{}")
	require.NoError(t, s.CreateTest(ctx, tt))
	a := newAssignment(tt.ID, "visitor-1", store.VariantA)
	require.NoError(t, s.CreateAssignment(ctx, a))

	value := 19.99
	c := &store.Conversion{
		ID:           uuid.NewString(),
		TestID:       tt.ID,
		AssignmentID: a.ID,
		Variant:      store.VariantA,
		Type:         "signup",
		Value:        &value,
	}
	require.NoError(t, s.CreateConversion(ctx, c))

	exists, err := s.HasConversion(ctx, a.ID, "signup")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.HasConversion(ctx, a.ID, "purchase")
	require.NoError(t, err)
	assert.False(t, exists)

	// Duplicate (assignment, type) is rejected; a second type is allowed.
	dup := &store.Conversion{
		ID:           uuid.NewString(),
		TestID:       tt.ID,
		AssignmentID: a.ID,
		Variant:      store.VariantA,
		Type:         "signup",
	}
	assert.ErrorIs(t, s.CreateConversion(ctx, dup), store.ErrDuplicate)

	second := &store.Conversion{
		ID:           uuid.NewString(),
		TestID:       tt.ID,
		AssignmentID: a.ID,
		Variant:      store.VariantA,
		Type:         "purchase",
	}
	require.NoError(t, s.CreateConversion(ctx, second))

	list, err := s.ListConversions(ctx, tt.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].Value)
	assert.Equal(t, 19.99, *list[0].Value)
	assert.Nil(t, list[1].Value)
}

func TestCountByVariant(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	tt := newTest("headline", "{}")
	require.NoError(t, s.CreateTest(ctx, tt))

	empty, err := s.CountByVariant(ctx, tt.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.AssignmentsA)
	assert.Zero(t, empty.ConversionsB)

	variants := []store.Variant{store.VariantA, store.VariantA, store.VariantA, store.VariantB}
	for i, v := range variants {
		a := newAssignment(tt.ID, "visitor-"+string(rune('a'+i)), v)
		require.NoError(t, s.CreateAssignment(ctx, a))
		if i%2 == 0 {
			c := &store.Conversion{
				ID:           uuid.NewString(),
				TestID:       tt.ID,
				AssignmentID: a.ID,
				Variant:      v,
				Type:         "signup",
			}
			require.NoError(t, s.CreateConversion(ctx, c))
		}
	}

	counts, err := s.CountByVariant(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.AssignmentsA)
	assert.Equal(t, int64(1), counts.AssignmentsB)
	assert.Equal(t, int64(2), counts.ConversionsA)
	assert.Equal(t, int64(0), counts.ConversionsB)
}
