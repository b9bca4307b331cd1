package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/analytics"
	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

// Decision is the outcome of one decideWinner evaluation.
type Decision struct {
	Winner         *store.Variant
	Confidence     float64
	ShouldContinue bool

	Counts  store.VariantCounts
	Outcome stats.Outcome
}

// Results is the reporting snapshot for one test.
type Results struct {
	Test    *store.Test
	Counts  store.VariantCounts
	Outcome stats.Outcome
}

// TestSummary is one row of the list operation.
type TestSummary struct {
	Test   *store.Test
	Counts store.VariantCounts
}

// DecideWinner evaluates the stopping rule for a test. Completed tests return
// the stored winner and confidence without re-deriving anything from counts.
// When the evaluation crosses the decision threshold the test is marked
// completed; losing that race to a concurrent decider is a no-op that returns
// the stored decision.
func (e *Engine) DecideWinner(ctx context.Context, testID string) (*Decision, error) {
	t, err := e.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	counts, err := e.store.CountByVariant(ctx, testID)
	if err != nil {
		return nil, err
	}

	if t.Status == store.StatusCompleted {
		return storedDecision(t, counts), nil
	}

	out := stats.Evaluate(toStatsCounts(counts))
	d := &Decision{
		Confidence:     out.Confidence,
		ShouldContinue: out.ShouldContinue,
		Counts:         *counts,
		Outcome:        out,
	}
	if !out.HasWinner {
		return d, nil
	}

	if err := e.store.CompleteTest(ctx, testID, out.Winner, out.Confidence); err != nil {
		if errors.Is(err, store.ErrAlreadyCompleted) {
			t, err := e.getTest(ctx, testID)
			if err != nil {
				return nil, err
			}
			return storedDecision(t, counts), nil
		}
		return nil, err
	}

	winner := out.Winner
	d.Winner = &winner
	e.logger.Info("test completed",
		zap.String("test_id", testID),
		zap.String("winner", string(winner)),
		zap.Float64("confidence", out.Confidence),
		zap.Float64("z", out.ZScore),
	)
	e.sink.Emit(ctx, analytics.Event{
		Type:    "test_completed",
		TestID:  testID,
		Variant: string(winner),
	})

	return d, nil
}

// Results returns counts, rates and the current statistical read for one
// test, with no side effects.
func (e *Engine) Results(ctx context.Context, testID string) (*Results, error) {
	t, err := e.getTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	counts, err := e.store.CountByVariant(ctx, testID)
	if err != nil {
		return nil, err
	}
	return &Results{
		Test:    t,
		Counts:  *counts,
		Outcome: stats.Evaluate(toStatsCounts(counts)),
	}, nil
}

// ListSummaries returns every known test with its per-variant counts.
func (e *Engine) ListSummaries(ctx context.Context) ([]*TestSummary, error) {
	tests, err := e.store.ListTests(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]*TestSummary, 0, len(tests))
	for _, t := range tests {
		counts, err := e.store.CountByVariant(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, &TestSummary{Test: t, Counts: *counts})
	}
	return summaries, nil
}

func (e *Engine) getTest(ctx context.Context, testID string) (*store.Test, error) {
	t, err := e.store.GetTest(ctx, testID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "test %s not found", testID)
	}
	return t, err
}

func storedDecision(t *store.Test, counts *store.VariantCounts) *Decision {
	d := &Decision{
		Winner:         t.Winner,
		ShouldContinue: false,
		Counts:         *counts,
	}
	if t.Confidence != nil {
		d.Confidence = *t.Confidence
	}
	return d
}

func toStatsCounts(c *store.VariantCounts) stats.Counts {
	return stats.Counts{
		AssignmentsA: c.AssignmentsA,
		AssignmentsB: c.AssignmentsB,
		ConversionsA: c.ConversionsA,
		ConversionsB: c.ConversionsB,
	}
}
