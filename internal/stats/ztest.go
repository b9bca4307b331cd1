// Package stats implements the two-proportion hypothesis test the decision
// engine runs on aggregated per-variant counts. Evaluate is pure: callers own
// all persistence and state transitions.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/splitpilot/splitpilot/internal/store"
)

// Minimum sample gates. Below these the test is not run at all, which avoids
// false positives on sparse data.
const (
	MinAssignmentsPerVariant = 100
	MinConversionsPerVariant = 5
)

// DecisionThreshold is the confidence at which a winner is declared.
const DecisionThreshold = 0.95

// Counts are the aggregate inputs: assignments and conversions per arm.
// Conversions are already distinct per (assignment, type) by construction of
// the recorder's uniqueness rule.
type Counts struct {
	AssignmentsA int64
	AssignmentsB int64
	ConversionsA int64
	ConversionsB int64
}

// Outcome is the result of one evaluation.
type Outcome struct {
	RateA      float64
	RateB      float64
	ZScore     float64
	PValue     float64
	Confidence float64

	Winner         store.Variant
	HasWinner      bool
	ShouldContinue bool
}

// Evaluate applies the sample-size gates, runs a pooled two-proportion z-test
// and maps the z-score onto a stepped confidence level. A winner is declared
// only at DecisionThreshold or above, as whichever arm has the higher raw
// conversion rate.
func Evaluate(c Counts) Outcome {
	out := Outcome{ShouldContinue: true, PValue: 1}

	if c.AssignmentsA > 0 {
		out.RateA = float64(c.ConversionsA) / float64(c.AssignmentsA)
	}
	if c.AssignmentsB > 0 {
		out.RateB = float64(c.ConversionsB) / float64(c.AssignmentsB)
	}

	if c.AssignmentsA < MinAssignmentsPerVariant || c.AssignmentsB < MinAssignmentsPerVariant ||
		c.ConversionsA < MinConversionsPerVariant || c.ConversionsB < MinConversionsPerVariant {
		return out
	}

	nA := float64(c.AssignmentsA)
	nB := float64(c.AssignmentsB)
	pooled := float64(c.ConversionsA+c.ConversionsB) / (nA + nB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/nA + 1/nB))
	if se == 0 {
		// Identical pooled extremes; no detectable difference.
		return out
	}

	z := math.Abs(out.RateA-out.RateB) / se
	out.ZScore = z
	out.PValue = 2 * (1 - distuv.UnitNormal.CDF(z))
	out.Confidence = confidenceFor(z)

	if out.Confidence >= DecisionThreshold {
		out.HasWinner = true
		out.ShouldContinue = false
		if out.RateA >= out.RateB {
			out.Winner = store.VariantA
		} else {
			out.Winner = store.VariantB
		}
	}

	return out
}

// confidenceFor maps a z-score onto the stepped confidence scale used for
// reporting and the stopping rule. Deliberately not a continuous p-value:
// operators read these as fixed significance tiers.
func confidenceFor(z float64) float64 {
	switch {
	case z >= 2.58:
		return 0.99
	case z >= 1.96:
		return 0.95
	case z >= 1.64:
		return 0.90
	case z >= 1.28:
		return 0.80
	}
	return math.Min(0.79, z*0.4)
}
