package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/store"
)

type assignRequest struct {
	OrgID     string          `json:"org_id"`
	Entity    string          `json:"entity" validate:"required"`
	Context   json.RawMessage `json:"context"`
	ContactID *int64          `json:"contact_id"`
	AnonID    string          `json:"anon_id"`
}

type assignResponse struct {
	AssignmentID string `json:"assignment_id"`
	TestID       string `json:"test_id"`
	Variant      string `json:"variant"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Assign(r.Context(), req.OrgID, req.Entity, req.Context, engine.Identity{
		ContactID: req.ContactID,
		AnonID:    req.AnonID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.assignments.WithLabelValues(string(result.Variant)).Inc()
	s.writeJSON(w, http.StatusOK, assignResponse{
		AssignmentID: result.AssignmentID,
		TestID:       result.TestID,
		Variant:      string(result.Variant),
	})
}

type convertRequest struct {
	AssignmentID   string   `json:"assignment_id" validate:"required"`
	ConversionType string   `json:"conversion_type" validate:"required"`
	Value          *float64 `json:"value"`
	ContactID      *int64   `json:"contact_id"`
	AnonID         string   `json:"anon_id"`
	TestID         string   `json:"test_id"`
	Variant        string   `json:"variant" validate:"omitempty,oneof=A B"`
}

type convertResponse struct {
	ID             string   `json:"id"`
	TestID         string   `json:"test_id"`
	Variant        string   `json:"variant"`
	ConversionType string   `json:"conversion_type"`
	Value          *float64 `json:"value,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !s.decode(w, r, &req) {
		return
	}

	c, err := s.engine.RecordConversion(r.Context(), engine.ConversionRequest{
		AssignmentID:   req.AssignmentID,
		Type:           req.ConversionType,
		Value:          req.Value,
		Identity:       engine.Identity{ContactID: req.ContactID, AnonID: req.AnonID},
		ClaimedTestID:  req.TestID,
		ClaimedVariant: req.Variant,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.conversions.WithLabelValues(string(c.Variant)).Inc()
	s.writeJSON(w, http.StatusCreated, convertResponse{
		ID:             c.ID,
		TestID:         c.TestID,
		Variant:        string(c.Variant),
		ConversionType: c.Type,
		Value:          c.Value,
		CreatedAt:      time.Unix(c.CreatedAt, 0).UTC().Format(time.RFC3339),
	})
}

type variantSnapshot struct {
	Assignments int64   `json:"assignments"`
	Conversions int64   `json:"conversions"`
	Rate        float64 `json:"rate"`
}

type decideResponse struct {
	Winner         *string         `json:"winner,omitempty"`
	Confidence     float64         `json:"confidence"`
	ShouldContinue bool            `json:"should_continue"`
	VariantA       variantSnapshot `json:"variant_a"`
	VariantB       variantSnapshot `json:"variant_b"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "id")

	d, err := s.engine.DecideWinner(r.Context(), testID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := decideResponse{
		Confidence:     d.Confidence,
		ShouldContinue: d.ShouldContinue,
		VariantA: variantSnapshot{
			Assignments: d.Counts.AssignmentsA,
			Conversions: d.Counts.ConversionsA,
			Rate:        d.Outcome.RateA,
		},
		VariantB: variantSnapshot{
			Assignments: d.Counts.AssignmentsB,
			Conversions: d.Counts.ConversionsB,
			Rate:        d.Outcome.RateB,
		},
	}
	if d.Winner != nil {
		winner := string(*d.Winner)
		resp.Winner = &winner
		s.metrics.decisions.Inc()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type resultsResponse struct {
	TestID         string          `json:"test_id"`
	Entity         string          `json:"entity"`
	ContextKey     string          `json:"context_key"`
	Status         string          `json:"status"`
	Winner         *string         `json:"winner,omitempty"`
	VariantA       variantSnapshot `json:"variant_a"`
	VariantB       variantSnapshot `json:"variant_b"`
	ZScore         float64         `json:"z_score"`
	PValue         float64         `json:"p_value"`
	Confidence     float64         `json:"confidence"`
	ShouldContinue bool            `json:"should_continue"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "id")

	res, err := s.engine.Results(r.Context(), testID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := resultsResponse{
		TestID:     res.Test.ID,
		Entity:     res.Test.Entity,
		ContextKey: res.Test.ContextKey,
		Status:     string(res.Test.Status),
		VariantA: variantSnapshot{
			Assignments: res.Counts.AssignmentsA,
			Conversions: res.Counts.ConversionsA,
			Rate:        res.Outcome.RateA,
		},
		VariantB: variantSnapshot{
			Assignments: res.Counts.AssignmentsB,
			Conversions: res.Counts.ConversionsB,
			Rate:        res.Outcome.RateB,
		},
		ZScore:         res.Outcome.ZScore,
		PValue:         res.Outcome.PValue,
		Confidence:     res.Outcome.Confidence,
		ShouldContinue: res.Outcome.ShouldContinue,
	}
	if res.Test.Winner != nil {
		winner := string(*res.Test.Winner)
		resp.Winner = &winner
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type testSummaryResponse struct {
	TestID     string          `json:"test_id"`
	Entity     string          `json:"entity"`
	ContextKey string          `json:"context_key"`
	Status     string          `json:"status"`
	Winner     *string         `json:"winner,omitempty"`
	CreatedAt  string          `json:"created_at"`
	VariantA   variantSnapshot `json:"variant_a"`
	VariantB   variantSnapshot `json:"variant_b"`
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.engine.ListSummaries(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]testSummaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		item := testSummaryResponse{
			TestID:     sum.Test.ID,
			Entity:     sum.Test.Entity,
			ContextKey: sum.Test.ContextKey,
			Status:     string(sum.Test.Status),
			CreatedAt:  time.Unix(sum.Test.CreatedAt, 0).UTC().Format(time.RFC3339),
			VariantA: variantSnapshot{
				Assignments: sum.Counts.AssignmentsA,
				Conversions: sum.Counts.ConversionsA,
			},
			VariantB: variantSnapshot{
				Assignments: sum.Counts.AssignmentsB,
				Conversions: sum.Counts.ConversionsB,
			},
		}
		if sum.Counts.AssignmentsA > 0 {
			item.VariantA.Rate = float64(sum.Counts.ConversionsA) / float64(sum.Counts.AssignmentsA)
		}
		if sum.Counts.AssignmentsB > 0 {
			item.VariantB.Rate = float64(sum.Counts.ConversionsB) / float64(sum.Counts.AssignmentsB)
		}
		if sum.Test.Winner != nil {
			winner := string(*sum.Test.Winner)
			item.Winner = &winner
		}
		resp = append(resp, item)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tests, err := s.store.ListTests(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// decode reads and validates a JSON request body, writing the error response
// itself when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeErrorKind(w, engine.KindInvalidArgument, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeErrorKind(w, engine.KindInvalidArgument, err.Error())
		return false
	}
	return true
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var kindStatus = map[engine.Kind]int{
	engine.KindInvalidIdentity:     http.StatusBadRequest,
	engine.KindInvalidArgument:     http.StatusBadRequest,
	engine.KindInconsistentRequest: http.StatusBadRequest,
	engine.KindIdentityMismatch:    http.StatusBadRequest,
	engine.KindNotFound:            http.StatusNotFound,
	engine.KindDuplicateConversion: http.StatusConflict,
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		s.metrics.rejections.WithLabelValues(string(engErr.Kind)).Inc()
		status, ok := kindStatus[engErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		s.writeJSON(w, status, errorEnvelope{Error: errorBody{
			Kind:    string(engErr.Kind),
			Message: engErr.Message,
		}})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.writeErrorKind(w, engine.KindNotFound, "not found")
		return
	}

	s.logger.Error("request failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: errorBody{
		Kind:    string(engine.KindInternal),
		Message: "internal error",
	}})
}

func (s *Server) writeErrorKind(w http.ResponseWriter, kind engine.Kind, message string) {
	s.writeError(w, &engine.Error{Kind: kind, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
