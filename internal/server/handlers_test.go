package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/server"
	"github.com/splitpilot/splitpilot/internal/testutil"
)

func setupServer(t *testing.T) *server.Server {
	t.Helper()
	s := testutil.SetupStore(t)
	eng := engine.New(s, nil, nil)
	return server.New(eng, s, nil, 0)
}

func doJSON(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

type errResponse struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAssignEndpoint(t *testing.T) {
	srv := setupServer(t)

	body := map[string]any{
		"entity":  "headline",
		"anon_id": "visitor-1",
		"context": map[string]string{"page": "pricing"},
	}
	w := doJSON(t, srv, http.MethodPost, "/api/assign", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	first := decodeBody[map[string]any](t, w)
	assert.NotEmpty(t, first["assignment_id"])
	assert.NotEmpty(t, first["test_id"])
	assert.Contains(t, []any{"A", "B"}, first["variant"])

	// The same visitor always gets the same assignment back.
	w = doJSON(t, srv, http.MethodPost, "/api/assign", body)
	require.Equal(t, http.StatusOK, w.Code)
	again := decodeBody[map[string]any](t, w)
	assert.Equal(t, first, again)
}

func TestAssignEndpointRejectsMissingIdentity(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{"entity": "headline"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[errResponse](t, w)
	assert.Equal(t, "invalid_identity", resp.Error.Kind)
}

func TestAssignEndpointRejectsMissingEntity(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{"anon_id": "visitor-1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[errResponse](t, w)
	assert.Equal(t, "invalid_argument", resp.Error.Kind)
}

func TestAssignEndpointRejectsMalformedJSON(t *testing.T) {
	srv := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/assign", bytes.NewBufferString("{broken"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConvertEndpoint(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{
		"entity": "headline", "anon_id": "visitor-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assignment := decodeBody[map[string]any](t, w)

	convert := map[string]any{
		"assignment_id":   assignment["assignment_id"],
		"conversion_type": "signup",
		"anon_id":         "visitor-1",
		"value":           9.5,
	}
	w = doJSON(t, srv, http.MethodPost, "/api/convert", convert)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, assignment["test_id"], resp["test_id"])
	assert.Equal(t, assignment["variant"], resp["variant"])
	assert.Equal(t, "signup", resp["conversion_type"])
	assert.Equal(t, 9.5, resp["value"])
	assert.NotEmpty(t, resp["created_at"])

	// Replay is rejected with a conflict.
	w = doJSON(t, srv, http.MethodPost, "/api/convert", convert)
	require.Equal(t, http.StatusConflict, w.Code)
	errResp := decodeBody[errResponse](t, w)
	assert.Equal(t, "duplicate_conversion", errResp.Error.Kind)
}

func TestConvertEndpointIdentityMismatch(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{
		"entity": "headline", "anon_id": "visitor-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assignment := decodeBody[map[string]any](t, w)

	w = doJSON(t, srv, http.MethodPost, "/api/convert", map[string]any{
		"assignment_id":   assignment["assignment_id"],
		"conversion_type": "signup",
		"anon_id":         "someone-else",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[errResponse](t, w)
	assert.Equal(t, "identity_mismatch", resp.Error.Kind)
}

func TestConvertEndpointInconsistentClaim(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{
		"entity": "headline", "anon_id": "visitor-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assignment := decodeBody[map[string]any](t, w)

	w = doJSON(t, srv, http.MethodPost, "/api/convert", map[string]any{
		"assignment_id":   assignment["assignment_id"],
		"conversion_type": "signup",
		"anon_id":         "visitor-1",
		"test_id":         "some-other-test",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[errResponse](t, w)
	assert.Equal(t, "inconsistent_request", resp.Error.Kind)
}

func TestConvertEndpointUnknownAssignment(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/convert", map[string]any{
		"assignment_id":   "nope",
		"conversion_type": "signup",
		"anon_id":         "visitor-1",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeBody[errResponse](t, w)
	assert.Equal(t, "not_found", resp.Error.Kind)
}

func TestConvertEndpointRejectsBadVariantClaim(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/convert", map[string]any{
		"assignment_id":   "whatever",
		"conversion_type": "signup",
		"anon_id":         "visitor-1",
		"variant":         "C",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[errResponse](t, w)
	assert.Equal(t, "invalid_argument", resp.Error.Kind)
}

func TestResultsEndpoint(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{
		"entity": "headline", "anon_id": "visitor-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assignment := decodeBody[map[string]any](t, w)
	testID := assignment["test_id"].(string)

	w = doJSON(t, srv, http.MethodGet, "/api/tests/"+testID+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, testID, resp["test_id"])
	assert.Equal(t, "headline", resp["entity"])
	assert.Equal(t, "running", resp["status"])
	assert.Equal(t, true, resp["should_continue"])
}

func TestResultsEndpointUnknownTest(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/tests/nope/results", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeBody[errResponse](t, w)
	assert.Equal(t, "not_found", resp.Error.Kind)
}

func TestDecideEndpoint(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{
		"entity": "headline", "anon_id": "visitor-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assignment := decodeBody[map[string]any](t, w)
	testID := assignment["test_id"].(string)

	// One assignment is nowhere near the evidence gates.
	w = doJSON(t, srv, http.MethodPost, "/api/tests/"+testID+"/decide", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, resp["should_continue"])
	assert.Nil(t, resp["winner"])
}

func TestListTestsEndpoint(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/tests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{
		"entity": "headline", "anon_id": "visitor-1",
	})

	w = doJSON(t, srv, http.MethodGet, "/api/tests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]map[string]any](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "headline", list[0]["entity"])
	assert.Equal(t, "running", list[0]["status"])
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, "ok", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupServer(t)

	doJSON(t, srv, http.MethodPost, "/api/assign", map[string]any{
		"entity": "headline", "anon_id": "visitor-1",
	})

	w := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "splitpilot_assignments_total")
}
