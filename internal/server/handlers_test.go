package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantly/variantly/internal/engine"
	"github.com/variantly/variantly/internal/server"
	"github.com/variantly/variantly/internal/store"
	"github.com/variantly/variantly/internal/testutil"
)

func newTestServer(t *testing.T) (*store.SQLiteStore, *server.Server) {
	t.Helper()
	s := testutil.SetupTestStore(t)
	return s, server.New(s, 0, "", nil)
}

func doJSON(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func authed(path, token string) string {
	return fmt.Sprintf("%s?token=%s", path, token)
}

func TestHealth(t *testing.T) {
	s, srv := newTestServer(t)
	require.NoError(t, s.CreateExperiment(context.Background(), testutil.ActiveExperiment("exp-1")))

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health server.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.ExperimentsCount)
	assert.Positive(t, health.DBSizeBytes)
}

func TestAssignAndTrackFlow(t *testing.T) {
	s, srv := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))

	rec := doJSON(t, srv, http.MethodPost, "/v1/assign", server.AssignRequest{
		UserID:       "user-1",
		ExperimentID: "exp-1",
		SessionID:    "sess-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var assign server.AssignResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&assign))
	require.NotNil(t, assign.Variant)

	// Same pair again returns the same variant.
	rec = doJSON(t, srv, http.MethodPost, "/v1/assign", server.AssignRequest{
		UserID:       "user-1",
		ExperimentID: "exp-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var again server.AssignResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&again))
	require.NotNil(t, again.Variant)
	assert.Equal(t, assign.Variant.ID, again.Variant.ID)

	rec = doJSON(t, srv, http.MethodPost, "/v1/track", server.TrackRequest{
		ExperimentID: "exp-1",
		UserID:       "user-1",
		EventType:    "signup_completed",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	count, err := s.CountEvents(ctx, "exp-1", assign.Variant.ID, "signup_completed")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAssign_UnknownExperimentReturnsNullVariant(t *testing.T) {
	_, srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/assign", server.AssignRequest{
		UserID:       "user-1",
		ExperimentID: "ghost",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var assign server.AssignResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&assign))
	assert.Nil(t, assign.Variant)
}

func TestAssign_MissingFields(t *testing.T) {
	_, srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/assign", server.AssignRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrack_UnassignedUserStillAccepted(t *testing.T) {
	s, srv := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))

	rec := doJSON(t, srv, http.MethodPost, "/v1/track", server.TrackRequest{
		ExperimentID: "exp-1",
		UserID:       "stranger",
		EventType:    "signup_completed",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	events, err := s.GetEvents(ctx, "exp-1")
	require.NoError(t, err)
	assert.Empty(t, events, "unattributable events are dropped, not stored")
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	_, srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/v1/experiments", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/experiments?token=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, authed("/v1/experiments", srv.Token()), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthBearerHeader(t *testing.T) {
	_, srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/experiments", nil)
	req.Header.Set("Authorization", "Bearer "+srv.Token())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateExperiment_ValidationErrors(t *testing.T) {
	_, srv := newTestServer(t)

	exp := testutil.ActiveExperiment("exp-1")
	exp.Variants[0].IsControl = false
	exp.Variants[1].Weight = 40

	rec := doJSON(t, srv, http.MethodPost, authed("/v1/experiments", srv.Token()), exp)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Errors, 2)
	assert.Contains(t, body.Errors[0], "100%")
	assert.Contains(t, body.Errors[1], "control")
}

func TestCreateAndListExperiments(t *testing.T) {
	_, srv := newTestServer(t)
	token := srv.Token()

	rec := doJSON(t, srv, http.MethodPost, authed("/v1/experiments", token), testutil.ActiveExperiment("exp-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, authed("/v1/experiments", token), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var exps []*store.Experiment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&exps))
	require.Len(t, exps, 1)
	assert.Equal(t, "exp-1", exps[0].ID)
}

func TestStatusAndResultsEndpoints(t *testing.T) {
	s, srv := newTestServer(t)
	ctx := context.Background()
	token := srv.Token()

	require.NoError(t, s.CreateExperiment(ctx, testutil.ActiveExperiment("exp-1")))

	rec := doJSON(t, srv, http.MethodPost, authed("/v1/experiments/exp-1/status", token),
		map[string]string{"status": "paused"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := s.GetExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, got.Status)

	rec = doJSON(t, srv, http.MethodGet, authed("/v1/experiments/exp-1/results", token), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var results engine.Results
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	assert.Len(t, results.Variants, 2)

	rec = doJSON(t, srv, http.MethodGet, authed("/v1/experiments/ghost/results", token), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, authed("/v1/experiments/exp-1/status", token),
		map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileUpsert(t *testing.T) {
	s, srv := newTestServer(t)
	token := srv.Token()

	rec := doJSON(t, srv, http.MethodPut, authed("/v1/profiles/user-1", token),
		map[string]string{"segment": "trial", "country": "DE"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	attrs, err := s.GetUserProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "trial", attrs["segment"])
	assert.Equal(t, "DE", attrs["country"])
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	s, srv := newTestServer(t)
	require.NoError(t, s.CreateExperiment(context.Background(), testutil.ActiveExperiment("exp-1")))

	rec := doJSON(t, srv, http.MethodPost, "/v1/assign", server.AssignRequest{
		UserID:       "user-1",
		ExperimentID: "exp-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "variantly_assignments_served_total")
}
