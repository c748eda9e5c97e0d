package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/monitoring"
	"github.com/sells-group/email-analyzer/internal/pipeline"
	"github.com/sells-group/email-analyzer/internal/resilience"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h := buildRouter(newTestEnv(t, &offlineGenerator{}), 24)

	rr := doRequest(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_AnalyzeLowValue(t *testing.T) {
	gen := &offlineGenerator{}
	env := newTestEnv(t, gen)
	h := buildRouter(env, 24)

	rr := doRequest(t, h, http.MethodPost, "/analyze", analyzeRequest{Message: newsletter})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var a model.Analysis
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &a))
	assert.Equal(t, newsletter.ID, a.MessageID)
	assert.Equal(t, model.PriorityLow, a.Phase1.Priority)
	assert.Nil(t, a.Phase2)
	assert.Zero(t, gen.calls.Load())

	rr = doRequest(t, h, http.MethodGet, "/analyses/"+newsletter.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_AnalyzeModelOfflineFallsBack(t *testing.T) {
	gen := &offlineGenerator{}
	env := newTestEnv(t, gen)
	h := buildRouter(env, 24)

	rr := doRequest(t, h, http.MethodPost, "/analyze", analyzeRequest{Message: deliveryQuestion})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var a model.Analysis
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &a))
	require.NotNil(t, a.Phase2)
	assert.Equal(t, model.ProvenanceHybrid, a.Phase2.EnhanceProvenance)
	assert.True(t, a.Degraded)
	assert.Equal(t, int32(1), gen.calls.Load())

	rr = doRequest(t, h, http.MethodGet, "/dlq", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var entries []resilience.DLQEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, deliveryQuestion.ID, entries[0].Message.ID)

	// The entry is not due yet.
	rr = doRequest(t, h, http.MethodPost, "/dlq/retry", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var sum pipeline.RetrySummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Zero(t, sum.Attempted)

	rr = doRequest(t, h, http.MethodGet, "/analyses?degraded=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []model.Analysis
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, deliveryQuestion.ID, list[0].MessageID)
}

func TestRouter_AnalyzeBadRequests(t *testing.T) {
	h := buildRouter(newTestEnv(t, &offlineGenerator{}), 24)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")

	rr = doRequest(t, h, http.MethodPost, "/analyze", analyzeRequest{Message: model.Message{Subject: "no id"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "message.id is required")

	rr = doRequest(t, h, http.MethodPost, "/analyze/batch", batchRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_AnalyzeBatch(t *testing.T) {
	env := newTestEnv(t, &offlineGenerator{})
	h := buildRouter(env, 24)

	rr := doRequest(t, h, http.MethodPost, "/analyze/batch", batchRequest{Messages: []model.Message{newsletter, deliveryQuestion}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var s batchSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.Equal(t, 2, s.Messages)
	assert.Equal(t, 2, s.Analyzed)
	assert.Equal(t, 1, s.Degraded)
	assert.Equal(t, 1, s.ByPhase[model.PhaseTriage.String()])
	assert.Equal(t, 1, s.ByPhase[model.PhaseEnhance.String()])

	n, err := env.Store.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRouter_GetAnalysisNotFound(t *testing.T) {
	h := buildRouter(newTestEnv(t, &offlineGenerator{}), 24)

	rr := doRequest(t, h, http.MethodGet, "/analyses/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ListFilters(t *testing.T) {
	h := buildRouter(newTestEnv(t, &offlineGenerator{}), 24)

	for _, path := range []string{
		"/analyses?priority=urgent",
		"/analyses?phase=4",
		"/analyses?since=yesterday",
		"/analyses?limit=-1",
		"/analyses?offset=x",
	} {
		rr := doRequest(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}

	rr := doRequest(t, h, http.MethodGet, "/analyses?priority=high&phase=2&since=2026-01-01T00:00:00Z&limit=5", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestParseAnalysisFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/analyses?priority=critical&phase=3&degraded=true&offset=10", nil)
	f, err := parseAnalysisFilter(req)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, f.Priority)
	assert.Equal(t, model.PhaseInsight, f.FinalPhase)
	assert.True(t, f.DegradedOnly)
	assert.Equal(t, 100, f.Limit)
	assert.Equal(t, 10, f.Offset)
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestEnv(t, &offlineGenerator{})
	h := buildRouter(env, 24)

	doRequest(t, h, http.MethodPost, "/analyze", analyzeRequest{Message: deliveryQuestion})

	rr := doRequest(t, h, http.MethodGet, "/metrics?lookback_hours=48", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 48, snap.LookbackHours)
	assert.Equal(t, 1, snap.DLQDepth)

	rr = doRequest(t, h, http.MethodGet, "/metrics?lookback_hours=0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_CORS(t *testing.T) {
	h := buildRouter(newTestEnv(t, &offlineGenerator{}), 24)

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
