package main

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmave/mavemeter/internal/config"
	"github.com/openmave/mavemeter/internal/monitoring"
	"github.com/openmave/mavemeter/internal/ratelimit"
	"github.com/openmave/mavemeter/internal/store"
	"github.com/openmave/mavemeter/internal/types"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.DataDir = t.TempDir()
	cfg.Server.RateLimitPerMin = 1000
	cfg.Analysis.KCandidates = []int{2}
	cfg.Analysis.CVFolds = 2
	cfg.Analysis.MinCoverage = 1
	cfg.Analysis.MinDonors = 1

	db, err := store.NewDB(cfg.Server.DataDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	redisClient, err := ratelimit.NewRedisClient("", "", 0)
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMin = cfg.Server.RateLimitPerMin

	deps := &serverDeps{
		cfg:     cfg,
		store:   store.NewStore(db),
		db:      db,
		redis:   redisClient,
		limiter: ratelimit.NewLimiter(redisClient, limiterCfg, metrics),
		metrics: metrics,
		logger:  monitoring.NewLogger(),
	}
	return buildRouter(deps)
}

func integratePayload() types.IntegrateRequest {
	score := func(v float64) *float64 { return &v }
	return types.IntegrateRequest{
		Experiments: []types.ExperimentPayload{
			{ID: "dms_alpha", Records: []types.RecordPayload{
				{HgvsPro: "p.Val57Gln", Score: score(2.0)},
				{HgvsPro: "p.Tyr9Pro", Score: score(-1.0)},
				{HgvsPro: "p.Gly12Asp", Score: score(0.5)},
			}},
			{ID: "dms_beta", Records: []types.RecordPayload{
				{HgvsPro: "p.Val57Gln", Score: score(4.0)},
				{HgvsPro: "p.Tyr9Pro", Score: score(-2.0)},
				{HgvsPro: "p.Gly12Asp", Score: score(1.0)},
			}},
		},
	}
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestIntegrateEndToEnd(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(t, router, "/api/v1/integrate", integratePayload())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp types.IntegrateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 2, resp.Result.BuildStats.Experiments)
	assert.Equal(t, 3, resp.Result.BuildStats.Variants)
	assert.NotEmpty(t, resp.Result.Summaries)

	// The run is now retrievable.
	w = get(t, router, "/api/v1/runs/"+resp.RunID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), resp.RunID)

	w = get(t, router, fmt.Sprintf("/api/v1/runs/%s/variants", resp.RunID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "V57Q")
}

func TestIntegrateRejectsEmptySubmission(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(t, router, "/api/v1/integrate", types.IntegrateRequest{
		Experiments: []types.ExperimentPayload{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntegrateRejectsUnresolvableData(t *testing.T) {
	router := newTestRouter(t)

	score := 1.0
	w := postJSON(t, router, "/api/v1/integrate", types.IntegrateRequest{
		Experiments: []types.ExperimentPayload{
			{ID: "junk", Records: []types.RecordPayload{
				{HgvsPro: "not a variant", Score: &score},
			}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty_input")
}

func TestIntegrateSeedOverrideIsReproducible(t *testing.T) {
	router := newTestRouter(t)

	seed := int64(1234)
	payload := integratePayload()
	payload.Options = &types.AnalysisOptions{Seed: &seed}

	w1 := postJSON(t, router, "/api/v1/integrate", payload)
	w2 := postJSON(t, router, "/api/v1/integrate", payload)
	require.Equal(t, http.StatusOK, w1.Code)
	require.Equal(t, http.StatusOK, w2.Code)

	var r1, r2 types.IntegrateResponse
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &r1))
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &r2))

	assert.Equal(t, r1.Result.Validation, r2.Result.Validation)
}

func TestListRuns(t *testing.T) {
	router := newTestRouter(t)

	// Distinct seeds so the response cache does not collapse the two posts.
	for i := 0; i < 2; i++ {
		seed := int64(100 + i)
		payload := integratePayload()
		payload.Options = &types.AnalysisOptions{Seed: &seed}
		w := postJSON(t, router, "/api/v1/integrate", payload)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := get(t, router, "/api/v1/runs")
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.RunListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 2)
}

func TestIntegrateCacheReplaysIdenticalSubmission(t *testing.T) {
	router := newTestRouter(t)

	w1 := postJSON(t, router, "/api/v1/integrate", integratePayload())
	require.Equal(t, http.StatusOK, w1.Code)
	w2 := postJSON(t, router, "/api/v1/integrate", integratePayload())
	require.Equal(t, http.StatusOK, w2.Code)

	var r1, r2 types.IntegrateResponse
	require.NoError(t, json.Unmarshal(w1.Body.Bytes(), &r1))
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &r2))
	assert.Equal(t, r1.RunID, r2.RunID)

	// The replayed response did not create a second run.
	w := get(t, router, "/api/v1/runs")
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.RunListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 1)
}

func TestGetRunHighlights(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(t, router, "/api/v1/integrate", integratePayload())
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.IntegrateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = get(t, router, fmt.Sprintf("/api/v1/runs/%s/highlights?n=2", resp.RunID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "most_deleterious")
	assert.Contains(t, w.Body.String(), "most_beneficial")

	w = get(t, router, "/api/v1/runs/does-not-exist/highlights")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResponsesAreGzippedWhenAccepted(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	gr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestGetRunNotFound(t *testing.T) {
	router := newTestRouter(t)

	w := get(t, router, "/api/v1/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, router, "/api/v1/runs/does-not-exist/variants")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := get(t, router, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Redis)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(t, router, "/api/v1/integrate", integratePayload())
	require.Equal(t, http.StatusOK, w.Code)

	w = get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "runs_completed")
	assert.Contains(t, w.Body.String(), "database_pool")
	assert.Contains(t, w.Body.String(), "rate_limiter")
	assert.Contains(t, w.Body.String(), "cache_misses")
	assert.Contains(t, w.Body.String(), "compressed_responses")
}
