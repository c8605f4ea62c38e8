package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (http.Handler, *analytics.Aggregator) {
	t.Helper()
	m, err := embedding.NewHashModel(64)
	require.NoError(t, err)
	ex, err := keywords.New(m)
	require.NoError(t, err)
	idx, err := index.New(m, ex, config.IndexConfig{})
	require.NoError(t, err)

	agg := analytics.NewAggregator()
	svc := recommend.New(idx, m, ex, recommend.WithTracker(agg))
	for _, d := range []index.PostingData{
		{ID: "A", Title: "Python backend engineer", Description: "Python developer", Location: "Remote"},
		{ID: "B", Title: "Java backend engineer", Location: "Onsite-NYC"},
	} {
		_, err := svc.Insert(context.Background(), d)
		require.NoError(t, err)
	}

	checker := health.NewChecker(0)
	checker.Register("index", health.CountCheck("postings", idx.Len, false))
	return NewRouter(Router{
		API:       New(svc, nil, 10, 2),
		Analytics: analytics.NewHandler(agg),
		Health:    checker,
		Metrics:   metrics.New(),
	}), agg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRecommendEndpoint(t *testing.T) {
	h, agg := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/recommend",
		`{"query_text": "backend developer skilled in Python", "location": "Remote", "limit": 5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(middleware.ProcessTimeHeader))

	var resp recommendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "backend developer skilled in Python", resp.Query)
	require.Len(t, resp.Results, 1)
	got := resp.Results[0]
	assert.Equal(t, "A", got.PostingID)
	assert.Equal(t, "remote", got.Location)
	assert.Equal(t, 1, got.Rank)
	assert.InDelta(t, got.Score*100, got.MatchPercent, 0.01)
	assert.NotEmpty(t, got.MatchedKeywords)

	assert.Equal(t, int64(1), agg.Stats().TotalRequests)
}

func TestRecommendLimitClampedToMax(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/recommend", `{"query_text": "engineer", "limit": 50}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp recommendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2)
}

func TestRecommendErrors(t *testing.T) {
	h, _ := newTestServer(t)
	for name, body := range map[string]string{
		"empty query": `{"query_text": "  "}`,
		"zero limit":  `{"query_text": "python", "limit": 0}`,
		"malformed":   `{"query_text": `,
		"negative":    `{"query_text": "python", "limit": -3}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/v1/recommend", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), `"error"`, name)
	}
}

func TestRecommendNoMatchesReturnsEmptyList(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/recommend", `{"query_text": "python", "location": "Berlin"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"query": "python", "results": []}`, rec.Body.String())
}

func TestPostingLifecycle(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/postings", `{"id": "C", "title": "Go engineer", "location": "Berlin"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/postings/C", rec.Header().Get("Location"))

	rec = do(t, h, http.MethodPost, "/api/v1/postings", `{"id": "C", "title": "Go engineer"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/postings/C", `{"title": "Senior Go engineer", "location": "Berlin"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/postings/C", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Senior Go engineer", p["title"])
	assert.NotContains(t, p, "embedding")

	rec = do(t, h, http.MethodPut, "/api/v1/postings/C", `{"id": "D", "title": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/postings/C", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/postings/C", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/postings/C", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodPut, "/api/v1/postings/C", `{"title": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePostingValidation(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/postings", `{"description": "no title"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "title")
}

func TestStatsAndHealth(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Index index.Stats       `json:"index"`
		Cache map[string]string `json:"embedding_cache"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Index.Postings)
	assert.Equal(t, "disabled", stats.Cache["status"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/analytics", "").Code)
}
