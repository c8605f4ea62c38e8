package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/middleware"
)

// Router bundles what NewRouter mounts. Analytics, Health and Metrics are
// optional.
type Router struct {
	API       *Handler
	Analytics *analytics.Handler
	Health    *health.Checker
	Metrics   *metrics.Metrics
	Timeout   time.Duration
}

// NewRouter builds the HTTP handler.
//
//	POST   /api/v1/recommend
//	POST   /api/v1/postings
//	GET    /api/v1/postings/{id}
//	PUT    /api/v1/postings/{id}
//	DELETE /api/v1/postings/{id}
//	GET    /api/v1/stats
//	GET    /api/v1/analytics
//	GET    /health/live
//	GET    /health/ready
//
// Middleware, outermost first: RequestID, Logging, Metrics, Timeout.
func NewRouter(rt Router) http.Handler {
	mux := http.NewServeMux()
	h := rt.API

	mux.HandleFunc("POST /api/v1/recommend", h.Recommend)
	mux.HandleFunc("POST /api/v1/postings", h.CreatePosting)
	mux.HandleFunc("GET /api/v1/postings/{id}", h.GetPosting)
	mux.HandleFunc("PUT /api/v1/postings/{id}", h.UpdatePosting)
	mux.HandleFunc("DELETE /api/v1/postings/{id}", h.DeletePosting)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	if rt.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", rt.Analytics.Stats)
	}
	if rt.Health != nil {
		mux.HandleFunc("GET /health/live", rt.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", rt.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(rt.Timeout)(chain)
	if rt.Metrics != nil {
		chain = middleware.Metrics(rt.Metrics)(chain)
	}
	chain = middleware.Logging(chain)
	chain = middleware.RequestID(chain)
	return chain
}
