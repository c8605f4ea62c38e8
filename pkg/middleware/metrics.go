package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency and the
// in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter captures the response status code. beforeWrite, when set, runs
// once before headers are sent.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	beforeWrite func()
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
		if sw.beforeWrite != nil {
			sw.beforeWrite()
		}
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// normalizePath collapses posting ids so the path label stays bounded.
func normalizePath(path string) string {
	const prefix = "/api/v1/postings/"
	if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
		return prefix + "{id}"
	}
	return path
}
