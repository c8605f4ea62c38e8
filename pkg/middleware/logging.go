package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/logger"
)

// ProcessTimeHeader reports server-side handling time in seconds.
const ProcessTimeHeader = "X-Process-Time"

// Logging writes one access log line per request and sets X-Process-Time on
// the response before the first byte is written.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		sw.beforeWrite = func() {
			sw.Header().Set(ProcessTimeHeader, fmt.Sprintf("%.6f", time.Since(start).Seconds()))
		}
		next.ServeHTTP(sw, r)

		log := logger.FromContext(r.Context())
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case sw.status >= http.StatusInternalServerError:
			log.Error("request completed", attrs...)
		case sw.status >= http.StatusBadRequest:
			log.Warn("request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}
	})
}
