package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// maxTop is the longest ranking the aggregator keeps per dimension.
const maxTop = 10

// Handler exposes recommendation analytics over HTTP.
type Handler struct {
	stats  func() AggregatedStats
	logger *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		stats:  aggregator.Stats,
		logger: slog.Default().With("component", "recommend-analytics"),
	}
}

// Stats serves the aggregated recommendation statistics as JSON. The
// optional top query parameter (1-10) shortens the query, location and
// posting rankings.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := maxTop
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTop {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "top must be an integer between 1 and " + strconv.Itoa(maxTop),
			})
			return
		}
		top = n
	}

	stats := h.stats().Truncate(top)
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing analytics response", "status", status, "error", err)
	}
}
