// Package handler exposes the recommendation service over JSON HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/export"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/recommend"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/logger"
)

const maxBodyBytes = 2 << 20

type Handler struct {
	service      *recommend.Service
	cache        *embedding.Cached
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a Handler. cache may be nil when embedding caching is off.
func New(service *recommend.Service, cache *embedding.Cached, defaultLimit, maxResults int) *Handler {
	return &Handler{
		service:      service,
		cache:        cache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "http-handler"),
	}
}

type recommendRequest struct {
	QueryText string `json:"query_text"`
	Location  string `json:"location"`
	Limit     *int   `json:"limit"`
}

type resultJSON struct {
	PostingID       string    `json:"posting_id"`
	Title           string    `json:"title"`
	Company         string    `json:"company,omitempty"`
	Location        string    `json:"location"`
	URL             string    `json:"url,omitempty"`
	PostedAt        time.Time `json:"posted_at,omitzero"`
	Score           float64   `json:"score"`
	MatchPercent    float64   `json:"match_percent"`
	Rank            int       `json:"rank"`
	MatchedKeywords []string  `json:"matched_keywords"`
}

type recommendResponse struct {
	Query   string       `json:"query"`
	Results []resultJSON `json:"results"`
}

// Recommend handles POST /api/v1/recommend.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	limit := h.defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	limit = min(limit, h.maxResults)

	ctx := r.Context()
	results, err := h.service.Recommend(ctx, req.QueryText, req.Location, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	exp, err := h.service.Explain(ctx, req.QueryText, results)
	if err != nil {
		logger.FromContext(ctx).Warn("keyword explanation unavailable", "error", err)
	}

	resp := recommendResponse{
		Query:   strings.TrimSpace(req.QueryText),
		Results: make([]resultJSON, len(results)),
	}
	for i, res := range results {
		p := res.Posting
		matched := exp.Matched[p.ID]
		if matched == nil {
			matched = []string{}
		}
		resp.Results[i] = resultJSON{
			PostingID:       p.ID,
			Title:           p.Title,
			Company:         p.Company,
			Location:        p.Location,
			URL:             p.URL,
			PostedAt:        p.PostedAt,
			Score:           res.Score,
			MatchPercent:    export.MatchPercent(res.Score),
			Rank:            res.Rank,
			MatchedKeywords: matched,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CreatePosting handles POST /api/v1/postings.
func (h *Handler) CreatePosting(w http.ResponseWriter, r *http.Request) {
	var data index.PostingData
	if err := decodeBody(w, r, &data); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.service.Insert(r.Context(), data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/postings/"+p.ID)
	h.writeJSON(w, http.StatusCreated, p)
}

// UpdatePosting handles PUT /api/v1/postings/{id}.
func (h *Handler) UpdatePosting(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var data index.PostingData
	if err := decodeBody(w, r, &data); err != nil {
		h.writeError(w, r, err)
		return
	}
	if data.ID != "" && data.ID != id {
		h.writeError(w, r, apperrors.InvalidArgument("body id %q does not match path id %q", data.ID, id))
		return
	}
	data.ID = id
	p, err := h.service.Update(r.Context(), data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// DeletePosting handles DELETE /api/v1/postings/{id}.
func (h *Handler) DeletePosting(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Remove(r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPosting handles GET /api/v1/postings/{id}.
func (h *Handler) GetPosting(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"index": h.service.Stats()}
	if h.cache != nil {
		stats := h.cache.Stats()
		var hitRate float64
		if total := stats.Hits + stats.Misses; total > 0 {
			hitRate = float64(stats.Hits) / float64(total) * 100
		}
		resp["embedding_cache"] = map[string]any{
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"errors":   stats.Errors,
			"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		}
	} else {
		resp["embedding_cache"] = map[string]string{"status": "disabled"}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Newf(apperrors.ErrInvalidArgument, http.StatusRequestEntityTooLarge,
				"request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperrors.InvalidArgument("malformed JSON body: %v", err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
