// Package recommend answers job-seeker queries: it embeds the query, asks the
// index for candidates under the location constraint and ranks them.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/tracing"
)

// Outcomes reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Observer receives one call per Recommend. *metrics.Metrics implements it.
type Observer interface {
	ObserveRecommend(outcome string, took time.Duration, candidates, results int)
}

type noopObserver struct{}

func (noopObserver) ObserveRecommend(string, time.Duration, int, int) {}

type Option func(*Service)

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

// WithTracker sends one analytics event per Recommend to t.
func WithTracker(t analytics.Tracker) Option { return func(s *Service) { s.tracker = t } }

// WithEmbedTimeout bounds the query embedding call. Zero means no limit.
func WithEmbedTimeout(d time.Duration) Option { return func(s *Service) { s.embedTimeout = d } }

// WithQueryKeywords sets how many intent keywords Explain extracts from a
// query.
func WithQueryKeywords(n int) Option { return func(s *Service) { s.queryKeywords = n } }

type Service struct {
	index         *index.Index
	model         embedding.Model
	extractor     *keywords.Extractor
	observer      Observer
	tracker       analytics.Tracker
	embedTimeout  time.Duration
	queryKeywords int
	logger        *slog.Logger
}

// New creates a Service over idx. model must be the one idx embeds postings
// with. extractor may be nil, in which case Explain reports no matches.
func New(idx *index.Index, model embedding.Model, extractor *keywords.Extractor, opts ...Option) *Service {
	s := &Service{
		index:         idx,
		model:         model,
		extractor:     extractor,
		observer:      noopObserver{},
		queryKeywords: 5,
		logger:        slog.Default().With("component", "recommend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recommend returns up to topK postings most similar to queryText whose
// location contains locationFilter. No candidates yields an empty slice and
// a nil error.
func (s *Service) Recommend(ctx context.Context, queryText, locationFilter string, topK int) ([]ranker.RankedResult, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "recommend", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(s.logger)
	}()

	var (
		candidates int
		results    []ranker.RankedResult
		err        error
	)
	q, err := NewQuery(s.model, queryText, locationFilter)
	if err == nil && topK <= 0 {
		err = apperrors.InvalidArgument("top_k must be positive, got %d", topK)
	}
	if err == nil {
		results, candidates, err = s.run(ctx, q, topK)
	}
	s.finish(ctx, queryText, locationFilter, topK, candidates, results, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) run(ctx context.Context, q *Query, topK int) ([]ranker.RankedResult, int, error) {
	vec, err := s.embedQuery(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	_, candSpan := tracing.StartChildSpan(ctx, "rank")
	var candidates int
	results, err := ranker.Rank(vec, counted(s.index.Candidates(vec, q.LocationFilter), &candidates), topK)
	candSpan.SetAttr("candidates", candidates)
	candSpan.End()
	if err != nil {
		return nil, candidates, fmt.Errorf("ranking candidates: %w", err)
	}
	return results, candidates, nil
}

func (s *Service) embedQuery(ctx context.Context, q *Query) ([]float32, error) {
	ctx, span := tracing.StartChildSpan(ctx, "embed_query")
	defer span.End()
	span.SetAttr("model", s.model.Name())

	var vec []float32
	err := resilience.WithTimeout(ctx, s.embedTimeout, "embedding query", func(ctx context.Context) error {
		v, err := q.Embedding(ctx)
		vec = v
		return err
	})
	switch {
	case errors.Is(err, resilience.ErrTimeout):
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	case err != nil:
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vec, nil
}

func (s *Service) finish(ctx context.Context, query, location string, topK, candidates int, results []ranker.RankedResult, err error, took time.Duration) {
	outcome := OutcomeOK
	switch {
	case errors.Is(err, apperrors.ErrInvalidArgument):
		outcome = OutcomeInvalid
	case err != nil:
		outcome = OutcomeError
	case len(results) == 0:
		outcome = OutcomeEmpty
	}
	s.observer.ObserveRecommend(outcome, took, candidates, len(results))

	log := logger.FromContext(ctx)
	if err != nil {
		if outcome == OutcomeError {
			log.Error("recommendation failed", "query", logger.Truncate(query, 80), "error", err)
		} else {
			log.Debug("recommendation rejected", "error", err)
		}
	} else {
		log.Info("recommendation completed",
			"query", logger.Truncate(query, 80),
			"location", location,
			"limit", topK,
			"candidates", candidates,
			"returned", len(results),
			"latency_ms", took.Milliseconds(),
		)
	}

	if s.tracker == nil || outcome == OutcomeInvalid {
		return
	}
	event := analytics.RecommendEvent{
		Type:       analytics.EventRecommend,
		Query:      query,
		Location:   index.NormalizeLocation(location),
		Limit:      topK,
		Candidates: candidates,
		Returned:   len(results),
		LatencyMs:  took.Milliseconds(),
		Timestamp:  time.Now().UTC(),
		RequestID:  logger.RequestID(ctx),
	}
	switch outcome {
	case OutcomeError:
		event.Type = analytics.EventFailed
		event.Error = err.Error()
	case OutcomeEmpty:
		event.Type = analytics.EventEmptyResult
	default:
		event.TopScore = results[0].Score
		event.PostingIDs = make([]string, len(results))
		for i, r := range results {
			event.PostingIDs[i] = r.Posting.ID
		}
	}
	s.tracker.Track(event)
}

// counted passes seq through, adding every yielded element to *n.
func counted[T any](seq iter.Seq[T], n *int) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range seq {
			*n++
			if !yield(v) {
				return
			}
		}
	}
}

// Explanation reports why results matched: the intent keywords found in the
// query and, per posting id, which of the posting's keywords overlap them.
type Explanation struct {
	QueryKeywords []keywords.Keyword  `json:"query_keywords"`
	Matched       map[string][]string `json:"matched"`
}

// Explain extracts intent keywords from queryText and intersects them with
// each result's posting keywords.
func (s *Service) Explain(ctx context.Context, queryText string, results []ranker.RankedResult) (Explanation, error) {
	exp := Explanation{
		QueryKeywords: []keywords.Keyword{},
		Matched:       make(map[string][]string, len(results)),
	}
	for _, r := range results {
		exp.Matched[r.Posting.ID] = []string{}
	}
	if s.extractor == nil || len(results) == 0 {
		return exp, nil
	}
	kws, err := s.extractor.Extract(ctx, queryText, s.queryKeywords)
	if err != nil {
		return exp, fmt.Errorf("extracting query keywords: %w", err)
	}
	exp.QueryKeywords = kws
	for _, r := range results {
		exp.Matched[r.Posting.ID] = keywords.Matching(r.Posting.Keywords, kws)
	}
	return exp, nil
}

// Insert indexes a new posting.
func (s *Service) Insert(ctx context.Context, data index.PostingData) (*index.Posting, error) {
	return s.index.Insert(ctx, data)
}

// Update replaces an existing posting.
func (s *Service) Update(ctx context.Context, data index.PostingData) (*index.Posting, error) {
	return s.index.Update(ctx, data)
}

// Remove deletes the posting with id.
func (s *Service) Remove(id string) error {
	return s.index.Remove(id)
}

// Get returns the posting with id or ErrNotFound.
func (s *Service) Get(id string) (*index.Posting, error) {
	p := s.index.Get(id)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrNotFound, id)
	}
	return p, nil
}

// Stats returns index statistics.
func (s *Service) Stats() index.Stats {
	return s.index.Stats()
}
