package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/textnorm"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/kafka"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalRequests     int64       `json:"total_requests"`
	EmptyResults      int64       `json:"empty_results"`
	Failures          int64       `json:"failures"`
	AvgLatencyMs      float64     `json:"avg_latency_ms"`
	P50LatencyMs      int64       `json:"p50_latency_ms"`
	P95LatencyMs      int64       `json:"p95_latency_ms"`
	P99LatencyMs      int64       `json:"p99_latency_ms"`
	AvgTopScore       float64     `json:"avg_top_score"`
	TopQueries        []TermCount `json:"top_queries"`
	EmptyQueries      []TermCount `json:"empty_result_queries"`
	TopLocations      []TermCount `json:"top_locations"`
	TopPostings       []TermCount `json:"top_postings"`
	RequestsPerMinute float64     `json:"requests_per_minute"`
}

// Truncate returns a copy of s with every ranking cut to at most n entries.
func (s AggregatedStats) Truncate(n int) AggregatedStats {
	cut := func(tc []TermCount) []TermCount {
		if len(tc) > n {
			return tc[:n]
		}
		return tc
	}
	s.TopQueries = cut(s.TopQueries)
	s.EmptyQueries = cut(s.EmptyQueries)
	s.TopLocations = cut(s.TopLocations)
	s.TopPostings = cut(s.TopPostings)
	return s
}

type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Aggregator keeps running statistics over RecommendEvents. Latency
// percentiles are computed over a ring of the most recent samples.
type Aggregator struct {
	totalRequests atomic.Int64
	emptyResults  atomic.Int64
	failures      atomic.Int64

	mu           sync.RWMutex
	latencies    []int64
	next         int
	scoreSum     float64
	scored       int64
	queryCounts  map[string]int64
	emptyQueries map[string]int64
	locations    map[string]int64
	postings     map[string]int64
	startTime    time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:    make([]int64, 0, 1024),
		queryCounts:  make(map[string]int64),
		emptyQueries: make(map[string]int64),
		locations:    make(map[string]int64),
		postings:     make(map[string]int64),
		startTime:    time.Now(),
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records event in memory.
func (a *Aggregator) Track(event RecommendEvent) {
	a.totalRequests.Add(1)
	switch event.Type {
	case EventEmptyResult:
		a.emptyResults.Add(1)
	case EventFailed:
		a.failures.Add(1)
	}
	query := textnorm.Normalize(event.Query)
	loc := textnorm.Normalize(event.Location)

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	if event.Type == EventFailed {
		return
	}
	a.queryCounts[query]++
	if loc != "" {
		a.locations[loc]++
	}
	if event.Type == EventEmptyResult {
		a.emptyQueries[query]++
		return
	}
	a.scoreSum += event.TopScore
	a.scored++
	for _, id := range event.PostingIDs {
		a.postings[id]++
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer reading the
// events a Collector publishes.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[RecommendEvent](value)
		if err != nil {
			// Malformed events would be redelivered forever; drop them.
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalRequests: a.totalRequests.Load(),
		EmptyResults:  a.emptyResults.Load(),
		Failures:      a.failures.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if a.scored > 0 {
		stats.AvgTopScore = a.scoreSum / float64(a.scored)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.EmptyQueries = topN(a.emptyQueries, 10)
	stats.TopLocations = topN(a.locations, 10)
	stats.TopPostings = topN(a.postings, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.RequestsPerMinute = float64(stats.TotalRequests) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []TermCount {
	result := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		result = append(result, TermCount{Term: term, Count: count})
	}
	slices.SortFunc(result, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
