// Package analytics records what job seekers ask for and what the engine
// returns. Events are aggregated in-process for the stats endpoint and,
// when Kafka is configured, published in batches for downstream consumers.
package analytics

import "time"

type EventType string

const (
	EventRecommend   EventType = "recommend"
	EventEmptyResult EventType = "empty_result"
	EventFailed      EventType = "recommend_failed"
)

// RecommendEvent describes one recommendation request.
type RecommendEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Location   string    `json:"location,omitempty"`
	Limit      int       `json:"limit"`
	Candidates int       `json:"candidates"`
	Returned   int       `json:"returned"`
	PostingIDs []string  `json:"posting_ids,omitempty"`
	TopScore   float64   `json:"top_score"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Tracker accepts events without blocking the caller.
type Tracker interface {
	Track(event RecommendEvent)
}

type multi []Tracker

func (m multi) Track(event RecommendEvent) {
	for _, t := range m {
		t.Track(event)
	}
}

// Multi fans events out to every non-nil tracker.
func Multi(trackers ...Tracker) Tracker {
	out := make(multi, 0, len(trackers))
	for _, t := range trackers {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
