// Package ranker scores candidate postings against a query embedding by
// cosine similarity and keeps the best top-K in a bounded min-heap.
package ranker

import (
	"container/heap"
	"fmt"
	"iter"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
)

// RankedResult is a read-only view of a scored posting. Rank is 1-based.
type RankedResult struct {
	Posting *index.Posting
	Score   float64
	Rank    int
}

// Rank returns the min(topK, |candidates|) postings most similar to query,
// ordered by descending score with ties broken by ascending posting id.
// Scores are raw cosine similarities in [-1, 1].
func Rank(query []float32, candidates iter.Seq[*index.Posting], topK int) ([]RankedResult, error) {
	if topK <= 0 {
		return nil, apperrors.InvalidArgument("top_k must be positive, got %d", topK)
	}
	h := make(resultHeap, 0, min(topK, 64)+1)
	for p := range candidates {
		if p == nil {
			continue
		}
		if len(p.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: query has %d components, posting %s has %d",
				apperrors.ErrDimensionMismatch, len(query), p.ID, len(p.Embedding))
		}
		r := RankedResult{Posting: p, Score: vector.Cosine(query, p.Embedding)}
		if h.Len() < topK {
			heap.Push(&h, r)
			continue
		}
		if worse(h[0], r) {
			h[0] = r
			heap.Fix(&h, 0)
		}
	}

	out := make([]RankedResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(RankedResult)
		out[i].Rank = i + 1
	}
	return out, nil
}

// worse reports whether a ranks below b.
func worse(a, b RankedResult) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Posting.ID > b.Posting.ID
}

// resultHeap keeps the worst retained result at the root.
type resultHeap []RankedResult

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(RankedResult))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
