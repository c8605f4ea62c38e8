// Package keywords extracts the phrases that best summarise a posting. It
// scores stop-word-free n-gram candidates by embedding similarity to the
// whole text and picks a diverse subset with Maximal Marginal Relevance.
package keywords

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/textnorm"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
)

const (
	defaultNgramMax      = 3
	defaultDiversity     = 0.5
	defaultMaxCandidates = 200
)

// Keyword is an extracted phrase and its relevance to the source text.
type Keyword struct {
	Phrase string  `json:"phrase"`
	Score  float64 `json:"score"`
}

// Extractor selects keywords using an embedding model. The zero values of
// the tuning fields select the defaults (3, 0.5, 200).
type Extractor struct {
	model         embedding.Model
	ngramMax      int
	diversity     float64
	maxCandidates int
}

// Option tunes an Extractor.
type Option func(*Extractor)

// WithNgramMax sets the longest candidate phrase, in words (1..3).
func WithNgramMax(n int) Option { return func(e *Extractor) { e.ngramMax = n } }

// WithDiversity sets the MMR relevance/diversity trade-off in [0, 1].
func WithDiversity(d float64) Option { return func(e *Extractor) { e.diversity = d } }

// WithMaxCandidates caps how many candidates are embedded per text.
func WithMaxCandidates(n int) Option { return func(e *Extractor) { e.maxCandidates = n } }

// New creates an Extractor backed by model.
func New(model embedding.Model, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		model:         model,
		ngramMax:      defaultNgramMax,
		diversity:     defaultDiversity,
		maxCandidates: defaultMaxCandidates,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.model == nil {
		return nil, apperrors.InvalidArgument("keyword extractor needs an embedding model")
	}
	if e.ngramMax < 1 || e.ngramMax > 3 {
		return nil, apperrors.InvalidArgument("ngram max must be between 1 and 3, got %d", e.ngramMax)
	}
	if e.diversity < 0 || e.diversity > 1 || math.IsNaN(e.diversity) {
		return nil, apperrors.InvalidArgument("diversity must be in [0, 1], got %v", e.diversity)
	}
	if e.maxCandidates < 1 {
		return nil, apperrors.InvalidArgument("max candidates must be positive, got %d", e.maxCandidates)
	}
	return e, nil
}

// Candidates returns the distinct candidate phrases of text in first
// occurrence order, capped at the extractor's candidate limit.
func (e *Extractor) Candidates(text string) []string {
	phrases := textnorm.Ngrams(text, e.ngramMax)
	if len(phrases) > e.maxCandidates {
		phrases = phrases[:e.maxCandidates]
	}
	return phrases
}

// Extract returns up to maxKeywords keywords ordered by descending score,
// ties by phrase. Blank text yields no keywords.
func (e *Extractor) Extract(ctx context.Context, text string, maxKeywords int) ([]Keyword, error) {
	if maxKeywords < 1 {
		return nil, apperrors.InvalidArgument("max keywords must be at least 1, got %d", maxKeywords)
	}
	if textnorm.IsBlank(text) {
		return []Keyword{}, nil
	}
	cands := e.Candidates(text)
	if len(cands) == 0 {
		return []Keyword{}, nil
	}

	inputs := make([]string, 0, len(cands)+1)
	inputs = append(inputs, text)
	inputs = append(inputs, cands...)
	vecs, err := e.model.EmbedMany(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embedding keyword candidates: %w", err)
	}
	if len(vecs) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", apperrors.ErrEmbedding, len(vecs), len(inputs))
	}
	doc, candVecs := vecs[0], vecs[1:]

	rel := make([]float64, len(cands))
	for i, v := range candVecs {
		rel[i] = vector.Cosine(v, doc)
	}

	picked := e.selectMMR(cands, candVecs, rel, min(maxKeywords, len(cands)))
	out := make([]Keyword, len(picked))
	for i, idx := range picked {
		out[i] = Keyword{Phrase: cands[idx], Score: rel[idx]}
	}
	slices.SortFunc(out, func(a, b Keyword) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Phrase, b.Phrase)
	})
	return out, nil
}

// selectMMR picks k candidate indices. The first is the most relevant; each
// following pick maximises (1-λ)·rel − λ·(max similarity to already picked).
func (e *Extractor) selectMMR(cands []string, vecs [][]float32, rel []float64, k int) []int {
	lambda := e.diversity
	chosen := make([]bool, len(cands))
	maxSim := make([]float64, len(cands))
	picked := make([]int, 0, k)

	for len(picked) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range cands {
			if chosen[i] {
				continue
			}
			score := rel[i]
			if len(picked) > 0 {
				score = (1-lambda)*rel[i] - lambda*maxSim[i]
			}
			if best < 0 || score > bestScore || (score == bestScore && cands[i] < cands[best]) {
				best, bestScore = i, score
			}
		}
		chosen[best] = true
		picked = append(picked, best)
		for i := range cands {
			if chosen[i] {
				continue
			}
			if s := vector.Cosine(vecs[i], vecs[best]); len(picked) == 1 || s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}
	return picked
}

// Matching returns the phrases of a that also occur in b, in a's order.
// Phrases match when equal or when one contains the other as whole words.
func Matching(a, b []Keyword) []string {
	out := make([]string, 0)
	for _, ka := range a {
		for _, kb := range b {
			if phraseOverlap(ka.Phrase, kb.Phrase) {
				out = append(out, ka.Phrase)
				break
			}
		}
	}
	return out
}

func phraseOverlap(a, b string) bool {
	if a == b {
		return true
	}
	wa, wb := textnorm.Words(a), textnorm.Words(b)
	if len(wa) > len(wb) {
		wa, wb = wb, wa
	}
	for i := 0; i+len(wa) <= len(wb); i++ {
		if slices.Equal(wa, wb[i:i+len(wa)]) {
			return true
		}
	}
	return false
}
