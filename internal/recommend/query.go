package recommend

import (
	"context"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
)

// Query is one job-seeker request. Its embedding is computed on first use
// and reused for the rest of the request.
type Query struct {
	Text           string
	LocationFilter string

	model embedding.Model
	once  sync.Once
	vec   []float32
	err   error
}

// NewQuery trims text and normalizes the location filter. Blank text is an
// invalid argument.
func NewQuery(model embedding.Model, text, locationFilter string) (*Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.InvalidArgument("query text is required")
	}
	return &Query{
		Text:           text,
		LocationFilter: index.NormalizeLocation(locationFilter),
		model:          model,
	}, nil
}

// Embedding returns the query vector. The model is called at most once per
// Query; a failure is remembered and returned to later callers as well.
func (q *Query) Embedding(ctx context.Context) ([]float32, error) {
	q.once.Do(func() {
		q.vec, q.err = q.model.Embed(ctx, q.Text)
	})
	return q.vec, q.err
}
