// Package embedding maps text to fixed-dimension dense vectors. Models are
// explicitly constructed and injected into the index and the recommendation
// service; decorators add batching, rate limiting, caching and metrics
// around any Model.
package embedding

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/textnorm"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
)

// PlaceholderToken stands in for text that is empty after normalisation.
const PlaceholderToken = "[empty]"

// Model embeds text into vectors of a constant Dimension. Embed must be a
// pure function of its input for a given model version. EmbedMany returns one
// vector per input, in input order.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// Prepare substitutes PlaceholderToken for blank text so that callers never
// hand a model input it must reject.
func Prepare(text string) string {
	if textnorm.IsBlank(text) {
		return PlaceholderToken
	}
	return text
}

// PrepareAll applies Prepare to every element, returning a new slice.
func PrepareAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Prepare(t)
	}
	return out
}

// checkText returns an ErrEmbedding-wrapped error for input no model accepts.
func checkText(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: input is not valid UTF-8 text", apperrors.ErrEmbedding)
	}
	if textnorm.IsBlank(text) {
		return fmt.Errorf("%w: input is empty after normalization", apperrors.ErrEmbedding)
	}
	return nil
}

func checkTexts(texts []string) error {
	for i, t := range texts {
		if err := checkText(t); err != nil {
			return fmt.Errorf("text %d: %w", i, err)
		}
	}
	return nil
}

// providerError wraps a provider failure as ErrEmbedding.
func providerError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrEmbedding, provider, err)
}
