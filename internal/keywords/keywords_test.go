package keywords

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const posting = "We are looking for a passionate Senior Go Engineer with strong Kubernetes " +
	"experience. You will build distributed systems in Go, operate Kubernetes clusters " +
	"and design gRPC APIs. Knowledge of PostgreSQL is a plus."

func newExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	m, err := embedding.NewHashModel(256)
	require.NoError(t, err)
	e, err := New(m, opts...)
	require.NoError(t, err)
	return e
}

func TestExtractOrderedAndBounded(t *testing.T) {
	e := newExtractor(t)
	kws, err := e.Extract(context.Background(), posting, 5)
	require.NoError(t, err)
	require.Len(t, kws, 5)
	for i := 1; i < len(kws); i++ {
		prev, cur := kws[i-1], kws[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Phrase < cur.Phrase),
			"keywords out of order at %d: %v then %v", i, prev, cur)
	}
	for _, k := range kws {
		assert.NotContains(t, []string{"passionate", "experience", "strong", "looking"}, k.Phrase)
		assert.Equal(t, strings.ToLower(k.Phrase), k.Phrase)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := newExtractor(t)
	a, err := e.Extract(context.Background(), posting, 4)
	require.NoError(t, err)
	b, err := e.Extract(context.Background(), posting, 4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExtractBlankText(t *testing.T) {
	e := newExtractor(t)
	kws, err := e.Extract(context.Background(), "  \n ", 5)
	require.NoError(t, err)
	assert.Empty(t, kws)

	kws, err = e.Extract(context.Background(), "the and of a", 5)
	require.NoError(t, err)
	assert.Empty(t, kws)
}

func TestExtractRejectsNonPositiveMax(t *testing.T) {
	e := newExtractor(t)
	_, err := e.Extract(context.Background(), posting, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestExtractFewerCandidatesThanRequested(t *testing.T) {
	e := newExtractor(t, WithNgramMax(1))
	kws, err := e.Extract(context.Background(), "Python Django", 10)
	require.NoError(t, err)
	phrases := make([]string, len(kws))
	for i, k := range kws {
		phrases[i] = k.Phrase
	}
	assert.ElementsMatch(t, []string{"python", "django"}, phrases)
}

func TestCandidatesRespectBoundaries(t *testing.T) {
	e := newExtractor(t, WithMaxCandidates(50))
	cands := e.Candidates("Go developer and Rust. Kubernetes admin")
	assert.Contains(t, cands, "go developer")
	assert.NotContains(t, cands, "developer rust")
	assert.NotContains(t, cands, "rust kubernetes")

	capped := newExtractor(t, WithMaxCandidates(2)).Candidates(posting)
	assert.Len(t, capped, 2)
}

func TestDiversityChangesSelection(t *testing.T) {
	relevant := newExtractor(t, WithDiversity(0))
	diverse := newExtractor(t, WithDiversity(1))
	a, err := relevant.Extract(context.Background(), posting, 3)
	require.NoError(t, err)
	b, err := diverse.Extract(context.Background(), posting, 3)
	require.NoError(t, err)
	// Both start from the single most relevant phrase.
	assert.Equal(t, a[0], topOf(t, relevant))
	assert.Contains(t, b, topOf(t, relevant))
}

func topOf(t *testing.T, e *Extractor) Keyword {
	t.Helper()
	kws, err := e.Extract(context.Background(), posting, 1)
	require.NoError(t, err)
	require.Len(t, kws, 1)
	return kws[0]
}

func TestNewValidatesOptions(t *testing.T) {
	m, _ := embedding.NewHashModel(8)
	_, err := New(m, WithNgramMax(4))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = New(m, WithDiversity(1.5))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = New(nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

type failingModel struct{ embedding.Model }

func (failingModel) EmbedMany(context.Context, []string) ([][]float32, error) {
	return nil, errors.Join(apperrors.ErrEmbedding, errors.New("quota exceeded"))
}

func TestExtractSurfacesEmbeddingError(t *testing.T) {
	m, _ := embedding.NewHashModel(8)
	e, err := New(failingModel{m})
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), posting, 3)
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
}

func TestMatching(t *testing.T) {
	query := []Keyword{{Phrase: "go"}, {Phrase: "kubernetes operator"}, {Phrase: "java"}}
	doc := []Keyword{{Phrase: "senior go engineer"}, {Phrase: "kubernetes"}}
	assert.Equal(t, []string{"go", "kubernetes operator"}, Matching(query, doc))
	assert.Empty(t, Matching([]Keyword{{Phrase: "golang"}}, doc))
}
