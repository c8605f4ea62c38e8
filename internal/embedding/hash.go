package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/textnorm"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/vector"
)

const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.3
)

// HashModel is a local, dependency-free embedding model based on signed
// feature hashing of word unigrams, word bigrams and character trigrams.
// Texts sharing words or word stems land close together, which is enough
// for lexical-semantic matching without a network call.
type HashModel struct {
	dim int
}

// NewHashModel returns a HashModel producing dim-dimensional unit vectors.
func NewHashModel(dim int) (*HashModel, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hash model dimension must be positive, got %d", dim)
	}
	return &HashModel{dim: dim}, nil
}

func (m *HashModel) Name() string { return fmt.Sprintf("hash-v1-%d", m.dim) }

func (m *HashModel) Dimension() int { return m.dim }

func (m *HashModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	return m.embed(text), nil
}

func (m *HashModel) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.embed(t)
	}
	return out, nil
}

func (m *HashModel) embed(text string) []float32 {
	v := make([]float32, m.dim)
	words := make([]string, 0)
	for _, tok := range textnorm.Tokenize(text) {
		words = append(words, tok.Term)
	}
	if len(words) == 0 {
		words = textnorm.Words(text)
	}
	if len(words) == 0 {
		words = []string{textnorm.Normalize(text)}
	}
	for i, w := range words {
		m.add(v, "w:"+w, unigramWeight)
		if i > 0 {
			m.add(v, "b:"+words[i-1]+" "+w, bigramWeight)
		}
		padded := []rune("^" + w + "$")
		for j := 0; j+3 <= len(padded); j++ {
			m.add(v, "c:"+string(padded[j:j+3]), trigramWeight)
		}
	}
	if !vector.NormalizeInPlace(v) {
		m.add(v, "t:"+text, 1)
		vector.NormalizeInPlace(v)
	}
	return v
}

func (m *HashModel) add(v []float32, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(m.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += float32(weight)
}
