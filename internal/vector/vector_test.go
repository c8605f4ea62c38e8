package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 5}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4}
	assert.True(t, NormalizeInPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)

	zero := []float32{0, 0}
	assert.False(t, NormalizeInPlace(zero))
}

func TestCloneIsIndependent(t *testing.T) {
	v := []float32{1, 2}
	c := Clone(v)
	c[0] = 9
	assert.Equal(t, float32(1), v[0])
}
