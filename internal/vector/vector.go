// Package vector holds the dense-vector arithmetic shared by the embedding
// models, the keyword extractor, the ANN partitioner and the ranker.
package vector

import "math"

// Dot returns the dot product of a and b. Vectors must have equal length.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Cosine returns the cosine similarity of a and b clamped to [-1, 1].
// A zero vector has similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := Dot(a, b) / (na * nb)
	switch {
	case c > 1:
		return 1
	case c < -1:
		return -1
	}
	return c
}

// NormalizeInPlace scales v to unit length. It returns false when v is the
// zero vector, which is left untouched.
func NormalizeInPlace(v []float32) bool {
	n := Norm(v)
	if n == 0 {
		return false
	}
	inv := 1 / n
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}

// Clone returns a copy of v.
func Clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
