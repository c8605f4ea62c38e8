// Package ann implements inverted-file (IVF) partitioning for approximate
// nearest-neighbour candidate generation. Vectors are clustered with
// seeded spherical k-means; a query probes only its nprobe closest
// partitions and the caller exact-scores the members.
package ann

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/vector"
)

// Partitioner holds k unit-length centroids.
type Partitioner struct {
	dim       int
	centroids [][]float32
}

// Train clusters vectors into at most k partitions using Lloyd iterations on
// the unit sphere. The same inputs and seed always give the same centroids.
// When there are fewer vectors than k, every vector becomes a centroid.
func Train(ctx context.Context, vectors [][]float32, k, maxIter int, seed int64) (*Partitioner, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to train on")
	}
	if k < 1 {
		return nil, fmt.Errorf("partition count must be positive, got %d", k)
	}
	if maxIter < 1 {
		maxIter = 1
	}
	dim := len(vectors[0])
	points := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		points[i] = vector.Clone(v)
		vector.NormalizeInPlace(points[i])
	}
	n := len(points)
	k = min(k, n)

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	centroids := make([][]float32, k)
	for j := range centroids {
		centroids[j] = vector.Clone(points[perm[j]])
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	sums := make([][]float64, k)
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for i, p := range points {
			best := nearest(p, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for j := range sums {
			clear(sums[j])
			counts[j] = 0
		}
		for i, p := range points {
			c := assignments[i]
			for d, x := range p {
				sums[c][d] += float64(x)
			}
			counts[c]++
		}
		for j := range centroids {
			if counts[j] == 0 {
				// Re-seed an empty partition from a random point.
				centroids[j] = vector.Clone(points[rng.Intn(n)])
				continue
			}
			for d := range centroids[j] {
				centroids[j][d] = float32(sums[j][d] / float64(counts[j]))
			}
			if !vector.NormalizeInPlace(centroids[j]) {
				centroids[j] = vector.Clone(points[rng.Intn(n)])
			}
		}
	}
	return &Partitioner{dim: dim, centroids: centroids}, nil
}

// K returns the number of partitions.
func (p *Partitioner) K() int { return len(p.centroids) }

// Dimension returns the vector dimension the partitioner was trained on.
func (p *Partitioner) Dimension() int { return p.dim }

// Assign returns the partition whose centroid is most similar to v.
func (p *Partitioner) Assign(v []float32) int {
	return nearest(v, p.centroids)
}

// Probe returns the nprobe partitions closest to q, most similar first.
// Equal similarities are ordered by partition number.
func (p *Partitioner) Probe(q []float32, nprobe int) []int {
	type scored struct {
		id  int
		sim float64
	}
	all := make([]scored, len(p.centroids))
	for j, c := range p.centroids {
		all[j] = scored{id: j, sim: vector.Dot(q, c)}
	}
	slices.SortFunc(all, func(a, b scored) int {
		if c := cmp.Compare(b.sim, a.sim); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	nprobe = max(1, min(nprobe, len(all)))
	out := make([]int, nprobe)
	for i := range out {
		out[i] = all[i].id
	}
	return out
}

// nearest ranks centroids by dot product; centroids are unit length so this
// orders them by cosine similarity for any query norm.
func nearest(v []float32, centroids [][]float32) int {
	best := 0
	bestSim := vector.Dot(v, centroids[0])
	for j := 1; j < len(centroids); j++ {
		if s := vector.Dot(v, centroids[j]); s > bestSim {
			best, bestSim = j, s
		}
	}
	return best
}
