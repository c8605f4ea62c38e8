package index

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t testing.TB, cfg config.IndexConfig, opts ...Option) *Index {
	t.Helper()
	m, err := embedding.NewHashModel(64)
	require.NoError(t, err)
	ex, err := keywords.New(m)
	require.NoError(t, err)
	idx, err := New(m, ex, cfg, opts...)
	require.NoError(t, err)
	return idx
}

func ids(seq func(func(*Posting) bool)) []string {
	var out []string
	for p := range seq {
		out = append(out, p.ID)
	}
	return out
}

var samples = []PostingData{
	{ID: "a", Title: "Python backend engineer", Description: "Build Python APIs with Django", Location: "Remote"},
	{ID: "b", Title: "Java backend engineer", Description: "Spring Boot microservices", Location: "Onsite-NYC"},
	{ID: "c", Title: "Frontend developer", Description: "React and TypeScript", Location: "Remote (EU)"},
}

func TestInsertAndIterate(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	for _, d := range samples {
		p, err := idx.Insert(ctx, d)
		require.NoError(t, err)
		assert.Len(t, p.Embedding, 64)
		assert.NotEmpty(t, p.Keywords)
		assert.False(t, p.IndexedAt.IsZero())
	}
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"a", "b", "c"}, ids(idx.AllMatching("")))
	assert.Equal(t, uint64(3), idx.Version())
}

func TestInsertNormalizesLocation(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	p, err := idx.Insert(context.Background(), PostingData{ID: "x", Title: "SRE", Location: "  San   Francisco, CA "})
	require.NoError(t, err)
	assert.Equal(t, "san francisco, ca", p.Location)
	assert.Empty(t, p.Keywords)
}

func TestInsertBoilerplateDescriptionFallsBackToTitle(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	p, err := idx.Insert(context.Background(), PostingData{
		ID:          "x",
		Title:       "Go developer",
		Description: "We are a passionate, driven team.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.Keywords)
	var phrases []string
	for _, k := range p.Keywords {
		phrases = append(phrases, k.Phrase)
	}
	assert.Contains(t, strings.Join(phrases, " "), "developer")
}

func TestInsertGeneratesID(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	p, err := idx.Insert(context.Background(), PostingData{Title: "Data engineer"})
	require.NoError(t, err)
	assert.Len(t, p.ID, 36)
	assert.Same(t, p, idx.Get(p.ID))
}

func TestInsertValidation(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	_, err := idx.Insert(context.Background(), PostingData{ID: "x", Title: "   "})
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
	assert.Equal(t, 0, idx.Len())
}

func TestInsertDuplicate(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	_, err := idx.Insert(ctx, samples[0])
	require.NoError(t, err)
	_, err = idx.Insert(ctx, samples[0])
	assert.ErrorIs(t, err, apperrors.ErrDuplicateID)
	assert.Equal(t, 1, idx.Len())
}

func TestRemove(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	_, err := idx.BulkInsert(ctx, samples)
	require.NoError(t, err)

	require.NoError(t, idx.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, ids(idx.AllMatching("")))
	assert.Empty(t, ids(idx.AllMatching("nyc")))
	assert.Nil(t, idx.Get("b"))
	assert.ErrorIs(t, idx.Remove("b"), apperrors.ErrNotFound)
}

func TestInsertRemoveReinsertIsIdempotent(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	first, err := idx.Insert(ctx, samples[0])
	require.NoError(t, err)
	require.NoError(t, idx.Remove(samples[0].ID))
	second, err := idx.Insert(ctx, samples[0])
	require.NoError(t, err)

	assert.Equal(t, first.Keywords, second.Keywords)
	assert.Equal(t, first.Embedding, second.Embedding)
	assert.Equal(t, []string{"a"}, ids(idx.AllMatching("")))
}

func TestUpdate(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	_, err := idx.BulkInsert(ctx, samples)
	require.NoError(t, err)

	moved := samples[0]
	moved.Location = "Berlin"
	p, err := idx.Update(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, "berlin", p.Location)
	assert.Equal(t, []string{"a", "b", "c"}, ids(idx.AllMatching("")))
	assert.Equal(t, []string{"c"}, ids(idx.AllMatching("remote")))
	assert.Equal(t, []string{"a"}, ids(idx.AllMatching("BERLIN")))

	_, err = idx.Update(ctx, PostingData{ID: "zzz", Title: "ghost"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = idx.Update(ctx, PostingData{Title: "no id"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestAllMatchingLocationSubstring(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	_, err := idx.BulkInsert(context.Background(), samples)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, ids(idx.AllMatching("remote")))
	assert.Equal(t, []string{"a", "c"}, ids(idx.AllMatching("  REMOTE ")))
	assert.Equal(t, []string{"b"}, ids(idx.AllMatching("nyc")))
	assert.Empty(t, ids(idx.AllMatching("Tokyo")))
}

func TestAllMatchingStopsEarly(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	_, err := idx.BulkInsert(context.Background(), samples)
	require.NoError(t, err)
	var seen []string
	for p := range idx.AllMatching("") {
		seen = append(seen, p.ID)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestAllMatchingYieldsEachPostingOnce(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	for i := range 50 {
		_, err := idx.Insert(ctx, PostingData{ID: fmt.Sprintf("p%02d", i), Title: "Go engineer", Location: "Remote"})
		require.NoError(t, err)
	}
	got := ids(idx.AllMatching(""))
	assert.Len(t, got, 50)
	assert.Len(t, slices.Compact(slices.Sorted(slices.Values(got))), 50)
}

func TestBulkInsertAllOrNothing(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	_, err := idx.Insert(ctx, samples[1])
	require.NoError(t, err)

	_, err = idx.BulkInsert(ctx, samples)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateID)
	assert.Equal(t, 1, idx.Len())

	_, err = idx.BulkInsert(ctx, []PostingData{samples[0], samples[0]})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateID)

	_, err = idx.BulkInsert(ctx, []PostingData{samples[0], {ID: "bad"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Equal(t, 1, idx.Len())

	out, err := idx.BulkInsert(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBulkInsertMatchesInsert(t *testing.T) {
	bulk := newTestIndex(t, config.IndexConfig{})
	single := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	bs, err := bulk.BulkInsert(ctx, samples)
	require.NoError(t, err)
	for i, d := range samples {
		p, err := single.Insert(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, p.Embedding, bs[i].Embedding)
		assert.Equal(t, p.Keywords, bs[i].Keywords)
	}
}

type wrongDimModel struct{ *embedding.HashModel }

func (wrongDimModel) Dimension() int { return 8 }

func TestDimensionMismatch(t *testing.T) {
	hm, err := embedding.NewHashModel(16)
	require.NoError(t, err)
	m := wrongDimModel{hm}
	ex, err := keywords.New(hm)
	require.NoError(t, err)
	idx, err := New(m, ex, config.IndexConfig{})
	require.NoError(t, err)
	_, err = idx.Insert(context.Background(), samples[0])
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.NotErrorIs(t, err, apperrors.ErrDimensionMismatch)
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatusCode(err))
	assert.Equal(t, 0, idx.Len())

	_, err = idx.BulkInsert(context.Background(), samples)
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.Equal(t, 0, idx.Len())
}

type recordingObserver struct {
	mu        sync.Mutex
	mutations []string
	trained   int
	size      int
}

func (r *recordingObserver) ObserveIndexMutation(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.mutations = append(r.mutations, op+":"+status)
}

func (r *recordingObserver) ObserveIndexTraining(k int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.trained = k
	}
}

func (r *recordingObserver) SetIndexedPostings(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = n
}

func TestANNPartitioning(t *testing.T) {
	obs := &recordingObserver{}
	idx := newTestIndex(t, config.IndexConfig{
		ANNThreshold:     20,
		Partitions:       4,
		NProbe:           4,
		KMeansIterations: 10,
		Seed:             1,
	}, WithObserver(obs))
	ctx := context.Background()

	var batch []PostingData
	for i := range 20 {
		loc := "Remote"
		if i%2 == 1 {
			loc = "Berlin"
		}
		batch = append(batch, PostingData{
			ID:       fmt.Sprintf("p%02d", i),
			Title:    fmt.Sprintf("Engineer %d", i),
			Location: loc,
		})
	}
	_, err := idx.BulkInsert(ctx, batch)
	require.NoError(t, err)

	stats := idx.Stats()
	assert.True(t, stats.ANNActive)
	assert.Equal(t, 4, stats.Partitions)
	assert.Equal(t, 20, stats.TrainedAt)
	assert.Equal(t, 4, obs.trained)
	assert.Equal(t, 20, obs.size)

	// Probing every partition is equivalent to a full scan.
	q, err := idx.model.Embed(ctx, "engineer")
	require.NoError(t, err)
	assert.Equal(t, ids(idx.AllMatching("berlin")), ids(idx.Candidates(q, "berlin")))

	// New postings are assigned to a partition on arrival.
	_, err = idx.Insert(ctx, PostingData{ID: "late", Title: "Engineer late", Location: "Berlin"})
	require.NoError(t, err)
	assert.Contains(t, ids(idx.Candidates(q, "berlin")), "late")

	// A mismatched query dimension falls back to the full candidate set.
	assert.Len(t, ids(idx.Candidates([]float32{1}, "")), 21)
}

func TestANNProbeSubset(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{
		ANNThreshold:     10,
		Partitions:       5,
		NProbe:           1,
		KMeansIterations: 10,
		Seed:             3,
	})
	ctx := context.Background()
	topics := []string{"python django", "java spring", "react typescript", "nurse hospital", "truck driver"}
	var batch []PostingData
	for i := range 30 {
		batch = append(batch, PostingData{
			ID:    fmt.Sprintf("p%02d", i),
			Title: fmt.Sprintf("%s level%d", topics[i%len(topics)], i),
		})
	}
	_, err := idx.BulkInsert(ctx, batch)
	require.NoError(t, err)

	q, err := idx.model.Embed(ctx, "python django")
	require.NoError(t, err)
	got := ids(idx.Candidates(q, ""))
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 30)
	all := ids(idx.AllMatching(""))
	for _, id := range got {
		assert.Contains(t, all, id)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{})
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				_, err := idx.Insert(ctx, PostingData{ID: fmt.Sprintf("w%d-%d", w, i), Title: "Go engineer", Description: "Kubernetes", Location: "Remote"})
				assert.NoError(t, err)
			}
		}()
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				for p := range idx.AllMatching("remote") {
					// Entries are fully built before they become visible.
					assert.Len(t, p.Embedding, 64)
					assert.NotEmpty(t, p.Keywords)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, idx.Len())
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "title is required", "id": "too long"}}
	assert.Equal(t, "invalid posting: id: too long; title: title is required", err.Error())
}

func TestRetrainBelowThreshold(t *testing.T) {
	idx := newTestIndex(t, config.IndexConfig{ANNThreshold: 100, Partitions: 2, NProbe: 1, KMeansIterations: 5})
	ctx := context.Background()
	_, err := idx.BulkInsert(ctx, samples)
	require.NoError(t, err)
	assert.Zero(t, idx.Stats().Partitions)

	require.NoError(t, idx.Retrain(ctx))
	stats := idx.Stats()
	assert.Equal(t, 2, stats.Partitions)
	assert.Equal(t, 3, stats.TrainedAt)
	// Partitions are only consulted at or above the threshold.
	assert.False(t, stats.ANNActive)
	q, err := idx.model.Embed(ctx, "backend")
	require.NoError(t, err)
	assert.Equal(t, ids(idx.AllMatching("")), ids(idx.Candidates(q, "")))
}

func BenchmarkBulkInsert(b *testing.B) {
	batch := make([]PostingData, 500)
	for i := range batch {
		batch[i] = PostingData{
			ID:          fmt.Sprintf("p%04d", i),
			Title:       fmt.Sprintf("Backend engineer %d", i),
			Description: "Build distributed services in Go and Python with Kafka and PostgreSQL",
			Location:    []string{"Remote", "Berlin", "NYC"}[i%3],
		}
	}
	ctx := context.Background()
	for b.Loop() {
		idx := newTestIndex(b, config.IndexConfig{})
		if _, err := idx.BulkInsert(ctx, batch); err != nil {
			b.Fatal(err)
		}
	}
}
