package recommend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveRecommend(outcome string, _ time.Duration, _, _ int) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.RecommendEvent
}

func (t *recordingTracker) Track(e analytics.RecommendEvent) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

// countingModel counts Embed calls on top of a hash model.
type countingModel struct {
	embedding.Model
	embeds atomic.Int64
}

func (m *countingModel) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embeds.Add(1)
	return m.Model.Embed(ctx, text)
}

type failingModel struct{ embedding.Model }

func (failingModel) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("upstream unavailable")
}

type slowModel struct{ embedding.Model }

func (slowModel) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestService(t *testing.T, opts ...Option) (*Service, *index.Index) {
	t.Helper()
	m, err := embedding.NewHashModel(128)
	require.NoError(t, err)
	ex, err := keywords.New(m)
	require.NoError(t, err)
	idx, err := index.New(m, ex, config.IndexConfig{})
	require.NoError(t, err)
	return New(idx, m, ex, opts...), idx
}

func seed(t *testing.T, s *Service, data ...index.PostingData) {
	t.Helper()
	for _, d := range data {
		_, err := s.Insert(context.Background(), d)
		require.NoError(t, err)
	}
}

var (
	postingA = index.PostingData{ID: "A", Title: "Python backend engineer", Location: "Remote"}
	postingB = index.PostingData{ID: "B", Title: "Java backend engineer", Location: "Onsite-NYC"}
)

func TestRecommendRemotePython(t *testing.T) {
	s, _ := newTestService(t)
	seed(t, s, postingA, postingB)

	results, err := s.Recommend(context.Background(), "backend developer skilled in Python", "Remote", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Posting.ID)
	assert.Equal(t, 1, results[0].Rank)
	assert.Greater(t, results[0].Score, -1.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestRecommendTopKLargerThanCorpus(t *testing.T) {
	s, _ := newTestService(t)
	seed(t, s, postingA)

	results, err := s.Recommend(context.Background(), "python", "", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRecommendOrdering(t *testing.T) {
	s, _ := newTestService(t)
	seed(t, s,
		postingA,
		postingB,
		index.PostingData{ID: "C", Title: "Python data engineer", Description: "Python pipelines", Location: "Remote"},
		index.PostingData{ID: "D", Title: "Pastry chef", Location: "Paris"},
	)

	results, err := s.Recommend(context.Background(), "python engineer", "", 4)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Posting.ID < cur.Posting.ID))
		assert.Equal(t, i+1, cur.Rank)
	}
}

func TestRecommendUnmatchedLocationIsEmpty(t *testing.T) {
	obs := &recordingObserver{}
	tr := &recordingTracker{}
	s, _ := newTestService(t, WithObserver(obs), WithTracker(tr))
	seed(t, s, postingA, postingB)

	results, err := s.Recommend(context.Background(), "python", "Berlin", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, []string{OutcomeEmpty}, obs.outcomes)
	require.Len(t, tr.events, 1)
	assert.Equal(t, analytics.EventEmptyResult, tr.events[0].Type)
	assert.Equal(t, "berlin", tr.events[0].Location)
}

func TestRecommendEmptyIndex(t *testing.T) {
	s, _ := newTestService(t)
	results, err := s.Recommend(context.Background(), "python", "", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecommendInvalidArguments(t *testing.T) {
	obs := &recordingObserver{}
	tr := &recordingTracker{}
	s, _ := newTestService(t, WithObserver(obs), WithTracker(tr))
	seed(t, s, postingA)

	_, err := s.Recommend(context.Background(), "   ", "", 5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = s.Recommend(context.Background(), "python", "", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	assert.Equal(t, []string{OutcomeInvalid, OutcomeInvalid}, obs.outcomes)
	assert.Empty(t, tr.events)
}

func TestRecommendTracksSuccess(t *testing.T) {
	tr := &recordingTracker{}
	s, _ := newTestService(t, WithTracker(tr))
	seed(t, s, postingA, postingB)

	results, err := s.Recommend(context.Background(), "python backend", "", 2)
	require.NoError(t, err)
	require.Len(t, tr.events, 1)
	e := tr.events[0]
	assert.Equal(t, analytics.EventRecommend, e.Type)
	assert.Equal(t, 2, e.Candidates)
	assert.Equal(t, 2, e.Returned)
	assert.Equal(t, results[0].Score, e.TopScore)
	assert.Equal(t, []string{results[0].Posting.ID, results[1].Posting.ID}, e.PostingIDs)
}

func TestRecommendEmbeddingFailure(t *testing.T) {
	s, idx := newTestService(t)
	seed(t, s, postingA)
	obs := &recordingObserver{}
	tr := &recordingTracker{}
	broken := New(idx, failingModel{s.model}, nil, WithObserver(obs), WithTracker(tr))

	_, err := broken.Recommend(context.Background(), "python", "", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.Equal(t, []string{OutcomeError}, obs.outcomes)
	require.Len(t, tr.events, 1)
	assert.Equal(t, analytics.EventFailed, tr.events[0].Type)
}

func TestRecommendEmbedTimeout(t *testing.T) {
	s, idx := newTestService(t)
	seed(t, s, postingA)
	slow := New(idx, slowModel{s.model}, nil, WithEmbedTimeout(10*time.Millisecond))

	_, err := slow.Recommend(context.Background(), "python", "", 5)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestQueryEmbedsOnce(t *testing.T) {
	base, err := embedding.NewHashModel(32)
	require.NoError(t, err)
	m := &countingModel{Model: base}
	q, err := NewQuery(m, "  go developer ", " Remote ")
	require.NoError(t, err)
	assert.Equal(t, "go developer", q.Text)
	assert.Equal(t, "remote", q.LocationFilter)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			v, err := q.Embedding(context.Background())
			assert.NoError(t, err)
			assert.Len(t, v, 32)
		})
	}
	wg.Wait()
	assert.Equal(t, int64(1), m.embeds.Load())
}

func TestExplain(t *testing.T) {
	s, _ := newTestService(t)
	seed(t, s,
		index.PostingData{ID: "A", Title: "Backend engineer", Description: "Python developer", Location: "Remote"},
		index.PostingData{ID: "B", Title: "Chef", Description: "Bake bread and pastries", Location: "Paris"},
	)
	results, err := s.Recommend(context.Background(), "python developer", "", 2)
	require.NoError(t, err)

	exp, err := s.Explain(context.Background(), "python developer", results)
	require.NoError(t, err)
	assert.NotEmpty(t, exp.QueryKeywords)
	assert.Contains(t, exp.Matched, "A")
	assert.Contains(t, exp.Matched, "B")
	assert.NotEmpty(t, exp.Matched["A"])
	assert.Empty(t, exp.Matched["B"])
}

func TestGetAndRemove(t *testing.T) {
	s, _ := newTestService(t)
	seed(t, s, postingA)

	p, err := s.Get("A")
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Location)

	require.NoError(t, s.Remove("A"))
	_, err = s.Get("A")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Remove("A"), apperrors.ErrNotFound)
}

func BenchmarkRecommend(b *testing.B) {
	m, err := embedding.NewHashModel(128)
	require.NoError(b, err)
	ex, err := keywords.New(m)
	require.NoError(b, err)
	idx, err := index.New(m, ex, config.IndexConfig{})
	require.NoError(b, err)
	titles := []string{"python", "java", "golang", "rust", "react", "devops", "sre", "data"}
	for i := range 2000 {
		_, err := idx.Insert(context.Background(), index.PostingData{
			Title:    titles[i%len(titles)] + " engineer",
			Location: []string{"Remote", "Berlin", "NYC"}[i%3],
		})
		require.NoError(b, err)
	}
	s := New(idx, m, nil)
	for b.Loop() {
		if _, err := s.Recommend(context.Background(), "senior golang engineer", "remote", 10); err != nil {
			b.Fatal(err)
		}
	}
}
