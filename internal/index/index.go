// Package index holds the in-memory posting index: every posting's
// keywords, embedding and metadata, a Roaring bitmap per distinct location
// for filtering, and optional IVF partitions for approximate candidate
// generation on large corpora.
package index

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/ann"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
)

// Observer receives index events, typically to export them as metrics.
type Observer interface {
	ObserveIndexMutation(op string, err error)
	ObserveIndexTraining(partitions int, took time.Duration, err error)
	SetIndexedPostings(n int)
}

type noopObserver struct{}

func (noopObserver) ObserveIndexMutation(string, error)             {}
func (noopObserver) ObserveIndexTraining(int, time.Duration, error) {}
func (noopObserver) SetIndexedPostings(int)                         {}

// Option configures an Index.
type Option func(*Index)

// WithObserver reports mutations and ANN training to o.
func WithObserver(o Observer) Option { return func(idx *Index) { idx.observer = o } }

// WithMaxKeywords sets how many keywords are kept per posting (default 5).
func WithMaxKeywords(n int) Option { return func(idx *Index) { idx.maxKeywords = n } }

// Index owns the id to Posting mapping. Keywords and embeddings are computed
// before the write lock is taken, so writers hold it only to publish a fully
// built entry and readers never see a partial one.
type Index struct {
	model       embedding.Model
	extractor   *keywords.Extractor
	cfg         config.IndexConfig
	maxKeywords int
	dim         int
	observer    Observer
	logger      *slog.Logger

	mu         sync.RWMutex
	slots      []*Posting
	byID       map[string]uint32
	byLocation map[string]*roaring.Bitmap
	live       *roaring.Bitmap
	ivf        *ann.IVF
	trainedAt  int
	version    uint64

	training atomic.Bool
}

// New creates an empty Index. model and extractor are required; the
// extractor is expected to share model.
func New(model embedding.Model, extractor *keywords.Extractor, cfg config.IndexConfig, opts ...Option) (*Index, error) {
	if model == nil || extractor == nil {
		return nil, fmt.Errorf("index requires an embedding model and a keyword extractor")
	}
	if model.Dimension() <= 0 {
		return nil, fmt.Errorf("embedding model %s reports dimension %d", model.Name(), model.Dimension())
	}
	idx := &Index{
		model:       model,
		extractor:   extractor,
		cfg:         cfg,
		maxKeywords: 5,
		dim:         model.Dimension(),
		observer:    noopObserver{},
		logger:      slog.Default().With("component", "index"),
		byID:        make(map[string]uint32),
		byLocation:  make(map[string]*roaring.Bitmap),
		live:        roaring.New(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.maxKeywords < 1 {
		return nil, fmt.Errorf("max keywords must be positive, got %d", idx.maxKeywords)
	}
	return idx, nil
}

// Insert builds and stores a new posting. It fails with ErrDuplicateID when
// the id is already present.
func (idx *Index) Insert(ctx context.Context, data PostingData) (*Posting, error) {
	p, err := idx.insert(ctx, data)
	idx.observer.ObserveIndexMutation("insert", err)
	if err != nil {
		return nil, err
	}
	idx.maybeTrain(ctx)
	return p, nil
}

func (idx *Index) insert(ctx context.Context, data PostingData) (*Posting, error) {
	d, err := data.Normalize()
	if err != nil {
		return nil, err
	}
	if idx.Get(d.ID) != nil {
		return nil, duplicate(d.ID)
	}
	p, err := idx.build(ctx, d)
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.byID[d.ID]; ok {
		return nil, duplicate(d.ID)
	}
	if err := idx.storeLocked(p); err != nil {
		return nil, err
	}
	idx.version++
	idx.observer.SetIndexedPostings(len(idx.byID))
	idx.logger.Debug("posting indexed", "posting_id", p.ID, "keywords", len(p.Keywords), "location", p.Location)
	return p, nil
}

// Update rebuilds an existing posting and swaps it in place, keeping its
// position in iteration order. It fails with ErrNotFound when absent.
func (idx *Index) Update(ctx context.Context, data PostingData) (*Posting, error) {
	p, err := idx.update(ctx, data)
	idx.observer.ObserveIndexMutation("update", err)
	return p, err
}

func (idx *Index) update(ctx context.Context, data PostingData) (*Posting, error) {
	if strings.TrimSpace(data.ID) == "" {
		return nil, apperrors.InvalidArgument("update requires a posting id")
	}
	d, err := data.Normalize()
	if err != nil {
		return nil, err
	}
	if idx.Get(d.ID) == nil {
		return nil, notFound(d.ID)
	}
	p, err := idx.build(ctx, d)
	if err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	slot, ok := idx.byID[d.ID]
	if !ok {
		return nil, notFound(d.ID)
	}
	old := idx.slots[slot]
	idx.unlinkLocation(old.Location, slot)
	idx.slots[slot] = p
	idx.linkLocation(p.Location, slot)
	if idx.ivf != nil {
		idx.ivf.Add(slot, p.Embedding)
	}
	idx.version++
	idx.logger.Debug("posting updated", "posting_id", p.ID)
	return p, nil
}

// Remove deletes the posting with id. It fails with ErrNotFound when absent.
func (idx *Index) Remove(id string) error {
	err := idx.remove(id)
	idx.observer.ObserveIndexMutation("remove", err)
	return err
}

func (idx *Index) remove(id string) error {
	id = strings.TrimSpace(id)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	slot, ok := idx.byID[id]
	if !ok {
		return notFound(id)
	}
	p := idx.slots[slot]
	idx.slots[slot] = nil
	delete(idx.byID, id)
	idx.live.Remove(slot)
	idx.unlinkLocation(p.Location, slot)
	if idx.ivf != nil {
		idx.ivf.Remove(slot)
	}
	idx.version++
	idx.observer.SetIndexedPostings(len(idx.byID))
	idx.logger.Debug("posting removed", "posting_id", id)
	return nil
}

// BulkInsert indexes many postings with one batched embedding call and
// parallel keyword extraction. Ids are checked up front; on any failure no
// posting of the batch becomes visible.
func (idx *Index) BulkInsert(ctx context.Context, data []PostingData) ([]*Posting, error) {
	ps, err := idx.bulkInsert(ctx, data)
	idx.observer.ObserveIndexMutation("bulk_insert", err)
	if err != nil {
		return nil, err
	}
	idx.maybeTrain(ctx)
	return ps, nil
}

func (idx *Index) bulkInsert(ctx context.Context, data []PostingData) ([]*Posting, error) {
	if len(data) == 0 {
		return []*Posting{}, nil
	}
	start := time.Now()
	clean := make([]PostingData, len(data))
	seen := make(map[string]int, len(data))
	for i, raw := range data {
		d, err := raw.Normalize()
		if err != nil {
			return nil, fmt.Errorf("posting %d: %w", i, err)
		}
		if j, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("postings %d and %d: %w", j, i, duplicate(d.ID))
		}
		seen[d.ID] = i
		clean[i] = d
	}
	if err := idx.checkAbsent(clean); err != nil {
		return nil, err
	}

	texts := make([]string, len(clean))
	for i, d := range clean {
		texts[i] = embedding.Prepare(d.Text())
	}
	vecs, err := idx.model.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d postings: %w", len(texts), err)
	}
	if len(vecs) != len(clean) {
		return nil, fmt.Errorf("%w: got %d vectors for %d postings", apperrors.ErrEmbedding, len(vecs), len(clean))
	}

	built := make([]*Posting, len(clean))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range clean {
		g.Go(func() error {
			p, err := idx.assemble(gctx, clean[i], vecs[i])
			if err != nil {
				return fmt.Errorf("posting %s: %w", clean[i].ID, err)
			}
			built[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, p := range built {
		if _, ok := idx.byID[p.ID]; ok {
			return nil, duplicate(p.ID)
		}
	}
	if uint64(len(idx.slots))+uint64(len(built)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: index slot space exhausted", apperrors.ErrInternal)
	}
	for _, p := range built {
		if err := idx.storeLocked(p); err != nil {
			return nil, err
		}
	}
	idx.version++
	idx.observer.SetIndexedPostings(len(idx.byID))
	idx.logger.Info("bulk insert complete", "postings", len(built), "total", len(idx.byID), "duration", time.Since(start))
	return built, nil
}

func (idx *Index) checkAbsent(ds []PostingData) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, d := range ds {
		if _, ok := idx.byID[d.ID]; ok {
			return duplicate(d.ID)
		}
	}
	return nil
}

// build computes the embedding and keywords of a single posting.
func (idx *Index) build(ctx context.Context, d PostingData) (*Posting, error) {
	vec, err := idx.model.Embed(ctx, embedding.Prepare(d.Text()))
	if err != nil {
		return nil, fmt.Errorf("embedding posting %s: %w", d.ID, err)
	}
	return idx.assemble(ctx, d, vec)
}

func (idx *Index) assemble(ctx context.Context, d PostingData, vec []float32) (*Posting, error) {
	// The vector comes from the model, so a wrong length is an upstream
	// fault rather than a bad request.
	if len(vec) != idx.dim {
		return nil, fmt.Errorf("%w: model returned %d components for posting %s, index expects %d",
			apperrors.ErrEmbedding, len(vec), d.ID, idx.dim)
	}
	kws := []keywords.Keyword{}
	if d.Description != "" {
		var err error
		kws, err = idx.extractor.Extract(ctx, d.Description, idx.maxKeywords)
		if err != nil {
			return nil, fmt.Errorf("extracting keywords: %w", err)
		}
		// A description made only of boilerplate yields nothing; the
		// title still carries the role.
		if len(kws) == 0 {
			kws, err = idx.extractor.Extract(ctx, d.Text(), idx.maxKeywords)
			if err != nil {
				return nil, fmt.Errorf("extracting keywords: %w", err)
			}
		}
	}
	return &Posting{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		Company:     d.Company,
		URL:         d.URL,
		PostedAt:    d.PostedAt,
		Keywords:    kws,
		Embedding:   vec,
		IndexedAt:   time.Now().UTC(),
	}, nil
}

func (idx *Index) storeLocked(p *Posting) error {
	if uint64(len(idx.slots)) >= math.MaxUint32 {
		return fmt.Errorf("%w: index slot space exhausted", apperrors.ErrInternal)
	}
	slot := uint32(len(idx.slots))
	idx.slots = append(idx.slots, p)
	idx.byID[p.ID] = slot
	idx.live.Add(slot)
	idx.linkLocation(p.Location, slot)
	if idx.ivf != nil {
		idx.ivf.Add(slot, p.Embedding)
	}
	return nil
}

func (idx *Index) linkLocation(loc string, slot uint32) {
	bm, ok := idx.byLocation[loc]
	if !ok {
		bm = roaring.New()
		idx.byLocation[loc] = bm
	}
	bm.Add(slot)
}

func (idx *Index) unlinkLocation(loc string, slot uint32) {
	bm, ok := idx.byLocation[loc]
	if !ok {
		return
	}
	bm.Remove(slot)
	if bm.IsEmpty() {
		delete(idx.byLocation, loc)
	}
}

// locationSetLocked returns the slots whose location contains filter. An
// empty filter matches every live slot. The result is owned by the caller.
func (idx *Index) locationSetLocked(filter string) *roaring.Bitmap {
	filter = NormalizeLocation(filter)
	if filter == "" {
		return idx.live.Clone()
	}
	var matched []*roaring.Bitmap
	for loc, bm := range idx.byLocation {
		if strings.Contains(loc, filter) {
			matched = append(matched, bm)
		}
	}
	if len(matched) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(matched...)
}

func (idx *Index) collectLocked(set *roaring.Bitmap) []*Posting {
	out := make([]*Posting, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		if p := idx.slots[it.Next()]; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// AllMatching yields every posting whose normalized location contains the
// normalized filter, in insertion order. An empty filter yields all
// postings. Each iteration works on a snapshot taken when it starts, so
// concurrent writers neither block nor disturb it.
func (idx *Index) AllMatching(locationFilter string) iter.Seq[*Posting] {
	return func(yield func(*Posting) bool) {
		idx.mu.RLock()
		snapshot := idx.collectLocked(idx.locationSetLocked(locationFilter))
		idx.mu.RUnlock()
		for _, p := range snapshot {
			if !yield(p) {
				return
			}
		}
	}
}

// Candidates yields the postings worth scoring against query. Once the
// index is partitioned and holds at least the ANN threshold of postings,
// only the nprobe partitions closest to query are visited; otherwise it is
// equivalent to AllMatching.
func (idx *Index) Candidates(query []float32, locationFilter string) iter.Seq[*Posting] {
	return func(yield func(*Posting) bool) {
		idx.mu.RLock()
		set := idx.locationSetLocked(locationFilter)
		if idx.annActiveLocked() && len(query) == idx.dim {
			set.And(idx.ivf.Probe(query, idx.cfg.NProbe))
		}
		snapshot := idx.collectLocked(set)
		idx.mu.RUnlock()
		for _, p := range snapshot {
			if !yield(p) {
				return
			}
		}
	}
}

func (idx *Index) annActiveLocked() bool {
	return idx.ivf != nil && idx.cfg.ANNThreshold > 0 && len(idx.byID) >= idx.cfg.ANNThreshold
}

// Get returns the posting with id, or nil.
func (idx *Index) Get(id string) *Posting {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	slot, ok := idx.byID[strings.TrimSpace(id)]
	if !ok {
		return nil
	}
	return idx.slots[slot]
}

// Len returns the number of postings.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// Dimension returns the embedding dimension every posting has.
func (idx *Index) Dimension() int { return idx.dim }

// Version increases with every successful mutation.
func (idx *Index) Version() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.version
}

// Stats describes the index contents.
type Stats struct {
	Postings   int      `json:"postings"`
	Locations  int      `json:"locations"`
	Dimension  int      `json:"dimension"`
	Model      string   `json:"model"`
	Version    uint64   `json:"version"`
	ANNActive  bool     `json:"ann_active"`
	Partitions int      `json:"partitions"`
	TrainedAt  int      `json:"trained_at"`
	Sizes      []uint64 `json:"partition_sizes,omitempty"`
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := Stats{
		Postings:  len(idx.byID),
		Locations: len(idx.byLocation),
		Dimension: idx.dim,
		Model:     idx.model.Name(),
		Version:   idx.version,
		ANNActive: idx.annActiveLocked(),
		TrainedAt: idx.trainedAt,
	}
	if idx.ivf != nil {
		s.Partitions = idx.ivf.Partitioner().K()
		s.Sizes = idx.ivf.Sizes()
	}
	return s
}

// maybeTrain partitions the index once it reaches the ANN threshold and
// again whenever it has doubled since the last training. Only one training
// runs at a time; concurrent callers skip.
func (idx *Index) maybeTrain(ctx context.Context) {
	if idx.cfg.ANNThreshold <= 0 || idx.cfg.Partitions <= 0 {
		return
	}
	idx.mu.RLock()
	n, trainedAt, trained := len(idx.byID), idx.trainedAt, idx.ivf != nil
	idx.mu.RUnlock()
	if n < idx.cfg.ANNThreshold || (trained && n < 2*trainedAt) {
		return
	}
	if err := idx.Retrain(ctx); err != nil {
		idx.logger.Error("ann training failed", "postings", n, "error", err)
	}
}

// Retrain rebuilds the ANN partitions from the current postings.
func (idx *Index) Retrain(ctx context.Context) error {
	if !idx.training.CompareAndSwap(false, true) {
		return nil
	}
	defer idx.training.Store(false)

	idx.mu.RLock()
	vecs := make([][]float32, 0, len(idx.byID))
	for _, p := range idx.slots {
		if p != nil {
			vecs = append(vecs, p.Embedding)
		}
	}
	idx.mu.RUnlock()
	if len(vecs) == 0 {
		return nil
	}

	start := time.Now()
	part, err := ann.Train(ctx, vecs, idx.cfg.Partitions, idx.cfg.KMeansIterations, idx.cfg.Seed)
	if err != nil {
		idx.observer.ObserveIndexTraining(0, time.Since(start), err)
		return fmt.Errorf("training %d partitions: %w", idx.cfg.Partitions, err)
	}
	ivf := ann.NewIVF(part)

	idx.mu.Lock()
	it := idx.live.Iterator()
	for it.HasNext() {
		slot := it.Next()
		ivf.Add(slot, idx.slots[slot].Embedding)
	}
	idx.ivf = ivf
	idx.trainedAt = len(idx.byID)
	idx.mu.Unlock()

	took := time.Since(start)
	idx.observer.ObserveIndexTraining(part.K(), took, nil)
	idx.logger.Info("ann partitions trained", "partitions", part.K(), "postings", len(vecs), "duration", took)
	return nil
}

func duplicate(id string) error {
	return fmt.Errorf("%w: %q", apperrors.ErrDuplicateID, id)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %q", apperrors.ErrNotFound, id)
}
