package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is the byte-oriented key/value cache behind Cached. pkg/redis.Client
// satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// Cached is a read-through cache for single-text embeddings. Concurrent
// requests for the same text share one upstream call, which is detached
// from the cancellation of whichever caller started it. Store failures are
// logged and treated as misses.
type Cached struct {
	next   Model
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger

	// OnLookup, when set, is told whether each lookup hit.
	OnLookup func(hit bool)

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

// NewCached wraps next with store. A zero ttl stores entries without expiry.
func NewCached(next Model, store Store, ttl time.Duration) *Cached {
	return &Cached{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "embedding-cache"),
	}
}

func (c *Cached) Name() string   { return c.next.Name() }
func (c *Cached) Dimension() int { return c.next.Dimension() }

// Stats returns hit, miss and store error counters.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}
	key := c.key(text)
	if vec, ok := c.lookup(ctx, key); ok {
		c.hits.Add(1)
		c.report(true)
		return vec, nil
	}
	c.misses.Add(1)
	c.report(false)

	// The flight outlives any single caller: a cancelled leader must not
	// fail followers waiting on the same text.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		vec, err := c.next.Embed(flightCtx, text)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(flightCtx, key, encodeVector(vec), c.ttl); err != nil {
			c.errors.Add(1)
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
		return vec, nil
	})
	var v any
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v = res.Val
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// Callers sharing a flight must not alias each other's slice.
	shared := v.([]float32)
	out := make([]float32, len(shared))
	copy(out, shared)
	return out, nil
}

// EmbedMany bypasses the cache; bulk calls are dominated by unique texts.
func (c *Cached) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedMany(ctx, texts)
}

func (c *Cached) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	vec, err := decodeVector(raw, c.next.Dimension())
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	return vec, true
}

func (c *Cached) report(hit bool) {
	if c.OnLookup != nil {
		c.OnLookup(hit)
	}
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.next.Name() + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte, dim int) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(buf))
	}
	n := len(buf) / 4
	if dim > 0 && n != dim {
		return nil, fmt.Errorf("got %d components, want %d", n, dim)
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
