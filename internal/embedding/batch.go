package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Batcher splits large EmbedMany calls into chunks of at most batchSize
// texts and runs up to workers chunks concurrently. Output order always
// matches input order.
type Batcher struct {
	next      Model
	batchSize int
	workers   int
}

// NewBatcher wraps next. Non-positive batchSize or workers fall back to 64
// and 1 respectively.
func NewBatcher(next Model, batchSize, workers int) *Batcher {
	if batchSize <= 0 {
		batchSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	return &Batcher{next: next, batchSize: batchSize, workers: workers}
}

func (b *Batcher) Name() string   { return b.next.Name() }
func (b *Batcher) Dimension() int { return b.next.Dimension() }

func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.next.Embed(ctx, text)
}

func (b *Batcher) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.batchSize {
		return b.next.EmbedMany(ctx, texts)
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := b.next.EmbedMany(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch [%d:%d]: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return providerError(b.next.Name(), fmt.Errorf("batch [%d:%d] returned %d vectors", start, end, len(vecs)))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
