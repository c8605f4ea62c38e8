package embedding

import (
	"context"
	"time"
)

// ObserveFunc receives the outcome of every embedding call.
type ObserveFunc func(model, op string, took time.Duration, err error)

// Observed reports call latency and outcome to an ObserveFunc, typically a
// Prometheus histogram.
type Observed struct {
	next    Model
	observe ObserveFunc
}

func NewObserved(next Model, observe ObserveFunc) *Observed {
	return &Observed{next: next, observe: observe}
}

func (o *Observed) Name() string   { return o.next.Name() }
func (o *Observed) Dimension() int { return o.next.Dimension() }

func (o *Observed) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err := o.next.Embed(ctx, text)
	o.observe(o.next.Name(), "embed", time.Since(start), err)
	return v, err
}

func (o *Observed) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	v, err := o.next.EmbedMany(ctx, texts)
	o.observe(o.next.Name(), "embed_many", time.Since(start), err)
	return v, err
}
