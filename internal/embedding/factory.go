package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/resilience"
)

// Options carries the optional collaborators of New.
type Options struct {
	// Store enables the read-through cache when cfg.Cache is set.
	Store    Store
	CacheTTL time.Duration
	// Observe, when non-nil, receives the latency of every upstream call.
	Observe ObserveFunc
	// OnCacheLookup, when non-nil, is told about every cache hit and miss.
	OnCacheLookup func(hit bool)
	// OnBreakerChange, when non-nil, is told about remote provider circuit
	// breaker transitions.
	OnBreakerChange func(name string, to resilience.State)
}

// Chain is the assembled embedder plus handles to the decorators that expose
// state for stats and health endpoints. Cache and Limiter may be nil.
type Chain struct {
	Model
	Cache   *Cached
	Limiter *Limited
}

// New builds the provider named by cfg.Provider and wraps it:
// provider -> Limited (remote only) -> Observed -> Batcher -> Cached.
func New(ctx context.Context, cfg config.EmbeddingConfig, opts Options) (*Chain, error) {
	var (
		base   Model
		remote bool
		err    error
	)
	switch cfg.Provider {
	case "", "hash":
		base, err = NewHashModel(cfg.Dimension)
	case "openai":
		remote = true
		base, err = NewOpenAIModel(OpenAIConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		})
	case "gemini":
		remote = true
		base, err = NewGeminiModel(ctx, GeminiConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.Provider, err)
	}

	chain := &Chain{}
	m := base
	if remote {
		chain.Limiter = NewLimited(m, cfg.RequestsPerSecond, opts.OnBreakerChange)
		m = chain.Limiter
	}
	if opts.Observe != nil {
		m = NewObserved(m, opts.Observe)
	}
	m = NewBatcher(m, cfg.BatchSize, cfg.Workers)
	if cfg.Cache && opts.Store != nil {
		chain.Cache = NewCached(m, opts.Store, opts.CacheTTL)
		chain.Cache.OnLookup = opts.OnCacheLookup
		m = chain.Cache
	}
	chain.Model = m

	slog.Default().With("component", "embedding").Info("embedder ready",
		"model", m.Name(),
		"dimension", m.Dimension(),
		"cached", chain.Cache != nil,
		"rate_limited", chain.Limiter != nil,
	)
	return chain, nil
}
