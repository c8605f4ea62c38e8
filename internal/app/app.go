// Package app assembles the matching engine from configuration: embedder
// chain, keyword extractor, index, recommendation service and the optional
// Redis, PostgreSQL and Kafka collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/resilience"
)

// Engine is a fully wired matching engine.
type Engine struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Embedder   *embedding.Chain
	Extractor  *keywords.Extractor
	Index      *index.Index
	Service    *recommend.Service
	Aggregator *analytics.Aggregator
	Redis      *pkgredis.Client
	DB         *postgres.Client

	closers []func() error
	logger  *slog.Logger
}

// Options adjust Build for a particular command.
type Options struct {
	// Tracker receives analytics events in addition to the in-process
	// aggregator.
	Tracker analytics.Tracker
	// SkipRedis disables the embedding cache even when configured.
	SkipRedis bool
}

var connectRetry = resilience.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// Build wires an Engine from cfg. A configured Redis that cannot be reached
// only disables the embedding cache; an unreachable PostgreSQL source is
// fatal.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	e := &Engine{
		Config:     cfg,
		Metrics:    metrics.New(),
		Aggregator: analytics.NewAggregator(),
		logger:     slog.Default().With("component", "app"),
	}

	var store embedding.Store
	if cfg.Embedding.Cache && !opts.SkipRedis {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			e.logger.Warn("redis unavailable, embedding cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			e.Redis = rc
			store = rc
			e.closers = append(e.closers, rc.Close)
		}
	}

	chain, err := embedding.New(ctx, cfg.Embedding, embedding.Options{
		Store:         store,
		CacheTTL:      cfg.Redis.CacheTTL,
		Observe:       e.Metrics.ObserveEmbedding,
		OnCacheLookup: e.Metrics.ObserveCache,
		OnBreakerChange: func(name string, to resilience.State) {
			e.Metrics.SetBreakerState(name, int(to))
		},
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	e.Embedder = chain

	e.Extractor, err = keywords.New(chain,
		keywords.WithNgramMax(cfg.Keywords.NgramMax),
		keywords.WithDiversity(cfg.Keywords.Diversity),
		keywords.WithMaxCandidates(cfg.Keywords.MaxCandidates),
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("building keyword extractor: %w", err)
	}

	e.Index, err = index.New(chain, e.Extractor, cfg.Index,
		index.WithObserver(e.Metrics),
		index.WithMaxKeywords(cfg.Keywords.MaxKeywords),
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("building index: %w", err)
	}

	tracker := analytics.Tracker(e.Aggregator)
	if opts.Tracker != nil {
		tracker = analytics.Multi(e.Aggregator, opts.Tracker)
	}
	e.Service = recommend.New(e.Index, chain, e.Extractor,
		recommend.WithObserver(e.Metrics),
		recommend.WithTracker(tracker),
		recommend.WithEmbedTimeout(cfg.Recommend.Timeout),
		recommend.WithQueryKeywords(cfg.Keywords.MaxKeywords),
	)

	if cfg.Source.Kind == "postgres" {
		err := resilience.Retry(ctx, "postgres connect", connectRetry, func(ctx context.Context) error {
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			e.DB = db
			return nil
		})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		e.closers = append(e.closers, e.DB.Close)
	}
	return e, nil
}

// LoadConfigured loads postings from the source named in the config.
func (e *Engine) LoadConfigured(ctx context.Context) (int, error) {
	src, err := source.Open(e.Config.Source, e.DB)
	if err != nil {
		return 0, err
	}
	if src == nil {
		e.logger.Info("no posting source configured, starting empty")
		return 0, nil
	}
	return e.Load(ctx, src)
}

// Load bulk-inserts everything src yields. The load is all-or-nothing.
func (e *Engine) Load(ctx context.Context, src source.Source) (int, error) {
	start := time.Now()
	data, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading postings from %s: %w", src.Name(), err)
	}
	if len(data) == 0 {
		e.logger.Warn("posting source is empty", "source", src.Name())
		return 0, nil
	}
	added, err := e.Index.BulkInsert(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("indexing postings from %s: %w", src.Name(), err)
	}
	e.logger.Info("postings indexed",
		"source", src.Name(),
		"count", len(added),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return len(added), nil
}

// HealthChecker registers index, embedder and, when connected, Redis and
// PostgreSQL checks.
func (e *Engine) HealthChecker() *health.Checker {
	c := health.NewChecker(5 * time.Second)
	c.Register("index", health.CountCheck("postings", e.Index.Len, false))
	if lim := e.Embedder.Limiter; lim != nil {
		c.Register("embedder", health.BreakerCheck(func() fmt.Stringer { return lim.BreakerState() }))
	} else {
		c.Register("embedder", func(context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: e.Embedder.Name()}
		})
	}
	if e.Redis != nil {
		c.Register("redis", health.OptionalPingCheck(e.Redis.Ping))
	}
	if e.DB != nil {
		c.Register("postgres", health.OptionalPingCheck(e.DB.Ping))
	}
	return c
}

// Close releases every connection Build opened.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
