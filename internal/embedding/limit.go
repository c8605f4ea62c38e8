package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/resilience"
	"golang.org/x/time/rate"
)

// Limited guards a remote provider with a token-bucket rate limiter and a
// circuit breaker. Failed calls are never retried here; a tripped breaker
// fails fast with ErrEmbedding.
type Limited struct {
	next    Model
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewLimited wraps next. rps <= 0 disables rate limiting. onChange, when
// non-nil, is told about every breaker transition.
func NewLimited(next Model, rps float64, onChange func(name string, to resilience.State)) *Limited {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker("embedding:"+next.Name(), resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange:    onChange,
		}),
	}
}

func (l *Limited) Name() string   { return l.next.Name() }
func (l *Limited) Dimension() int { return l.next.Dimension() }

// BreakerState exposes the breaker for health checks.
func (l *Limited) BreakerState() resilience.State { return l.breaker.GetState() }

func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	// Rejected input must not count against the breaker.
	if err := checkText(text); err != nil {
		return nil, err
	}
	var out []float32
	err := l.call(ctx, func() error {
		v, err := l.next.Embed(ctx, text)
		out = v
		return err
	})
	return out, err
}

func (l *Limited) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	var out [][]float32
	err := l.call(ctx, func() error {
		v, err := l.next.EmbedMany(ctx, texts)
		out = v
		return err
	})
	return out, err
}

func (l *Limited) call(ctx context.Context, fn func() error) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embedding rate limit wait: %w", err)
	}
	err := l.breaker.Execute(fn)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", apperrors.ErrEmbedding, err)
	}
	return err
}
