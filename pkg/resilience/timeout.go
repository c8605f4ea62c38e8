package resilience

import (
	"context"
	"fmt"
	"time"
)

// ErrTimeout is wrapped into errors returned by WithTimeout when the limit
// expires before fn returns.
var ErrTimeout = context.DeadlineExceeded

// WithTimeout runs fn with a context derived from ctx that expires after
// timeout. A non-positive timeout runs fn with ctx unchanged. When the
// deadline fires first, WithTimeout returns without waiting for fn; fn is
// expected to observe its context and return promptly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (limit: %v)", name, ErrTimeout, timeout)
	}
}
