package retry

import (
	"context"
	"time"

	"github.com/spetersoncode/careflow"
)

// effectiveDelay honors a server-provided retry delay when it is longer than
// the configured one.
func effectiveDelay(configured time.Duration, err error) time.Duration {
	return max(configured, careflow.RetryAfterOf(err))
}

// Do executes fn until it succeeds, fails permanently or the attempts run
// out. Backoff waits respect ctx.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	n := cfg.attempts()
	for attempt := 0; attempt < n; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == n-1 {
			break
		}

		delay := effectiveDelay(cfg.Delay(attempt), err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

// DoStream is like Do for calls that open a stream. Only establishing the
// stream is retried; events already delivered are never replayed.
func DoStream[T any](ctx context.Context, cfg Config, fn func() (<-chan T, error)) (<-chan T, error) {
	return Do(ctx, cfg, fn)
}
