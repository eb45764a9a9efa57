// Package retry wraps provider calls in an explicit attempt policy.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy decides how often and when a failing call is re-issued. The wait
// grows linearly: after failed attempt n the next try waits Backoff * n.
type Policy struct {
	MaxAttempts int
	// Backoff is the per-attempt step of the linear wait. Zero disables waiting.
	Backoff time.Duration
	// IsRetryable reports whether err is transient. Nil treats every error as transient.
	IsRetryable func(error) bool
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget runs out, or ctx is done. It returns the last error and the number
// of attempts made.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, attempt - 1, errors.Join(lastErr, err)
			}
			return zero, attempt - 1, err
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err

		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return zero, attempt, err
		}
		if attempt == maxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Backoff*time.Duration(attempt)); err != nil {
			return zero, attempt, errors.Join(lastErr, err)
		}
	}
	return zero, maxAttempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
