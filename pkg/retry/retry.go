package retry

import (
	"context"
	"fmt"
	"time"
)

// Func is one attempt of the operation under retry.
type Func func(ctx context.Context) error

// Retryable decides whether an attempt's error is worth another try.
type Retryable func(err error) bool

// Do runs fn up to attempts times with a fixed delay between attempts.
// A nil error stops immediately. An error rejected by retryable stops
// immediately and is returned as-is. Context cancellation aborts the
// wait between attempts and returns the context error.
func Do(ctx context.Context, attempts int, delay time.Duration, fn Func, retryable Retryable) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
