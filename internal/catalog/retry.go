package catalog

import (
	"context"
	"time"
)

// Retry calls fn until it succeeds or attempts are exhausted. The delay
// doubles after each failure. Cancellation of ctx ends the wait early.
func Retry(ctx context.Context, retries int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
