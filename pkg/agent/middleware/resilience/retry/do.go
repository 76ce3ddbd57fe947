package retry

import (
	"context"
	"fmt"
	"time"
)

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Err      error
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Non-retryable errors are returned unchanged;
// exhaustion is reported as *ExhaustedError wrapping the last error.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.CalculateDelay(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-timer.C:
				}
			}
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.ShouldRetry(err) {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Err: lastErr, Attempts: p.Config.MaxAttempts}
}
