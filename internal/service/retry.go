package service

import (
	"context"
	"time"

	"squad-reconciler/internal/constants"

	"github.com/sethvargo/go-retry"
)

// withRetry runs fn and, on failure, once more after a constant backoff. onRetry is
// called before the second attempt. It returns the number of attempts made.
func withRetry(ctx context.Context, backoff time.Duration, fn func(context.Context) error, onRetry func(error)) (int, error) {
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	attempts := 0
	var lastErr error

	b := retry.WithMaxRetries(constants.MaxRetries, retry.NewConstant(backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if attempts > 0 && onRetry != nil {
			onRetry(lastErr)
		}
		attempts++
		if err := fn(ctx); err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		return nil
	})
	return attempts, err
}
