package errors

import (
	"context"
	"fmt"
	"time"

	"outing/internal/logging"
)

// CallWithRetry executes fn under the policy's retry budget. On each failed
// attempt it consults ShouldRetry; a non-retryable error or an exhausted
// budget propagates the last error. The backoff sleep is scoped to this
// call and honours context cancellation.
func CallWithRetry[T any](ctx context.Context, policy RetryPolicy, logger *logging.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	logger = logging.OrNop(logger)

	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s cancelled: %w", op, ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("retry succeeded", "op", op, "attempts", attempt+1)
			}
			return result, nil
		}
		lastErr = err
		logger.Debug("attempt failed", "op", op, "attempt", attempt+1, "error", err)

		if !policy.ShouldRetry(err) {
			logger.Debug("error is not retryable", "op", op, "error", err)
			return zero, err
		}
		if attempt == policy.MaxRetries {
			logger.Warn("retry budget exhausted", "op", op, "attempts", attempt+1)
			break
		}

		delay := time.Duration(policy.RetryDelay(attempt)) * time.Second
		logger.Debug("backing off before retry", "op", op, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("%s cancelled during backoff: %w", op, ctx.Err())
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}
