// Package execution places and closes trades against a broker, guarding
// every call with idempotency keys and retry-with-backoff so a crashed or
// re-run cycle never double-submits an order.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

// CallWithRetries invokes fn, retrying only when it returns a
// broker.RetryableError or broker.DisconnectedError. Any other error is
// returned immediately. backoff[i] is the delay before attempt i+2; the
// last entry is reused once attempts exceed len(backoff).
func CallWithRetries(ctx context.Context, fn func() (*broker.OrderResult, error), maxAttempts int, backoff []time.Duration) (*broker.OrderResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt >= maxAttempts {
			break
		}

		delay := backoffFor(backoff, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("retry canceled: %w", ctx.Err())
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	var retryable *broker.RetryableError
	var disconnected *broker.DisconnectedError
	return errors.As(err, &retryable) || errors.As(err, &disconnected)
}

func backoffFor(backoff []time.Duration, attempt int) time.Duration {
	if len(backoff) == 0 {
		return time.Second
	}
	idx := attempt - 1
	if idx >= len(backoff) {
		idx = len(backoff) - 1
	}
	return backoff[idx]
}
