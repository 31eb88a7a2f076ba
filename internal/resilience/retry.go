package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	MaxAttempts int
	Wait        time.Duration
}

// Retry runs op up to MaxAttempts times with a constant delay between
// attempts. Errors for which retryable returns false stop immediately.
func Retry[T any](ctx context.Context, cfg RetryConfig, retryable func(error) bool, notify func(err error, next time.Duration), op func() (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Wait), uint64(attempts-1)),
		ctx,
	)
	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	if notify == nil {
		return backoff.RetryWithData(wrapped, policy)
	}
	return backoff.RetryNotifyWithData(wrapped, policy, notify)
}
