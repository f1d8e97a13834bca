package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryConfig bounds the retry policy for one job execution.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// MaxJitter caps the uniform jitter added to each delay. Defaults to
	// one second.
	MaxJitter time.Duration
}

// WithRetry invokes fn, retrying transient failures with exponential
// backoff plus uniform jitter: delay = BaseDelay * 2^attempt + jitter.
// Non-retryable failures and exhausted retries propagate the last error.
// Retried attempts carry the same idempotency key downstream, so ledger
// effects never double.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	maxJitter := cfg.MaxJitter
	if maxJitter <= 0 {
		maxJitter = time.Second
	}
	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(uint(cfg.MaxRetries)+1),
		retry.RetryIf(func(err error) bool {
			return Classify(err).Retryable()
		}),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			backoff := cfg.BaseDelay * time.Duration(1<<n)
			return backoff + time.Duration(rand.Int63n(int64(maxJitter)))
		}),
		retry.LastErrorOnly(true),
	)
}
