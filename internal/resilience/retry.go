// Package resilience holds the error taxonomy and the retry and circuit
// breaker combinators shared by the harvest pipeline.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FixedPolicy retries with a constant delay between attempts.
type FixedPolicy struct {
	// Attempts is the total number of attempts including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// Delay is the pause after each failed attempt except the last.
	Delay time.Duration

	// ShouldRetry optionally limits which errors are retried. If nil every
	// error is retried.
	ShouldRetry func(err error) bool

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Result reports the outcome of Retry.
type Result struct {
	Attempts int
	Err      error
}

// OK reports whether the final attempt succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Retry calls fn until it succeeds, the policy's attempts are spent, the
// error is not retryable, or ctx is done. It never sleeps after the final
// attempt. Err holds the last error, or ctx.Err() if the wait was cut short.
func Retry(ctx context.Context, p FixedPolicy, fn func(ctx context.Context) error) Result {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var res Result
	for i := 1; i <= attempts; i++ {
		res.Attempts = i
		res.Err = fn(ctx)
		if res.Err == nil {
			return res
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(res.Err) {
			return res
		}
		if i == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(i, res.Err)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			res.Err = err
			return res
		}
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each failed attempt.
func RetryLogger(operation string, delay time.Duration) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("attempt failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.String("kind", Kind(err)),
			zap.Error(err),
		)
	}
}
