// Package retry wraps fallible operations with bounded attempts and
// exponential back-off. Every failure is classified as [Transient] or
// [Permanent] by a [Classifier]; only transient failures are retried, and
// the error handed back to the caller is always the original one.
//
// [Do] is a stateless one-shot helper. [Controller] keeps per-operation state
// (attempt count, last error, last arguments) for callers that need to show
// progress or replay the last call.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// backoff returns the delay after the given failed attempt (0-indexed)
// according to exponential back-off with optional jitter:
// BaseDelay * Multiplier^attempt, capped at MaxDelay when MaxDelay > 0.
// Without a cap the delay saturates at the largest time.Duration.
func backoff(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = DefaultMultiplier
	}
	limit := float64(math.MaxInt64)
	if cfg.MaxDelay > 0 {
		limit = float64(cfg.MaxDelay)
	}
	delay := min(float64(cfg.BaseDelay)*math.Pow(mult, float64(attempt)), limit)
	if cfg.Jitter > 0 {
		// jitter adds up to ±Jitter fraction of the delay.
		delay = min(delay+delay*cfg.Jitter*(rand.Float64()*2-1), limit)
	}
	switch {
	case !(delay > 0): // also catches NaN from 0 * Inf
		return 0
	case delay >= float64(math.MaxInt64):
		// float64(MaxInt64) rounds up to 2^63, which does not convert.
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
