package retry

import (
	"context"
	"errors"
	"time"

	"github.com/Keksclan/goRawrPager/breaker"
	"github.com/Keksclan/goRawrPager/contextx"
	"github.com/Keksclan/goRawrPager/ratelimit"
	"go.uber.org/zap"
)

// Config controls the retry behaviour of [Do] and [Controller].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * Multiplier^(retry-1).
	BaseDelay time.Duration `yaml:"base_delay"`

	// Multiplier is the back-off growth factor. Zero means DefaultMultiplier.
	Multiplier float64 `yaml:"multiplier"`

	// MaxDelay caps the computed back-off delay. Zero disables the cap.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64 `yaml:"jitter"`

	// Classifier decides which failures are retried. Nil means
	// DefaultClassifier.
	Classifier Classifier `yaml:"-"`

	// Limiter, when set, is waited on before every attempt.
	Limiter *ratelimit.Limiter `yaml:"-"`

	// Breaker, when set, is consulted before every attempt and fed the
	// outcome of each one. A breaker that is open before the first attempt
	// fails the call with ErrCircuitOpen; one that opens later ends the call
	// with the last attempt's error.
	Breaker *breaker.Breaker `yaml:"-"`

	// OnRetry is called before each back-off wait.
	OnRetry func(Event) `yaml:"-"`

	// Logger receives a debug line per retry. Nil disables logging.
	Logger *zap.Logger `yaml:"-"`
}

// Event describes a failed attempt that is about to be retried.
type Event struct {
	Attempt   int // 1-based number of the attempt that failed
	Remaining int // attempts left after the wait
	Delay     time.Duration
	Err       error
}

// observer lets Controller track progress through the shared loop.
type observer interface {
	attempting(n int)
	waiting(on bool)
	failed(err error)
}

// Do calls fn up to cfg.MaxAttempts times, retrying only failures the
// classifier reports as Transient. Between attempts an exponential back-off
// delay (with optional jitter) is applied.
//
// The returned error is the original failure of the last attempt. If ctx is
// done while waiting, ctx.Err() is returned instead.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	return run(ctx, cfg, fn, nil)
}

func run[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error), obs observer) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)
	classify := cfg.Classifier
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	for i := range attempts {
		if err := cfg.admit(ctx); err != nil {
			// A circuit that opens mid-call ends it with the last failure.
			if lastErr != nil && errors.Is(err, ErrCircuitOpen) {
				return zero, lastErr
			}
			if obs != nil {
				obs.failed(err)
			}
			return zero, err
		}
		if obs != nil {
			obs.attempting(i + 1)
		}

		result, err := fn(contextx.WithAttempt(ctx, i+1))
		if err == nil {
			if cfg.Breaker != nil {
				cfg.Breaker.OnSuccess()
			}
			return result, nil
		}
		lastErr = unwrapNoRetry(err)
		if obs != nil {
			obs.failed(lastErr)
		}

		class := classify(err)
		if class == Transient && cfg.Breaker != nil {
			cfg.Breaker.OnFailure()
		}
		// Last attempt or permanent failure: hand back the original error.
		if class == Permanent || i == attempts-1 {
			return zero, unwrapNoRetry(err)
		}

		delay := backoff(cfg, i)
		ev := Event{Attempt: i + 1, Remaining: attempts - i - 1, Delay: delay, Err: unwrapNoRetry(err)}
		if cfg.Logger != nil {
			cfg.Logger.Debug("retrying after transient failure",
				zap.Int("attempt", ev.Attempt),
				zap.Int("remaining", ev.Remaining),
				zap.Duration("delay", delay),
				zap.Error(ev.Err),
			)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(ev)
		}

		if obs != nil {
			obs.waiting(true)
		}
		werr := sleep(ctx, delay)
		if obs != nil {
			obs.waiting(false)
		}
		if werr != nil {
			return zero, werr
		}
	}

	// Unreachable, but keeps the compiler happy.
	return zero, nil
}

// admit runs the pre-attempt gates: breaker first, so an open circuit does
// not consume rate-limit tokens.
func (cfg Config) admit(ctx context.Context) error {
	if cfg.Breaker != nil && !cfg.Breaker.Allow() {
		return ErrCircuitOpen
	}
	if cfg.Limiter != nil {
		if err := cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
