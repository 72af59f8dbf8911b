package retry

import (
	"context"
	"sync"
)

// Func is an operation wrapped by a Controller. A is the argument tuple,
// typically a small struct.
type Func[A, R any] func(ctx context.Context, args A) (R, error)

// State is a snapshot of a Controller.
type State struct {
	Attempt     int  // attempts made for the current call; 0 when idle or after success
	MaxAttempts int  // configured bound
	Retrying    bool // true only while a back-off wait is pending
	LastErr     error
}

// Remaining returns the number of attempts left for the current call.
func (s State) Remaining() int {
	return max(s.MaxAttempts-s.Attempt, 0)
}

// Exhausted reports whether the last call ended with a failure after using
// every attempt.
func (s State) Exhausted() bool {
	return s.LastErr != nil && s.Attempt >= s.MaxAttempts
}

// Controller wraps one logical operation with a retry policy and remembers
// the last arguments so the call can be replayed with Retry. A Controller
// tracks one call at a time; use separate controllers for independent
// operations running in parallel.
type Controller[A, R any] struct {
	fn  Func[A, R]
	cfg Config

	mu       sync.Mutex
	attempt  int
	retrying bool
	lastErr  error
	lastArgs A
	hasArgs  bool
}

// New creates a Controller around fn.
func New[A, R any](fn Func[A, R], cfg Config) *Controller[A, R] {
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	return &Controller[A, R]{fn: fn, cfg: cfg}
}

// Execute invokes the wrapped operation with args under the retry policy.
// Failures are returned unchanged: the caller sees the same error value the
// operation produced.
func (c *Controller[A, R]) Execute(ctx context.Context, args A) (R, error) {
	c.mu.Lock()
	c.lastArgs = args
	c.hasArgs = true
	c.attempt = 0
	c.retrying = false
	c.mu.Unlock()

	return c.run(ctx, args)
}

// Retry replays the arguments of the most recent Execute call through the
// same policy, starting from a fresh attempt count.
func (c *Controller[A, R]) Retry(ctx context.Context) (R, error) {
	c.mu.Lock()
	if !c.hasArgs {
		c.mu.Unlock()
		var zero R
		return zero, ErrNoPreviousOperation
	}
	args := c.lastArgs
	c.attempt = 0
	c.retrying = false
	c.mu.Unlock()

	return c.run(ctx, args)
}

// Reset zeroes the attempt count and clears the retrying flag and the last
// error. The last arguments are kept so Retry still works.
func (c *Controller[A, R]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt = 0
	c.retrying = false
	c.lastErr = nil
}

// State returns a snapshot of the controller.
func (c *Controller[A, R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Attempt:     c.attempt,
		MaxAttempts: c.cfg.MaxAttempts,
		Retrying:    c.retrying,
		LastErr:     c.lastErr,
	}
}

func (c *Controller[A, R]) run(ctx context.Context, args A) (R, error) {
	res, err := run(ctx, c.cfg, func(ctx context.Context) (R, error) {
		return c.fn(ctx, args)
	}, c)
	if err == nil {
		c.mu.Lock()
		c.attempt = 0
		c.lastErr = nil
		c.mu.Unlock()
	}
	return res, err
}

func (c *Controller[A, R]) attempting(n int) {
	c.mu.Lock()
	c.attempt = n
	c.mu.Unlock()
}

func (c *Controller[A, R]) waiting(on bool) {
	c.mu.Lock()
	c.retrying = on
	c.mu.Unlock()
}

func (c *Controller[A, R]) failed(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
