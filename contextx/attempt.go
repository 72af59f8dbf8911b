package contextx

import "context"

// WithAttempt returns a derived context that carries the 1-based retry
// attempt number.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// AttemptFromContext extracts the attempt number stored in ctx.
// It returns 0 outside of a retried call.
func AttemptFromContext(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey).(int)
	return n
}
