package retry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoPreviousOperation is returned by Controller.Retry before any
	// Execute call.
	ErrNoPreviousOperation = errors.New("retry: no previous operation to retry")
	// ErrCircuitOpen is returned when the configured breaker rejects an attempt.
	ErrCircuitOpen = errors.New("retry: circuit open")
)

// ErrInvalidMaxAttempts returns an error for a non-positive attempt bound.
func ErrInvalidMaxAttempts(n int) error {
	return fmt.Errorf("retry: invalid max attempts: %d (must be >= 1)", n)
}

// ErrInvalidDelay returns an error for a negative delay field.
func ErrInvalidDelay(field string, d time.Duration) error {
	return fmt.Errorf("retry: invalid %s: %v (must be >= 0)", field, d)
}

// ErrInvalidMultiplier returns an error for a shrinking back-off factor.
func ErrInvalidMultiplier(m float64) error {
	return fmt.Errorf("retry: invalid multiplier: %v (must be >= 1)", m)
}

// ErrInvalidJitter returns an error for a jitter fraction outside [0, 1].
func ErrInvalidJitter(j float64) error {
	return fmt.Errorf("retry: invalid jitter: %v (must be within [0, 1])", j)
}
