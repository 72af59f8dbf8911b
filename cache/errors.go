package cache

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingL2Addr is returned when the Redis tier has no address.
var ErrMissingL2Addr = errors.New("cache: redis addr is required")

// ErrInvalidMaxEntries returns an error for a non-positive entry bound.
func ErrInvalidMaxEntries(n int) error {
	return fmt.Errorf("cache: invalid max entries: %d (must be >= 1)", n)
}

// ErrInvalidTTL returns an error for a non-positive default TTL.
func ErrInvalidTTL(ttl time.Duration) error {
	return fmt.Errorf("cache: invalid default ttl: %v (must be > 0)", ttl)
}

// ErrInvalidPattern wraps a regular expression compile failure.
func ErrInvalidPattern(expr string, err error) error {
	return fmt.Errorf("cache: invalid pattern %q: %w", expr, err)
}

// ErrInvalidL2Scope returns an error for an empty scope or one containing
// the "/" separator.
func ErrInvalidL2Scope(scope string) error {
	return fmt.Errorf("cache: invalid redis scope %q (must be non-empty and contain no \"/\")", scope)
}
