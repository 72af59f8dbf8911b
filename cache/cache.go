// Package cache provides the in-memory TTL store that backs paginated list
// fetching, plus an optional Redis-backed shared tier.
//
// A [Store] is meant to be created once per session and injected into every
// consumer; there is no package-level singleton.
package cache

import "time"

// Cache is the contract consumers depend on. [*Store] is the default
// implementation. All methods are synchronous and safe for concurrent use.
type Cache interface {
	// Get returns the live value stored under key. Expired entries are
	// evicted and reported as a miss.
	Get(key string) (any, bool)

	// Set inserts or replaces the entry for key. A ttl <= 0 falls back to the
	// store's default TTL.
	Set(key string, val any, ttl time.Duration)

	// Has reports whether key holds a live value.
	Has(key string) bool

	// Invalidate removes exactly one entry and reports whether it existed.
	Invalidate(key string) bool

	// InvalidatePattern removes every key matching the regular expression
	// expr and returns how many entries were dropped.
	InvalidatePattern(expr string) (int, error)

	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(prefix string) int

	// Clear removes all entries.
	Clear()

	// Stats returns a point-in-time snapshot of the store counters.
	Stats() Stats
}

// Stats is a diagnostic snapshot of a cache.
type Stats struct {
	TotalEntries  int
	MaxEntries    int
	Hits          uint64
	Misses        uint64
	Evictions     uint64 // entries dropped to stay within MaxEntries
	Expirations   uint64
	Invalidations uint64
}

// EvictReason says why an entry left the store.
type EvictReason string

const (
	ReasonCapacity    EvictReason = "capacity"
	ReasonExpired     EvictReason = "expired"
	ReasonInvalidated EvictReason = "invalidated"
)

// Observer receives store events, typically to feed metrics. Implementations
// are called with the store lock held and must not call back into the store.
type Observer interface {
	Hit()
	Miss()
	Evicted(reason EvictReason, n int)
}
