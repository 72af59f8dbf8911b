package gorawrpager

import (
	"github.com/Keksclan/goRawrPager/cache"
	"github.com/Keksclan/goRawrPager/retry"
)

// DefaultOptions returns the recommended set of options for an admin
// client: a 100-entry cache with a five minute TTL and the API retry policy,
// which never retries authentication failures.
func DefaultOptions() []Option {
	return []Option{
		WithCacheConfig(cache.DefaultConfig()),
		WithRetryConfig(retry.APIConfig()),
	}
}
