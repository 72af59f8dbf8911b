package pager

import (
	"strings"
	"time"

	"github.com/Keksclan/goRawrPager/retry"
)

// Config describes one paginated list.
type Config struct {
	// Namespace prefixes every cache key of this list. Required, and must
	// not contain ":".
	Namespace string `yaml:"namespace"`
	// PageSize is the initial page size.
	// default: 20
	PageSize int `yaml:"page_size"`
	// SearchDebounce is the quiet period SetSearch waits for before it
	// issues a request.
	// default: 300ms
	SearchDebounce time.Duration `yaml:"search_debounce"`
	// PrefetchPages is the number of following pages fetched in the
	// background after a page is shown. Zero disables prefetching.
	PrefetchPages int `yaml:"prefetch_pages"`
	// TTL is the lifetime of cached pages.
	// default: 5m
	TTL time.Duration `yaml:"ttl"`
	// Retry is the policy for fetches. A zero MaxAttempts selects
	// retry.APIConfig().
	Retry retry.Config `yaml:"retry"`

	// Initial query.
	Filters   map[string]any `yaml:"filters"`
	SortBy    string         `yaml:"sort_by"`
	SortOrder SortOrder      `yaml:"sort_order"`
}

// DefaultConfig returns a Config for namespace with every other field at
// its default. Retry is left zero so New, or a session, can pick the policy.
func DefaultConfig(namespace string) Config {
	return Config{
		Namespace:      namespace,
		PageSize:       20,
		SearchDebounce: 300 * time.Millisecond,
		TTL:            5 * time.Minute,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return ErrMissingNamespace
	}
	if strings.Contains(c.Namespace, keySeparator) {
		return ErrInvalidNamespace(c.Namespace)
	}
	if c.PageSize < 1 {
		return ErrInvalidPageSize(c.PageSize)
	}
	if c.SearchDebounce < 0 {
		return ErrInvalidDuration("search_debounce", c.SearchDebounce)
	}
	if c.TTL <= 0 {
		return ErrInvalidDuration("ttl", c.TTL)
	}
	if c.PrefetchPages < 0 {
		return ErrInvalidPrefetch(c.PrefetchPages)
	}
	switch c.SortOrder {
	case "", Asc, Desc:
	default:
		return ErrInvalidSortOrder(c.SortOrder)
	}
	return c.Retry.Validate()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Namespace)
	if c.PageSize == 0 {
		c.PageSize = d.PageSize
	}
	if c.SearchDebounce == 0 {
		c.SearchDebounce = d.SearchDebounce
	}
	if c.TTL == 0 {
		c.TTL = d.TTL
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.APIConfig()
	}
	return c
}
