package cache

import "time"

// Config holds the bounds of a Store.
type Config struct {
	// MaxEntries caps the number of entries. Once exceeded, the oldest
	// inserted entries are evicted.
	// default: 100
	MaxEntries int `yaml:"max_entries"`
	// DefaultTTL applies to Set calls without an explicit TTL.
	// default: 5m
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 100,
		DefaultTTL: 5 * time.Minute,
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.MaxEntries < 1 {
		return ErrInvalidMaxEntries(c.MaxEntries)
	}
	if c.DefaultTTL <= 0 {
		return ErrInvalidTTL(c.DefaultTTL)
	}
	return nil
}

// WithDefaults returns c with zero fields taken from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxEntries == 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	return c
}
