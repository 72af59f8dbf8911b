package retry

import "time"

// DefaultMultiplier is the back-off growth factor used when Config.Multiplier
// is zero.
const DefaultMultiplier = 2

// DefaultConfig returns the general-purpose policy: three attempts starting
// at one second, doubling, capped at thirty seconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    30 * time.Second,
		Classifier:  DefaultClassifier,
	}
}

// APIConfig is DefaultConfig for REST/gRPC calls: authentication and
// authorization failures are never retried.
func APIConfig() Config {
	cfg := DefaultConfig()
	cfg.Classifier = APIClassifier(DefaultClassifier)
	return cfg
}

// BulkConfig is meant for bulk mutations, which are costly to repeat: fewer
// attempts and a longer base delay.
func BulkConfig() Config {
	cfg := APIConfig()
	cfg.MaxAttempts = 2
	cfg.BaseDelay = 2 * time.Second
	return cfg
}

// Validate checks the numeric fields of the policy.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts(c.MaxAttempts)
	}
	if c.BaseDelay < 0 {
		return ErrInvalidDelay("base_delay", c.BaseDelay)
	}
	if c.MaxDelay < 0 {
		return ErrInvalidDelay("max_delay", c.MaxDelay)
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return ErrInvalidMultiplier(c.Multiplier)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return ErrInvalidJitter(c.Jitter)
	}
	return nil
}
