package gorawrpager

import (
	"fmt"
	"io"
	"os"

	"github.com/Keksclan/goRawrPager/breaker"
	"github.com/Keksclan/goRawrPager/cache"
	"github.com/Keksclan/goRawrPager/logger"
	"github.com/Keksclan/goRawrPager/retry"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML form of the session options. Durations use Go
// syntax ("300ms", "5m").
//
//	cache:
//	  max_entries: 500
//	  default_ttl: 2m
//	retry:
//	  preset: api
//	  max_attempts: 4
//	breaker:
//	  failure_threshold: 5
//	  open_timeout: 30s
//	rate_limit:
//	  rps: 20
//	  burst: 5
//	redis:
//	  addr: localhost:6379
//	  key_prefix: "admin:"
//	  scope: tenant-42
//	logger:
//	  level: debug
type FileConfig struct {
	Cache     cache.Config     `yaml:"cache"`
	Retry     RetryFileConfig  `yaml:"retry"`
	Breaker   *breaker.Config  `yaml:"breaker"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
	Redis     *cache.L2Config  `yaml:"redis"`
	Logger    *logger.Config   `yaml:"logger"`
}

// RetryFileConfig selects a retry preset and overrides its numeric fields.
type RetryFileConfig struct {
	// Preset is one of default, api or bulk.
	// default: "api"
	Preset       string `yaml:"preset"`
	retry.Config `yaml:",inline"`
}

// RateLimitConfig is the token bucket in front of every fetch.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LoadConfig decodes and validates a FileConfig. Unknown fields are
// rejected.
func LoadConfig(r io.Reader) (*FileConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var fc FileConfig
	if err := dec.Decode(&fc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("gorawrpager: decode config: %w", err)
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// LoadConfigFile reads a FileConfig from path.
func LoadConfigFile(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gorawrpager: open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate checks every section that is present.
func (fc *FileConfig) Validate() error {
	if err := fc.Cache.WithDefaults().Validate(); err != nil {
		return err
	}
	rc, err := fc.Retry.resolve()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	if fc.RateLimit != nil && fc.RateLimit.RPS <= 0 {
		return fmt.Errorf("gorawrpager: invalid rate_limit.rps: %v (must be > 0)", fc.RateLimit.RPS)
	}
	if fc.Redis != nil {
		if err := fc.Redis.Validate(); err != nil {
			return err
		}
	}
	if fc.Logger != nil {
		if err := fc.Logger.WithDefaults().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Options converts the file into session options. When a logger section is
// present the logger is built here.
func (fc *FileConfig) Options() ([]Option, error) {
	rc, err := fc.Retry.resolve()
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithCacheConfig(fc.Cache),
		WithRetryConfig(rc),
	}
	if fc.Breaker != nil {
		opts = append(opts, WithCircuitBreaker(*fc.Breaker))
	}
	if fc.RateLimit != nil {
		opts = append(opts, WithRateLimit(fc.RateLimit.RPS, fc.RateLimit.Burst))
	}
	if fc.Redis != nil {
		opts = append(opts, WithRedis(*fc.Redis))
	}
	if fc.Logger != nil {
		log, err := logger.New(fc.Logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLogger(log))
	}
	return opts, nil
}

// resolve applies the non-zero fields on top of the named preset.
func (r RetryFileConfig) resolve() (retry.Config, error) {
	var base retry.Config
	switch r.Preset {
	case "", "api":
		base = retry.APIConfig()
	case "default":
		base = retry.DefaultConfig()
	case "bulk":
		base = retry.BulkConfig()
	default:
		return retry.Config{}, fmt.Errorf("gorawrpager: unknown retry preset %q, must be 'default', 'api' or 'bulk'", r.Preset)
	}
	if r.MaxAttempts != 0 {
		base.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelay != 0 {
		base.BaseDelay = r.BaseDelay
	}
	if r.Multiplier != 0 {
		base.Multiplier = r.Multiplier
	}
	if r.MaxDelay != 0 {
		base.MaxDelay = r.MaxDelay
	}
	if r.Jitter != 0 {
		base.Jitter = r.Jitter
	}
	return base, nil
}
