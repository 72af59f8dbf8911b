package gorawrpager

import (
	"github.com/Keksclan/goRawrPager/breaker"
	"github.com/Keksclan/goRawrPager/cache"
	"github.com/Keksclan/goRawrPager/retry"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Session.
type Option func(*config)

// WithCacheConfig sets the bounds of the session page cache.
func WithCacheConfig(c cache.Config) Option {
	return func(cfg *config) {
		cfg.cache = c
	}
}

// WithRetryConfig sets the retry policy used by pagers and controllers that
// do not bring their own.
func WithRetryConfig(r retry.Config) Option {
	return func(cfg *config) {
		cfg.retry = &r
	}
}

// WithCircuitBreaker puts a breaker shared by every fetch of the session in
// front of the backend.
func WithCircuitBreaker(b breaker.Config) Option {
	return func(cfg *config) {
		cfg.breaker = &b
	}
}

// WithRateLimit caps fetch attempts of the session at rps per second with
// the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *config) {
		cfg.rps = rps
		cfg.burst = burst
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		cfg.logger = l
	}
}

// WithRegistry registers the session metrics on r instead of a private
// registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(cfg *config) {
		cfg.registry = r
	}
}

// WithTracerProvider enables fetch spans using tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracer = tp
	}
}

// WithRedis adds a Redis tier shared between processes. c.Scope is required
// and should identify the session's user or tenant.
func WithRedis(c cache.L2Config) Option {
	return func(cfg *config) {
		cfg.redis = &c
	}
}
