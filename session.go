package gorawrpager

import (
	"context"
	"net/http"

	"github.com/Keksclan/goRawrPager/breaker"
	"github.com/Keksclan/goRawrPager/cache"
	"github.com/Keksclan/goRawrPager/metrics"
	"github.com/Keksclan/goRawrPager/pager"
	"github.com/Keksclan/goRawrPager/ratelimit"
	"github.com/Keksclan/goRawrPager/retry"
	"github.com/Keksclan/goRawrPager/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Session owns the state shared by every list of one signed-in user: the
// page cache, the retry policy with its breaker and rate limiter, and the
// ambient logger, metrics and tracer. Create one per user or tenant and
// hand it to NewPager.
//
//	sess, err := gorawrpager.NewSession(
//		gorawrpager.WithLogger(log),
//		gorawrpager.WithCircuitBreaker(breaker.DefaultConfig()),
//		gorawrpager.WithRedis(cache.L2Config{Addr: "localhost:6379", Scope: userID}),
//	)
type Session struct {
	store    *cache.Store
	l2       *cache.L2
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	tracing  *tracing.Config
	retry    retry.Config
}

// NewSession creates a Session from the supplied options. Unset options
// fall back to the values of DefaultOptions.
func NewSession(opts ...Option) (*Session, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	log := cfg.logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := cfg.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	col, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	store, err := cache.New(cfg.cache, cache.WithObserver(col))
	if err != nil {
		return nil, err
	}

	rc := retry.APIConfig()
	if cfg.retry != nil {
		rc = *cfg.retry
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if cfg.breaker != nil {
		rc.Breaker = breaker.New(*cfg.breaker)
	}
	if cfg.rps > 0 {
		rc.Limiter = ratelimit.NewLimiter(cfg.rps, max(cfg.burst, 1))
	}
	if rc.Logger == nil {
		rc.Logger = log
	}

	s := &Session{
		store:    store,
		log:      log,
		registry: reg,
		metrics:  col,
		retry:    rc,
	}
	if cfg.tracer != nil {
		s.tracing = &tracing.Config{TracerProvider: cfg.tracer}
	}
	if cfg.redis != nil {
		l2, err := cache.NewL2(*cfg.redis)
		if err != nil {
			return nil, err
		}
		s.l2 = l2
	}
	return s, nil
}

// Cache returns the session page cache.
func (s *Session) Cache() *cache.Store {
	return s.store
}

// L2 returns the Redis tier configured via WithRedis, or nil.
func (s *Session) L2() *cache.L2 {
	return s.l2
}

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger {
	return s.log
}

// RetryConfig returns the session retry policy, including the shared
// breaker and limiter.
func (s *Session) RetryConfig() retry.Config {
	return s.retry
}

// InvalidateNamespace drops every cached page of one list, locally and in
// the Redis tier. Call it after a mutation that changes the list.
func (s *Session) InvalidateNamespace(ctx context.Context, namespace string) int {
	n := s.store.InvalidatePrefix(pager.Prefix(namespace))
	if s.l2 != nil {
		s.l2.InvalidatePrefix(ctx, pager.Prefix(namespace))
	}
	return n
}

// Logout drops everything the session cached so the next user starts cold.
// In the Redis tier only the session scope is cleared.
func (s *Session) Logout(ctx context.Context) {
	s.store.Clear()
	if s.l2 != nil {
		n := s.l2.Clear(ctx)
		s.log.Debug("cleared shared tier", zap.Int("keys", n))
	}
	if s.retry.Breaker != nil {
		s.retry.Breaker.Reset()
	}
}

// MetricsHandler returns an http.Handler that serves the session metrics in
// the Prometheus exposition format.
func (s *Session) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Close releases the Redis connection, if any.
func (s *Session) Close() error {
	if s.l2 == nil {
		return nil
	}
	return s.l2.Close()
}

func (s *Session) pagerOptions() []pager.Option {
	opts := []pager.Option{
		pager.WithLogger(s.log),
		pager.WithMetrics(s.metrics),
	}
	if s.tracing != nil {
		opts = append(opts, pager.WithTracing(s.tracing))
	}
	if s.l2 != nil {
		opts = append(opts, pager.WithL2(s.l2))
	}
	return opts
}
