// Package metrics exposes Prometheus collectors for cache and fetch activity.
// A Collector doubles as a cache.Observer so a Store can feed it directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/Keksclan/goRawrPager/cache"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rawrpager"

// Outcome labels the result of a list fetch.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeStale    Outcome = "stale" // finished after a newer request was issued
	OutcomeCanceled Outcome = "canceled"
)

// Collector holds the library's metric vectors.
type Collector struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions *prometheus.CounterVec
	retries        *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
}

var _ cache.Observer = (*Collector)(nil)

// New creates a Collector and registers it with reg. A nil reg leaves the
// collectors unregistered, which is handy in tests.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that returned a live entry.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing or an expired entry.",
		}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries removed from the cache, by reason.",
		}, []string{"reason"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Back-off waits started after a transient fetch failure.",
		}, []string{"namespace", "attempt"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "List fetches issued to the backend, by outcome.",
		}, []string{"namespace", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Wall time of list fetches including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{
		c.cacheHits, c.cacheMisses, c.cacheEvictions, c.retries, c.fetches, c.fetchDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Hit implements cache.Observer.
func (c *Collector) Hit() { c.cacheHits.Inc() }

// Miss implements cache.Observer.
func (c *Collector) Miss() { c.cacheMisses.Inc() }

// Evicted implements cache.Observer.
func (c *Collector) Evicted(reason cache.EvictReason, n int) {
	c.cacheEvictions.WithLabelValues(string(reason)).Add(float64(n))
}

// Retry records a back-off wait after the given failed attempt.
func (c *Collector) Retry(ns string, attempt int) {
	c.retries.WithLabelValues(ns, strconv.Itoa(attempt)).Inc()
}

// Fetch records a finished fetch.
func (c *Collector) Fetch(ns string, outcome Outcome, took time.Duration) {
	c.fetches.WithLabelValues(ns, string(outcome)).Inc()
	c.fetchDuration.WithLabelValues(ns).Observe(took.Seconds())
}
