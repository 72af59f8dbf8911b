package gorawrpager

import (
	"github.com/Keksclan/goRawrPager/breaker"
	"github.com/Keksclan/goRawrPager/cache"
	"github.com/Keksclan/goRawrPager/retry"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	cache    cache.Config
	retry    *retry.Config
	breaker  *breaker.Config
	rps      float64
	burst    int
	logger   *zap.Logger
	registry *prometheus.Registry
	tracer   trace.TracerProvider
	redis    *cache.L2Config
}
