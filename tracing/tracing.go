// Package tracing wraps list fetches in OpenTelemetry spans. It is entirely
// optional: with a nil [Config] every helper is a no-op.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/Keksclan/goRawrPager/tracing"

// Config holds the OpenTelemetry configuration used for fetch spans.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators injects trace context into outgoing request carriers.
	// When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

func (c *Config) tracer() trace.Tracer {
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentation)
}

func (c *Config) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// Inject writes the span context carried by ctx into carrier so a fetch
// function can forward it on its outgoing request. No-op when cfg is nil.
func Inject(ctx context.Context, cfg *Config, carrier propagation.TextMapCarrier) {
	if cfg == nil {
		return
	}
	cfg.propagators().Inject(ctx, carrier)
}

// Fetch describes the list request a span covers.
type Fetch struct {
	Namespace string
	Key       string
	Page      int
	PageSize  int
	Seq       uint64
}

// StartFetch starts a client span for one list fetch. If cfg is nil the
// returned span is a non-recording no-op and ctx is returned unchanged.
func StartFetch(ctx context.Context, cfg *Config, f Fetch) (context.Context, trace.Span) {
	if cfg == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := cfg.tracer().Start(ctx, "pager.fetch "+f.Namespace, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("pager.namespace", f.Namespace),
		attribute.String("pager.cache_key", f.Key),
		attribute.Int("pager.page", f.Page),
		attribute.Int("pager.page_size", f.PageSize),
		attribute.Int64("pager.request_seq", int64(f.Seq)),
	)
	return ctx, span
}

// RecordAttempt adds a failed-attempt event to the span carried by ctx.
func RecordAttempt(ctx context.Context, attempt int, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("attempt.failed", trace.WithAttributes(
		attribute.Int("retry.attempt", attempt),
		attribute.String("retry.error", err.Error()),
	))
}

// End records the outcome and ends span. stale marks a result that was
// discarded because a newer request superseded it.
func End(span trace.Span, err error, stale bool) {
	span.SetAttributes(attribute.Bool("pager.stale", stale))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
