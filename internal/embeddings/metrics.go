package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/journalgpt/internal/embeddings"

// metrics holds the embedding instruments. Creation errors leave an
// instrument nil and it is skipped.
type metrics struct {
	duration  metric.Float64Histogram
	errors    metric.Int64Counter
	cacheHits metric.Int64Counter
	cacheMiss metric.Int64Counter
}

func newMetrics(meter metric.Meter) *metrics {
	m := &metrics{}
	m.duration, _ = meter.Float64Histogram(
		"journalgpt.embedding.duration",
		metric.WithDescription("Duration of embedding calls by provider and model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	m.errors, _ = meter.Int64Counter(
		"journalgpt.embedding.errors",
		metric.WithDescription("Failed embedding calls by provider and model"),
		metric.WithUnit("{error}"),
	)
	m.cacheHits, _ = meter.Int64Counter(
		"journalgpt.embedding.cache.hits",
		metric.WithDescription("Embeddings served from the LRU cache"),
	)
	m.cacheMiss, _ = meter.Int64Counter(
		"journalgpt.embedding.cache.misses",
		metric.WithDescription("Embeddings computed by the provider"),
	)
	return m
}

// instrumented records a span, a duration and errors around each call.
type instrumented struct {
	Provider
	attrs   []attribute.KeyValue
	tracer  trace.Tracer
	metrics *metrics
}

func newInstrumented(p Provider, provider, model string) *instrumented {
	return &instrumented{
		Provider: p,
		attrs: []attribute.KeyValue{
			attribute.String("provider", provider),
			attribute.String("model", model),
		},
		tracer:  otel.Tracer(instrumentationName),
		metrics: newMetrics(otel.Meter(instrumentationName)),
	}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := i.tracer.Start(ctx, "embeddings.Embed", trace.WithAttributes(i.attrs...))
	defer span.End()

	start := time.Now()
	vec, err := i.Provider.Embed(ctx, text)

	opt := metric.WithAttributes(i.attrs...)
	if i.metrics.duration != nil {
		i.metrics.duration.Record(ctx, time.Since(start).Seconds(), opt)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if i.metrics.errors != nil {
			i.metrics.errors.Add(ctx, 1, opt)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("dimension", len(vec)))
	return vec, nil
}
