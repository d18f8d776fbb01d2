package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/fyrsmithlabs/journalgpt/internal/http"

// requestMetrics counts journal API calls in OTel and, for scraping, in a
// Prometheus registry. A nil instrument is skipped.
type requestMetrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
	prom     *PromMetrics
}

func newRequestMetrics(ctx context.Context, meter metric.Meter, logger *logging.Logger, prom *PromMetrics) *requestMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &requestMetrics{prom: prom}

	var err error
	if m.calls, err = meter.Int64Counter("journalgpt.http.requests_total",
		metric.WithDescription("Journal API requests by method, route and status"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn(ctx, "request counter unavailable", zap.Error(err))
	}
	if m.latency, err = meter.Float64Histogram("journalgpt.http.request_duration_seconds",
		metric.WithDescription("Journal API latency; ask and entries include a model call"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	); err != nil {
		logger.Warn(ctx, "latency histogram unavailable", zap.Error(err))
	}
	if m.inFlight, err = meter.Int64UpDownCounter("journalgpt.http.in_flight",
		metric.WithDescription("Journal API requests being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn(ctx, "in-flight gauge unavailable", zap.Error(err))
	}
	return m
}

// middleware records one observation per request. The route template is
// used as the label, so unmatched paths all land on "/".
func (m *requestMetrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if m.inFlight != nil {
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)
		}

		start := time.Now()
		err := next(c)
		elapsed := time.Since(start)

		route := c.Path()
		if route == "" {
			route = "/"
		}
		method := c.Request().Method
		status := c.Response().Status

		attrs := metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("route", route),
			attribute.Int("status", status),
		)
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.latency != nil {
			m.latency.Record(ctx, elapsed.Seconds(), attrs)
		}
		if m.prom != nil {
			m.prom.observe(method, route, status, elapsed)
		}
		return err
	}
}

// handler serves the Prometheus exposition, or 404 without a registry.
func (m *requestMetrics) handler() http.Handler {
	if m.prom == nil {
		return http.NotFoundHandler()
	}
	return m.prom.Handler()
}
