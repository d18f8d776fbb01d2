package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics holds the request metrics exposed at /metrics.
type PromMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPromMetrics creates a registry for request metrics. Each Server gets its
// own registry; the default registry (Go runtime, process and vector index
// metrics) is served alongside it.
func NewPromMetrics() *PromMetrics {
	p := &PromMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "journalgpt",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, endpoint and status",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "journalgpt",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "endpoint"},
		),
	}
	p.registry.MustRegister(p.requests, p.duration)
	return p
}

func (p *PromMetrics) observe(method, endpoint string, status int, d time.Duration) {
	p.requests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	p.duration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// Handler serves both registries in the Prometheus text format.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{p.registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	)
}
