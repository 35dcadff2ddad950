package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus instruments. A dedicated registry
// keeps test servers from colliding on duplicate registration.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RunningSchedules prometheus.Gauge
	MutationsTotal   *prometheus.CounterVec
	RateLimited      prometheus.Counter
	ViewsTotal       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cronlens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cronlens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RunningSchedules: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cronlens",
			Name:      "running_schedules",
			Help:      "Number of schedules currently inside a slot.",
		}),
		MutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cronlens",
			Name:      "schedule_mutations_total",
			Help:      "Schedule mutations by action.",
		}, []string{"action"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cronlens",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		ViewsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cronlens",
			Name:      "view_evaluations_total",
			Help:      "Month and day view evaluations by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}
