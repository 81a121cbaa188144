package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HookRequests *prometheus.CounterVec
	HookDuration prometheus.Histogram
	RowsWritten  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txsync",
			Name:      "hook_requests_total",
			Help:      "Webhook notifications by outcome.",
		}, []string{"outcome"}),
		HookDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txsync",
			Name:      "hook_duration_seconds",
			Help:      "Time spent handling a webhook notification.",
			Buckets:   prometheus.DefBuckets,
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txsync",
			Name:      "rows_written_total",
			Help:      "Translation rows written by table and operation.",
		}, []string{"table", "op"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HookRequests,
		m.HookDuration,
		m.RowsWritten,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
