// Package metrics holds the Prometheus instruments of the service. Every
// method is nil-safe so components can run without metrics in tests and in
// the CLI.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the instruments registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal        *prometheus.CounterVec
	parseDuration      prometheus.Histogram
	fetchTotal         *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	timersPending      prometheus.Gauge
	httpDuration       *prometheus.HistogramVec
}

// New creates and registers all instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ingestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prosvitlo_ingest_total",
			Help: "Ingestion attempts by source kind and outcome",
		}, []string{"source", "outcome"}),
		parseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "prosvitlo_parse_duration_seconds",
			Help:    "Time spent decoding and classifying schedule images",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		fetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prosvitlo_fetch_total",
			Help: "Source fetches by result",
		}, []string{"result"}),
		notificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prosvitlo_notifications_total",
			Help: "Notification events by kind and result",
		}, []string{"kind", "result"}),
		timersPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "prosvitlo_timers_pending",
			Help: "Armed notification timers",
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prosvitlo_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Ingest(source, outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveParse(d time.Duration) {
	if m == nil {
		return
	}
	m.parseDuration.Observe(d.Seconds())
}

func (m *Metrics) Fetch(result string) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetPendingTimers(n int) {
	if m == nil {
		return
	}
	m.timersPending.Set(float64(n))
}

func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, http.StatusText(status)).Observe(d.Seconds())
}
