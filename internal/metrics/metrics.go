// Package metrics provides Prometheus metrics for ingestion runs and the
// query API. A disabled or nil *Metrics accepts every call and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "price_tracker"

// Run outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeEmpty        = "empty"
	OutcomeNetworkError = "network_error"
	OutcomeParseError   = "parse_error"
	OutcomeStorageError = "storage_error"
	OutcomeCanceled     = "canceled"
)

type Config struct {
	Enabled bool `yaml:"enabled"`
}

type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	ItemsSaved    prometheus.Counter
	ItemsSkipped  prometheus.Counter
	RunDuration   prometheus.Histogram
	LastSuccess   prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	registry *prometheus.Registry
	enabled  bool
}

func New(cfg Config) *Metrics {
	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}
	if !cfg.Enabled {
		return m
	}

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_total",
			Help:      "Ingestion runs by outcome",
		},
		[]string{"outcome"},
	)
	m.ItemsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestion_items_saved_total",
		Help:      "Listing items persisted as price observations",
	})
	m.ItemsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestion_items_skipped_total",
		Help:      "Listing items skipped because they could not be parsed",
	})
	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingestion_run_duration_seconds",
		Help:      "Wall time of an ingestion run",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	m.LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingestion_last_success_timestamp_seconds",
		Help:      "Unix time of the last run that saved at least one item",
	})
	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPDurations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.registry.MustRegister(
		m.RunsTotal,
		m.ItemsSaved,
		m.ItemsSkipped,
		m.RunDuration,
		m.LastSuccess,
		m.HTTPRequests,
		m.HTTPDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

// ObserveRun records one finished ingestion run.
func (m *Metrics) ObserveRun(outcome string, saved, skipped int, d time.Duration) {
	if !m.Enabled() {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.ItemsSaved.Add(float64(saved))
	m.ItemsSkipped.Add(float64(skipped))
	m.RunDuration.Observe(d.Seconds())
	if saved > 0 {
		m.LastSuccess.SetToCurrentTime()
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if !m.Enabled() {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDurations.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
