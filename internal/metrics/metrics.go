package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records chat server activity and exposes it over HTTP.
type Metrics interface {
	HTTPHandler() http.Handler

	// RecordRoundTrip counts a finished send-message round trip
	RecordRoundTrip(fallback string, persisted bool, d time.Duration)

	// RecordUpstreamFailure counts a failed model or image call
	RecordUpstreamFailure(kind string)

	// AddMigratedChats counts chats moved by a migration, by result
	AddMigratedChats(result string, n int)

	// ObserveHTTPRequest records one served API request
	ObserveHTTPRequest(route string, status int, d time.Duration)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (m *NoopMetrics) RecordRoundTrip(string, bool, time.Duration)   {}
func (m *NoopMetrics) RecordUpstreamFailure(string)                  {}
func (m *NoopMetrics) AddMigratedChats(string, int)                  {}
func (m *NoopMetrics) ObserveHTTPRequest(string, int, time.Duration) {}

// PrometheusMetrics holds the Prometheus collectors on a private registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	RoundTripsTotal   *prometheus.CounterVec
	RoundTripDuration *prometheus.HistogramVec
	UpstreamFailures  *prometheus.CounterVec
	MigratedChats     *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &PrometheusMetrics{registry: reg}

	m.RoundTripsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyris_round_trips_total",
			Help: "Total number of send-message round trips",
		},
		[]string{"fallback", "persisted"},
	)

	m.RoundTripDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyris_round_trip_duration_seconds",
			Help:    "Duration of send-message round trips in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"fallback"},
	)

	m.UpstreamFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyris_upstream_failures_total",
			Help: "Total number of failed model or image calls",
		},
		[]string{"kind"},
	)

	m.MigratedChats = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyris_migrated_chats_total",
			Help: "Total number of chats processed by guest migration",
		},
		[]string{"result"},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cyris_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "status"},
	)

	m.HTTPDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cyris_http_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	return m
}

func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) RecordRoundTrip(fallback string, persisted bool, d time.Duration) {
	m.RoundTripsTotal.WithLabelValues(fallback, strconv.FormatBool(persisted)).Inc()
	m.RoundTripDuration.WithLabelValues(fallback).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordUpstreamFailure(kind string) {
	m.UpstreamFailures.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) AddMigratedChats(result string, n int) {
	if n <= 0 {
		return
	}
	m.MigratedChats.WithLabelValues(result).Add(float64(n))
}

func (m *PrometheusMetrics) ObserveHTTPRequest(route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
