// Package metrics exposes Prometheus metrics for the map service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	featureInfo         *prometheus.CounterVec
	featuresRendered    *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
	sessionsEvicted     prometheus.Counter
}

// New creates a fresh registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "collab",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	featureInfo := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "featureinfo_requests_total",
		Help:      "WMS GetFeatureInfo queries by outcome",
	}, []string{"outcome"})

	featuresRendered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "features_rendered_total",
		Help:      "Features drawn on maps by geometry type",
	}, []string{"geometry"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "collab",
		Name:      "map_sessions_active",
		Help:      "Map sessions currently held",
	})

	sessionsEvicted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collab",
		Name:      "map_sessions_evicted_total",
		Help:      "Map sessions dropped after their TTL",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		featureInfo,
		featuresRendered,
		sessionsActive,
		sessionsEvicted,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		featureInfo:         featureInfo,
		featuresRendered:    featuresRendered,
		sessionsActive:      sessionsActive,
		sessionsEvicted:     sessionsEvicted,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// FeatureInfo outcomes.
const (
	OutcomeFound   = "found"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeStale   = "stale"
	OutcomeSkipped = "skipped"
)

// IncFeatureInfo counts a GetFeatureInfo query by outcome.
func (m *Metrics) IncFeatureInfo(outcome string) {
	if m == nil {
		return
	}
	m.featureInfo.WithLabelValues(outcome).Inc()
}

// AddFeaturesRendered counts drawn features of one geometry type.
func (m *Metrics) AddFeaturesRendered(geometry string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.featuresRendered.WithLabelValues(geometry).Add(float64(n))
}

// SetSessionsActive sets the live session gauge.
func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// IncSessionsEvicted counts an expired session.
func (m *Metrics) IncSessionsEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
