// Package metrics exposes Prometheus collectors for the HTTP API and the analysis pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analysis outcomes recorded by ObserveAnalysis.
const (
	OutcomeSuccess      = "success"
	OutcomeReplayed     = "replayed"
	OutcomeNoCredits    = "no_credits"
	OutcomeInvalid      = "invalid"
	OutcomeUnauthorized = "unauthorized"
	OutcomeNotFound     = "not_found"
	OutcomeRateLimited  = "rate_limited"
	OutcomeFailed       = "failed"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	analyses        *prometheus.CounterVec
	creditsConsumed prometheus.Counter
	creditsAdded    prometheus.Counter
	uploads         *prometheus.CounterVec
	geocodes        *prometheus.CounterVec
}

// New registers all collectors under prefix.
func New(prefix string) *Metrics {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "estateiq"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "analyses_total",
			Help:      "Analysis requests by outcome",
		}, []string{"outcome"}),
		creditsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "credits_consumed_total",
			Help:      "Credits spent on successful analyses",
		}),
		creditsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "credits_added_total",
			Help:      "Credits added by top-ups",
		}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "uploads_total",
			Help:      "Stored uploads by MIME type",
		}, []string{"type"}),
		geocodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: prefix,
			Name:      "geocode_lookups_total",
			Help:      "Address geocoding lookups by result",
		}, []string{"result"}),
	}
}

// Middleware records request counts and latencies keyed by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAnalysis counts one analysis request; a success also counts the spent credit.
func (m *Metrics) ObserveAnalysis(outcome string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.creditsConsumed.Inc()
	}
}

// ObserveTopUp counts credits added by a top-up.
func (m *Metrics) ObserveTopUp(amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsAdded.Add(float64(amount))
}

// ObserveUpload counts a stored upload.
func (m *Metrics) ObserveUpload(mimeType string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(mimeType).Inc()
}

// ObserveGeocode counts a geocoding lookup result: "ok", "miss" or "disabled".
func (m *Metrics) ObserveGeocode(result string) {
	if m == nil {
		return
	}
	m.geocodes.WithLabelValues(result).Inc()
}
