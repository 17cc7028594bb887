// Package metrics exposes Prometheus instrumentation for the calculator.
//
// Every method is safe on a nil *Collector, so components can be built
// without metrics in tests and tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "acacalc"

// Collector holds all metric vectors registered against one registry.
type Collector struct {
	registry *prometheus.Registry

	CacheLookups        *prometheus.CounterVec
	CacheBackendErrors  *prometheus.CounterVec
	EngineCalls         *prometheus.CounterVec
	EngineCallDuration  *prometheus.HistogramVec
	DegradedReforms     *prometheus.CounterVec
	NarrativeCalls      *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the calculator metrics on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by kind, tier and result",
		}, []string{"kind", "tier", "result"}),
		CacheBackendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_backend_errors_total",
			Help:      "Swallowed persistent cache errors by operation",
		}, []string{"op"}),
		EngineCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_calls_total",
			Help:      "Computation engine invocations by scenario and status",
		}, []string{"scenario", "status"}),
		EngineCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_call_duration_seconds",
			Help:      "Computation engine call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"scenario"}),
		DegradedReforms: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_reforms_total",
			Help:      "Selected reforms replaced by zeros after an engine failure",
		}, []string{"reform"}),
		NarrativeCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_calls_total",
			Help:      "Narrative provider calls by provider and status",
		}, []string{"provider", "status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by path and status",
		}, []string{"path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// CacheLookup counts one tier lookup; result is "hit", "miss" or "expired".
func (c *Collector) CacheLookup(kind, tier, result string) {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues(kind, tier, result).Inc()
}

// CacheBackendError counts a swallowed persistent-tier failure.
func (c *Collector) CacheBackendError(op string) {
	if c == nil {
		return
	}
	c.CacheBackendErrors.WithLabelValues(op).Inc()
}

// EngineCall records one engine invocation.
func (c *Collector) EngineCall(scenario string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.EngineCalls.WithLabelValues(scenario, status(err)).Inc()
	c.EngineCallDuration.WithLabelValues(scenario).Observe(d.Seconds())
}

// DegradedReform counts a reform zeroed after a failure.
func (c *Collector) DegradedReform(reform string) {
	if c == nil {
		return
	}
	c.DegradedReforms.WithLabelValues(reform).Inc()
}

// NarrativeCall records one narrative provider attempt.
func (c *Collector) NarrativeCall(provider string, err error) {
	if c == nil {
		return
	}
	c.NarrativeCalls.WithLabelValues(provider, status(err)).Inc()
}

// HTTPRequest records a served HTTP request.
func (c *Collector) HTTPRequest(path string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(path, http.StatusText(code)).Inc()
	c.HTTPRequestDuration.WithLabelValues(path).Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
