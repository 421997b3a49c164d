// Package metrics exposes Prometheus metrics for analyses, catalog loads
// and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector on a private prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	AnalysesTotal      *prometheus.CounterVec
	AnalysisDuration   *prometheus.HistogramVec
	AnalysesInFlight   prometheus.Gauge
	ObservationsTotal  *prometheus.CounterVec
	CatalogLoadsTotal  *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

// NewRegistry creates a Registry with Go and process collectors attached.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r := &Registry{registry: reg}
	f := promauto.With(reg)

	r.AnalysesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secgame_analyses_total",
			Help: "Finished analyses by sampling mode, decision rule and status",
		},
		[]string{"mode", "rule", "status"},
	)
	r.AnalysisDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "secgame_analysis_duration_seconds",
			Help:    "Wall time of an analysis from catalog load to evaluation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"mode"},
	)
	r.AnalysesInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "secgame_analyses_in_flight",
			Help: "Analyses currently sampling",
		},
	)
	r.ObservationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secgame_observations_total",
			Help: "Payoff cells sampled",
		},
		[]string{"mode"},
	)
	r.CatalogLoadsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secgame_catalog_loads_total",
			Help: "ATT&CK catalog loads by domain and origin (cache, http, file, error)",
		},
		[]string{"domain", "origin"},
	)
	r.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secgame_http_requests_total",
			Help: "HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)
	r.HTTPRequestLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "secgame_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// AnalysisStarted marks one more analysis in flight.
func (r *Registry) AnalysisStarted() { r.AnalysesInFlight.Inc() }

// RecordAnalysis records a finished analysis of any status.
func (r *Registry) RecordAnalysis(mode, rule, status string, observations int, duration time.Duration) {
	r.AnalysesInFlight.Dec()
	r.AnalysesTotal.WithLabelValues(mode, rule, status).Inc()
	r.AnalysisDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if observations > 0 {
		r.ObservationsTotal.WithLabelValues(mode).Add(float64(observations))
	}
}

// RecordCatalogLoad records where a catalog came from.
func (r *Registry) RecordCatalogLoad(domain, origin string) {
	r.CatalogLoadsTotal.WithLabelValues(domain, origin).Inc()
}

// RecordHTTPRequest records one served request.
func (r *Registry) RecordHTTPRequest(method, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, status).Inc()
	r.HTTPRequestLatency.WithLabelValues(method).Observe(duration.Seconds())
}
