// Package metrics exposes Prometheus instruments for document numbering.
//
// Safe for concurrent use. A nil *Numbering is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	MetricAllocationsTotal        = "kabala_sequence_allocations_total"
	MetricInitializationsTotal    = "kabala_sequence_initializations_total"
	MetricFinalizeTotal           = "kabala_document_finalize_total"
	MetricFinalizeDurationSeconds = "kabala_document_finalize_duration_seconds"
	MetricSequenceGapsTotal       = "kabala_sequence_gaps_total"
	MetricHTTPRequestsTotal       = "kabala_http_requests_total"
)

// Finalize outcomes.
const (
	ResultSuccess      = "success"
	ResultRejected     = "rejected"
	ResultInconsistent = "inconsistent"
	ResultError        = "error"
)

// Numbering holds the service's collectors in a dedicated registry.
type Numbering struct {
	registry *prometheus.Registry

	allocations      *prometheus.CounterVec
	initializations  *prometheus.CounterVec
	finalize         *prometheus.CounterVec
	finalizeDuration prometheus.Histogram
	gaps             *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New creates the collectors and registers them together with Go runtime collectors.
func New() *Numbering {
	m := &Numbering{
		registry: prometheus.NewRegistry(),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAllocationsTotal,
			Help: "Sequence allocations by document type and outcome.",
		}, []string{"document_type", "result"}),
		initializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricInitializationsTotal,
			Help: "Sequence initialization attempts by outcome.",
		}, []string{"document_type", "result"}),
		finalize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFinalizeTotal,
			Help: "Document finalization attempts by outcome.",
		}, []string{"document_type", "result"}),
		finalizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFinalizeDurationSeconds,
			Help:    "Latency of document finalization.",
			Buckets: prometheus.DefBuckets,
		}),
		gaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSequenceGapsTotal,
			Help: "Numbers allocated but never committed to a document.",
		}, []string{"document_type", "reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests by route and status class.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.allocations,
		m.initializations,
		m.finalize,
		m.finalizeDuration,
		m.gaps,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Numbering) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Numbering) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Numbering) ObserveAllocation(docType, result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(docType, result).Inc()
}

func (m *Numbering) ObserveInitialization(docType, result string) {
	if m == nil {
		return
	}
	m.initializations.WithLabelValues(docType, result).Inc()
}

func (m *Numbering) ObserveFinalize(docType, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.finalize.WithLabelValues(docType, result).Inc()
	m.finalizeDuration.Observe(took.Seconds())
}

// ObserveGap counts a burned number.
func (m *Numbering) ObserveGap(docType, reason string) {
	if m == nil {
		return
	}
	m.gaps.WithLabelValues(docType, reason).Inc()
}

func (m *Numbering) ObserveHTTP(method, route, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}
