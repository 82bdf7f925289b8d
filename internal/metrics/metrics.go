// Package metrics exposes ingestion and report counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tracecollapse"

// Metrics holds the collectors registered on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tracesIngested prometheus.Counter
	tracesSkipped  *prometheus.CounterVec
	spansFiled     prometheus.Counter
	nodes          prometheus.Gauge
	reportFailures prometheus.Gauge
	reportDuration prometheus.Histogram
	lastReport     prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tracesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_ingested_total",
			Help:      "Traces filed into the aggregation tree.",
		}),
		tracesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_skipped_total",
			Help:      "Traces rejected during ingestion, by reason.",
		}, []string{"reason"}),
		spansFiled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_filed_total",
			Help:      "Spans filed under an aggregated node.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregated_nodes",
			Help:      "Distinct call-path nodes in the last report.",
		}),
		reportFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_node_failures",
			Help:      "Nodes whose statistics failed in the last report.",
		}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_build_seconds",
			Help:      "Time spent loading, ingesting and summarizing traces.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		lastReport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_report_timestamp_seconds",
			Help:      "Unix time of the last completed report.",
		}),
	}

	m.registry.MustRegister(
		m.tracesIngested,
		m.tracesSkipped,
		m.spansFiled,
		m.nodes,
		m.reportFailures,
		m.reportDuration,
		m.lastReport,
		collectors.NewGoCollector(),
	)

	return m
}

// TraceIngested records one trace and its span count.
func (m *Metrics) TraceIngested(spans int) {
	if m == nil {
		return
	}
	m.tracesIngested.Inc()
	m.spansFiled.Add(float64(spans))
}

// TraceSkipped records a rejected trace.
func (m *Metrics) TraceSkipped(reason string) {
	if m == nil {
		return
	}
	m.tracesSkipped.WithLabelValues(reason).Inc()
}

// ReportBuilt records the shape and cost of a finished report.
func (m *Metrics) ReportBuilt(nodes, failures int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(nodes))
	m.reportFailures.Set(float64(failures))
	m.reportDuration.Observe(elapsed.Seconds())
	m.lastReport.SetToCurrentTime()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
