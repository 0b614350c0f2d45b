// Package metrics provides Prometheus metrics for the statement pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statement_pipeline"

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Documents counts per-document outcomes of each stage.
	Documents *prometheus.CounterVec
	// ArtifactsWritten counts files written per table.
	ArtifactsWritten *prometheus.CounterVec
	// StageDuration observes whole trigger runs.
	StageDuration *prometheus.HistogramVec
}

// New registers the pipeline metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Documents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_total",
				Help:      "Documents handled per stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		ArtifactsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_written_total",
				Help:      "Files written per table",
			},
			[]string{"table"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time of each trigger run",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"stage"},
		),
	}
}

// Document records one per-document outcome. A nil receiver is a no-op so
// components can run without metrics in tests.
func (m *Metrics) Document(stage string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	m.Documents.WithLabelValues(stage, outcome).Inc()
}

// Artifact records one written file for table.
func (m *Metrics) Artifact(table string) {
	if m == nil {
		return
	}
	m.ArtifactsWritten.WithLabelValues(table).Inc()
}

// Observe records the duration of a stage run started at start.
func (m *Metrics) Observe(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
