// Package metrics defines the Prometheus collectors for the generation
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing, so tests can pass nil.
type Metrics struct {
	JobsClaimedTotal   *prometheus.CounterVec
	JobsFinishedTotal  *prometheus.CounterVec
	ChunkDuration      *prometheus.HistogramVec
	ChunkFailuresTotal *prometheus.CounterVec
	VersionWritesTotal *prometheus.CounterVec
}

// New creates and registers all collectors on the default registerer.
func New() *Metrics {
	m := &Metrics{
		JobsClaimedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_jobs_claimed_total",
				Help: "Generation jobs claimed by the worker, by job type.",
			},
			[]string{"job_type"},
		),
		JobsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_jobs_finished_total",
				Help: "Generation jobs reaching a terminal state, by job type and status.",
			},
			[]string{"job_type", "status"},
		),
		ChunkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_chunk_duration_seconds",
				Help:    "Latency of individual chunk-generation calls.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"job_type"},
		),
		ChunkFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_chunk_failures_total",
				Help: "Chunk-generation calls that failed, by job type.",
			},
			[]string{"job_type"},
		),
		VersionWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_version_writes_total",
				Help: "Outcomes of content version persistence (written, skipped_identical, error).",
			},
			[]string{"result"},
		),
	}
	prometheus.MustRegister(
		m.JobsClaimedTotal,
		m.JobsFinishedTotal,
		m.ChunkDuration,
		m.ChunkFailuresTotal,
		m.VersionWritesTotal,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler { return promhttp.Handler() }

func (m *Metrics) JobClaimed(jobType string) {
	if m == nil {
		return
	}
	m.JobsClaimedTotal.WithLabelValues(jobType).Inc()
}

func (m *Metrics) JobFinished(jobType, status string) {
	if m == nil {
		return
	}
	m.JobsFinishedTotal.WithLabelValues(jobType, status).Inc()
}

func (m *Metrics) ObserveChunk(jobType string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.ChunkDuration.WithLabelValues(jobType).Observe(d.Seconds())
	if failed {
		m.ChunkFailuresTotal.WithLabelValues(jobType).Inc()
	}
}

func (m *Metrics) VersionWrite(result string) {
	if m == nil {
		return
	}
	m.VersionWritesTotal.WithLabelValues(result).Inc()
}
