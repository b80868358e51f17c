// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the separation daemon.
// Label cardinality stays bounded: model names and job states only, never
// job or request IDs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts job state transitions.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmfsep_jobs_total",
		Help: "Total number of job state transitions, by state.",
	}, []string{"state"})

	// JobsRunning tracks the number of jobs currently executing.
	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nmfsep_jobs_running",
		Help: "Number of separation jobs currently running.",
	})

	// SeparationDuration observes end-to-end pipeline duration per model.
	SeparationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nmfsep_separation_duration_seconds",
		Help:    "End-to-end separation pipeline duration, by model.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})

	// IterationsRun observes how many update iterations a run needed.
	IterationsRun = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nmfsep_iterations_run",
		Help:    "Multiplicative update iterations executed per run, by model.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"model"})

	// FinalLoss reports the divergence after the last iteration.
	FinalLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nmfsep_final_loss",
		Help: "Divergence after the final iteration of the most recent run, by model.",
	}, []string{"model"})

	// WatcherEventsTotal counts input watcher activity.
	WatcherEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nmfsep_watcher_events_total",
		Help: "Input directory watcher events, by outcome (submitted/ignored/error).",
	}, []string{"outcome"})

	// ArtifactBytesTotal counts bytes written for stems and reports.
	ArtifactBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nmfsep_artifact_bytes_total",
		Help: "Total bytes written for separation artifacts.",
	})
)

// Recorder adapts the package-level metrics to the pipeline's
// MetricsRecorder interface.
type Recorder struct{}

func (Recorder) RecordSeparation(model string, duration time.Duration, iterations int, finalLoss float64) {
	SeparationDuration.WithLabelValues(model).Observe(duration.Seconds())
	IterationsRun.WithLabelValues(model).Observe(float64(iterations))
	FinalLoss.WithLabelValues(model).Set(finalLoss)
}

func (Recorder) RecordArtifactBytes(n int) {
	ArtifactBytesTotal.Add(float64(n))
}

// RecordJobState increments the transition counter for a job state.
func RecordJobState(state string) {
	JobsTotal.WithLabelValues(state).Inc()
}
