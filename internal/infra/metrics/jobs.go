package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(aiJobsEnqueuedTotal, aiJobsProcessedTotal, aiJobAttemptsTotal, aiJobDurationMs, aiJobsReconciledTotal)
}

var (
	aiJobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_enqueued_total",
			Help: "AI jobs accepted onto the queue, by type.",
		},
		[]string{"type"},
	)

	aiJobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_processed_total",
			Help: "Total number of AI jobs that reached a terminal state.",
		},
		[]string{"type", "status"}, // 'completed', 'failed'
	)

	aiJobAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_job_attempts_total",
			Help: "Handler attempts by outcome.",
		},
		[]string{"type", "outcome"}, // 'success', 'retry', 'exhausted', 'infra'
	)

	aiJobsReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_reconciled_total",
			Help: "Unfinished job rows checked against the queue, by outcome.",
		},
		[]string{"outcome"}, // 'synced', 'live', 'orphaned', 'error'
	)

	aiJobDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_job_duration_ms",
			Help:    "Handler attempt duration in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		},
		[]string{"type", "success"},
	)
)

func IncAIJobEnqueued(jobType string) {
	aiJobsEnqueuedTotal.WithLabelValues(norm(jobType)).Inc()
}

func IncAIJob(jobType, status string) {
	aiJobsProcessedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func IncAIJobAttempt(jobType, outcome string) {
	aiJobAttemptsTotal.WithLabelValues(norm(jobType), norm(outcome)).Inc()
}

func ObserveAIJobDuration(jobType string, ms int64, success bool) {
	aiJobDurationMs.WithLabelValues(norm(jobType), strconv.FormatBool(success)).Observe(float64(ms))
}

func IncAIJobReconciled(outcome string) {
	aiJobsReconciledTotal.WithLabelValues(norm(outcome)).Inc()
}
