package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiJobsAdmittedTotal,
		aiJobsProcessedTotal,
		aiJobDuration,
		aiJobTokensTotal,
		aiJobCostCentsTotal,
	)
}

var (
	aiJobsAdmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_admitted_total",
			Help: "Admission decisions for new AI jobs.",
		},
		[]string{"type", "result"}, // 'accepted', 'quota_exceeded', 'error'
	)

	aiJobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_processed_total",
			Help: "Total number of AI job attempts processed, labeled by type and outcome.",
		},
		[]string{"type", "status"}, // 'succeeded', 'retrying', 'failed', 'skipped'
	)

	aiJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_job_duration_seconds",
			Help:    "Wall time of one AI job attempt.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	aiJobTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_job_tokens_total",
			Help: "Estimated tokens billed by completed AI jobs.",
		},
		[]string{"type"},
	)

	aiJobCostCentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_job_cost_cents_total",
			Help: "Cost in cents billed by completed AI jobs.",
		},
		[]string{"type"},
	)
)

func IncJobAdmission(jobType, result string) {
	aiJobsAdmittedTotal.WithLabelValues(norm(jobType), norm(result)).Inc()
}

func IncAIJob(jobType, status string) {
	aiJobsProcessedTotal.WithLabelValues(norm(jobType), norm(status)).Inc()
}

func ObserveAIJob(jobType string, d time.Duration, tokens, costCents int64) {
	t := norm(jobType)
	aiJobDuration.WithLabelValues(t).Observe(d.Seconds())
	if tokens > 0 {
		aiJobTokensTotal.WithLabelValues(t).Add(float64(tokens))
	}
	if costCents > 0 {
		aiJobCostCentsTotal.WithLabelValues(t).Add(float64(costCents))
	}
}
