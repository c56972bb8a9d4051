package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(queueDepth, queueTasksTotal, queueStaleRequeuedTotal)
}

var (
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Tasks per lane and state, sampled by the maintenance loop.",
		},
		[]string{"lane", "state"},
	)

	queueTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_total",
			Help: "Task outcomes reported by lane workers.",
		},
		[]string{"lane", "outcome"}, // 'completed', 'retried', 'failed', 'lease_lost'
	)

	queueStaleRequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_stale_requeued_total",
			Help: "Active tasks whose lease expired and were returned to waiting.",
		},
		[]string{"lane"},
	)
)

func SetQueueDepth(lane string, waiting, active, delayed, completed, failed int64) {
	l := norm(lane)
	queueDepth.WithLabelValues(l, "waiting").Set(float64(waiting))
	queueDepth.WithLabelValues(l, "active").Set(float64(active))
	queueDepth.WithLabelValues(l, "delayed").Set(float64(delayed))
	queueDepth.WithLabelValues(l, "completed").Set(float64(completed))
	queueDepth.WithLabelValues(l, "failed").Set(float64(failed))
}

func IncQueueTask(lane, outcome string) {
	queueTasksTotal.WithLabelValues(norm(lane), norm(outcome)).Inc()
}

func AddStaleRequeued(lane string, n int) {
	if n > 0 {
		queueStaleRequeuedTotal.WithLabelValues(norm(lane)).Add(float64(n))
	}
}
