package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(webhookDeliveriesTotal, webhookDeliveryDuration, webhookFanoutTotal)
}

var (
	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts by event and resulting row status.",
		},
		[]string{"event", "status"}, // 'success', 'retrying', 'failed'
	)

	webhookDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Outbound webhook POST latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	webhookFanoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_fanout_tasks_total",
			Help: "Delivery tasks enqueued by event fan-out.",
		},
		[]string{"event"},
	)
)

func ObserveWebhookDelivery(event, status string, d time.Duration) {
	webhookDeliveriesTotal.WithLabelValues(norm(event), norm(status)).Inc()
	webhookDeliveryDuration.WithLabelValues(norm(status)).Observe(d.Seconds())
}

func AddWebhookFanout(event string, n int) {
	webhookFanoutTotal.WithLabelValues(norm(event)).Add(float64(n))
}
