package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminActionTotal) }

var adminActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_action_total",
		Help: "Tracks queue admin operations.",
	},
	[]string{"action", "status"}, // status: 'ok', 'error', 'unauthorized'
)

func IncAdminAction(action, status string) {
	adminActionTotal.WithLabelValues(norm(action), norm(status)).Inc()
}
