package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(usageRecordErrorsTotal) }

// usage recording is best-effort; this is the only trace of a dropped increment
var usageRecordErrorsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "usage_record_errors_total",
		Help: "Usage increments that failed and were swallowed.",
	},
)

func IncUsageRecordError() {
	usageRecordErrorsTotal.Inc()
}
