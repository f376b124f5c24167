package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminActionTotal) }

var adminActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_action_total",
		Help: "Admin status overrides and refund decisions.",
	},
	[]string{"action", "result"}, // result: ok|rejected|error
)

func IncAdminAction(action, result string) {
	adminActionTotal.WithLabelValues(norm(action), norm(result)).Inc()
}
