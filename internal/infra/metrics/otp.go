package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(otpTotal) }

var otpTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "otp_total",
		Help: "One-time code requests and verifications by result.",
	},
	[]string{"op", "result"}, // op: request|verify
)

func IncOTP(op, result string) {
	otpTotal.WithLabelValues(norm(op), norm(result)).Inc()
}
