package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayCallsTotal,
		gatewayLatency,
	)
}

var (
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Outbound payment gateway calls by operation and success.",
		},
		[]string{"gateway", "op", "success"},
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Payment gateway call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"gateway", "op"},
	)
)

// ObserveGatewayCall records one outbound call started at start.
func ObserveGatewayCall(gateway, op string, start time.Time, err error) {
	gatewayCallsTotal.WithLabelValues(norm(gateway), norm(op), strconv.FormatBool(err == nil)).Inc()
	gatewayLatency.WithLabelValues(norm(gateway), norm(op)).Observe(time.Since(start).Seconds())
}
