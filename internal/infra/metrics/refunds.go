package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		refundTransitionsTotal,
		refundSweepTotal,
		refundSweepDuration,
	)
}

var (
	refundTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_transitions_total",
			Help: "Refund status changes by target status and confirmation source.",
		},
		[]string{"to", "confirmed_by"},
	)

	refundSweepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_sweep_records_total",
			Help: "Refunds visited by the reconciliation sweep, by outcome.",
		},
		[]string{"outcome"}, // succeeded|failed|unchanged|error
	)

	refundSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refund_sweep_duration_seconds",
			Help:    "Duration of a full reconciliation sweep.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

func IncRefundTransition(to, confirmedBy string) {
	refundTransitionsTotal.WithLabelValues(norm(to), norm(confirmedBy)).Inc()
}

func AddSweepOutcome(outcome string, n int) {
	if n <= 0 {
		return
	}
	refundSweepTotal.WithLabelValues(norm(outcome)).Add(float64(n))
}

func ObserveSweepDuration(seconds float64) {
	refundSweepDuration.Observe(seconds)
}
