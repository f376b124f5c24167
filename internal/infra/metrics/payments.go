package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentTransitionsTotal,
		paymentsRevenueTotal,
		checkoutsTotal,
	)
}

var (
	paymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Applied payment status transitions by source.",
		},
		[]string{"from", "to", "source"}, // source: webhook|admin|refund
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Minor currency units collected by succeeded payments.",
		},
		[]string{"currency"},
	)

	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout sessions created, by result.",
		},
		[]string{"result"},
	)
)

func IncPaymentTransition(from, to, source string) {
	paymentTransitionsTotal.WithLabelValues(norm(from), norm(to), norm(source)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncCheckout(result string) {
	checkoutsTotal.WithLabelValues(norm(result)).Inc()
}
