package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		paymentLookupTotal,
	)
}

var (
	// outcome: applied|noop|not_found|out_of_order|duplicate|ignored|error|bad_signature
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook deliveries by event type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	paymentLookupTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_lookup_total",
			Help: "Which lookup strategy matched a webhook to a local payment.",
		},
		[]string{"strategy"},
	)
)

func IncWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}

func IncPaymentLookup(strategy string) {
	paymentLookupTotal.WithLabelValues(norm(strategy)).Inc()
}
