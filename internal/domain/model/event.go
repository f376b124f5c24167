package model

// Gateway event types handled by the reconciliation engine.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventChargeRefunded           = "charge.refunded"
	EventChargeDisputeCreated     = "charge.dispute.created"
)

// Checkout session payment states.
const (
	SessionPaid   = "paid"
	SessionUnpaid = "unpaid"
)

// GatewayEvent is a verified webhook delivery, flattened to the fields
// the reconciliation rules read. Unused fields stay empty.
type GatewayEvent struct {
	ID     string
	Type   string
	Object EventObject

	// Undecodable is set when the envelope verified but its object did not parse.
	Undecodable bool
}

type EventObject struct {
	ID              string // id of the object the event describes
	CheckoutSession string
	PaymentIntent   string
	PaymentStatus   string // checkout sessions: paid | unpaid | no_payment_required
	CustomerEmail   string
	PaymentMethod   string
	FailureCode     string
	FailureMessage  string
	AmountRefunded  int64
	RefundIDs       []string
	DisputeReason   string
	Metadata        map[string]string
}
