package model

import (
	"time"

	"nexus-billing/internal/domain"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"    // checkout session created, awaiting the gateway
	PaymentStatusProcessing PaymentStatus = "processing" // gateway is still collecting funds
	PaymentStatusSucceeded  PaymentStatus = "succeeded"  // confirmed by the gateway
	PaymentStatusFailed     PaymentStatus = "failed"     // declined, unpaid or failed by an admin
	PaymentStatusCanceled   PaymentStatus = "canceled"   // abandoned checkout
	PaymentStatusRefunded   PaymentStatus = "refunded"   // money returned after success
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled},
	PaymentStatusProcessing: {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled},
	// a declined attempt may still be collected later on the same intent
	PaymentStatusFailed:    {PaymentStatusSucceeded},
	PaymentStatusSucceeded: {PaymentStatusRefunded},
}

// PaymentStatuses lists every valid payment status.
func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{
		PaymentStatusPending, PaymentStatusProcessing, PaymentStatusSucceeded,
		PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded,
	}
}

func (s PaymentStatus) Valid() bool {
	for _, v := range PaymentStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether a payment may move from s to next.
// Re-applying the current status is always allowed and is a no-op for callers.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesFor returns the statuses from which next is reachable in one step.
func SourcesFor(next PaymentStatus) []PaymentStatus {
	var out []PaymentStatus
	for from, targets := range paymentTransitions {
		for _, t := range targets {
			if t == next {
				out = append(out, from)
			}
		}
	}
	return out
}

// ManualPaymentTargets are the only statuses an admin may set directly.
// Success can only be confirmed by the gateway.
var ManualPaymentTargets = []PaymentStatus{PaymentStatusFailed, PaymentStatusRefunded}

// ServiceSnapshot freezes the catalog entry at checkout time.
type ServiceSnapshot struct {
	ServiceID  int64  `json:"serviceId"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Consultant string `json:"consultant"`
	Duration   string `json:"duration"`
	Price      string `json:"price"`
}

// Payment is the local record of a checkout attempt.
type Payment struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId"`
	ServiceID         int64             `json:"serviceId"`
	CheckoutSessionID string            `json:"checkoutSessionId"`         // unique per payment
	PaymentIntentID   *string           `json:"paymentIntentId,omitempty"` // assigned once, never cleared
	Amount            int64             `json:"amount"`                    // minor units
	Currency          string            `json:"currency"`
	Status            PaymentStatus     `json:"status"`
	PaymentMethod     string            `json:"paymentMethod,omitempty"`
	Service           ServiceSnapshot   `json:"serviceDetails"`
	CustomerEmail     string            `json:"customerEmail,omitempty"`
	CustomerName      string            `json:"customerName,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`        // our metadata (userId, serviceId, adminNotes)
	GatewayMetadata   map[string]string `json:"gatewayMetadata,omitempty"` // facts reported by the gateway
	RefundedAt        *time.Time        `json:"refundedAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func NewPayment(userID string, svc ServiceSnapshot, sessionID string, amount int64, currency string) (*Payment, error) {
	if userID == "" || sessionID == "" || amount <= 0 || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Payment{
		ID:                uuid.NewString(),
		UserID:            userID,
		ServiceID:         svc.ServiceID,
		CheckoutSessionID: sessionID,
		Amount:            amount,
		Currency:          currency,
		Status:            PaymentStatusPending,
		PaymentMethod:     "card",
		Service:           svc,
		Metadata:          map[string]string{},
		GatewayMetadata:   map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (p *Payment) HasPaymentIntent() bool {
	return p.PaymentIntentID != nil && *p.PaymentIntentID != ""
}

// IntentID returns the payment intent id or "".
func (p *Payment) IntentID() string {
	if p.PaymentIntentID == nil {
		return ""
	}
	return *p.PaymentIntentID
}

// RefundEligible reports whether a user may request a refund for the payment.
func (p *Payment) RefundEligible() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusProcessing
}

// PaymentPatch carries the optional side fields written together with a status change.
type PaymentPatch struct {
	PaymentMethod   *string
	GatewayMetadata map[string]string // merged into the stored map
	Metadata        map[string]string // merged into the stored map
	RefundedAt      *time.Time
}

// PaymentFilter selects payments for listings.
type PaymentFilter struct {
	UserID   string
	Statuses []PaymentStatus
	Page     int
	Limit    int
}

// PaymentAnalytics is the admin overview of payment volume.
type PaymentAnalytics struct {
	TotalPayments      int   `json:"totalPayments"`
	TotalRevenue       int64 `json:"totalRevenue"`
	PendingPayments    int   `json:"pendingPayments"`
	SuccessfulPayments int   `json:"successfulPayments"`
	FailedPayments     int   `json:"failedPayments"`
	RefundedPayments   int   `json:"refundedPayments"`
	TotalRefundAmount  int64 `json:"totalRefundAmount"`
}
