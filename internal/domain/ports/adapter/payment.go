package adapter

import (
	"context"

	"nexus-billing/internal/domain/model"
)

// CheckoutRequest describes a hosted checkout with a single line item.
type CheckoutRequest struct {
	Amount          int64 // minor units
	Currency        string
	ItemName        string
	ItemDescription string
	CustomerEmail   string
	SuccessURL      string
	CancelURL       string
	Metadata        map[string]string // copied onto the session and the payment intent
}

// CheckoutSession is the gateway's view of a checkout.
// PaymentIntentID is empty until the gateway has created an intent.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	PaymentStatus   string
}

type RefundRequest struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

type GatewayRefund struct {
	ID     string
	Status model.GatewayRefundStatus
	Amount int64
}

// PaymentGateway is the hex port for the hosted payment processor.
// Calls are synchronous and never retried by the caller.
type PaymentGateway interface {
	Name() string

	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	CreateRefund(ctx context.Context, req RefundRequest) (*GatewayRefund, error)
	RetrieveRefund(ctx context.Context, refundID string) (*GatewayRefund, error)
}

// WebhookVerifier authenticates a webhook delivery and decodes it.
// It returns domain.ErrInvalidSignature when the payload cannot be trusted.
type WebhookVerifier interface {
	ParseEvent(payload []byte, signature string) (*model.GatewayEvent, error)
}

// CodeSender delivers one-time codes to a contact address.
type CodeSender interface {
	Send(ctx context.Context, contact, code string) error
}
