package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/adapter"
	"nexus-billing/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.PaymentGateway with hosted Checkout and the Refunds API.
// Network retries are disabled; redelivery and operators own retry.
type StripeGateway struct {
	sc *client.API
}

type StripeOption func(*stripe.BackendConfig)

// WithBackendURL points the client at another API host (tests, stripe-mock).
func WithBackendURL(url string) StripeOption {
	return func(c *stripe.BackendConfig) { c.URL = stripe.String(url) }
}

func WithHTTPClient(hc *http.Client) StripeOption {
	return func(c *stripe.BackendConfig) { c.HTTPClient = hc }
}

func NewStripeGateway(secretKey string, opts ...StripeOption) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 20 * time.Second},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	for _, o := range opts {
		o(cfg)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	sc := &client.API{}
	sc.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeGateway{sc: sc}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func gatewayErr(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return errors.Wrapf(domain.ErrGatewayFailure, "stripe %s: %s (%s, http %d)", op, se.Msg, se.Code, se.HTTPStatusCode)
	}
	return errors.Wrapf(domain.ErrGatewayFailure, "stripe %s: %v", op, err)
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req adapter.CheckoutRequest) (out *adapter.CheckoutSession, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGatewayCall(g.Name(), "create_checkout", start, err) }()

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.ItemName),
					Description: stripe.String(req.ItemDescription),
				},
				UnitAmount: stripe.Int64(req.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.ItemDescription == "" {
		params.LineItems[0].PriceData.ProductData.Description = nil
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, gatewayErr("create checkout session", err)
	}
	return toCheckoutSession(s), nil
}

func (g *StripeGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (out *adapter.CheckoutSession, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGatewayCall(g.Name(), "retrieve_checkout", start, err) }()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, gatewayErr("retrieve checkout session", err)
	}
	return toCheckoutSession(s), nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *adapter.CheckoutSession {
	out := &adapter.CheckoutSession{ID: s.ID, URL: s.URL, PaymentStatus: string(s.PaymentStatus)}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req adapter.RefundRequest) (out *adapter.GatewayRefund, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGatewayCall(g.Name(), "create_refund", start, err) }()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Reason != "" {
		params.AddMetadata("refundReason", truncate(req.Reason, 500))
	}

	r, err := g.sc.Refunds.New(params)
	if err != nil {
		return nil, gatewayErr("create refund", err)
	}
	return toGatewayRefund(r), nil
}

func (g *StripeGateway) RetrieveRefund(ctx context.Context, refundID string) (out *adapter.GatewayRefund, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGatewayCall(g.Name(), "retrieve_refund", start, err) }()

	params := &stripe.RefundParams{}
	params.Context = ctx
	r, err := g.sc.Refunds.Get(refundID, params)
	if err != nil {
		return nil, gatewayErr("retrieve refund", err)
	}
	return toGatewayRefund(r), nil
}

func toGatewayRefund(r *stripe.Refund) *adapter.GatewayRefund {
	return &adapter.GatewayRefund{ID: r.ID, Status: MapRefundStatus(string(r.Status)), Amount: r.Amount}
}

// MapRefundStatus folds Stripe refund states into the four the reconciler acts on.
func MapRefundStatus(s string) model.GatewayRefundStatus {
	switch s {
	case "succeeded":
		return model.GatewayRefundSucceeded
	case "failed":
		return model.GatewayRefundFailed
	case "canceled":
		return model.GatewayRefundCanceled
	default: // pending, requires_action
		return model.GatewayRefundPending
	}
}

// Stripe caps metadata values at 500 characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
