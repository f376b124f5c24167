package payment

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/adapter"
)

var _ adapter.WebhookVerifier = (*StripeWebhookVerifier)(nil)

// StripeWebhookVerifier checks the Stripe-Signature header and flattens the event.
// With an empty secret the payload is parsed unverified; that mode exists for
// local testing only and is logged on every delivery.
type StripeWebhookVerifier struct {
	secret string
	log    *zerolog.Logger
}

func NewStripeWebhookVerifier(secret string, logger *zerolog.Logger) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret, log: logger}
}

func (v *StripeWebhookVerifier) ParseEvent(payload []byte, signature string) (*model.GatewayEvent, error) {
	var (
		e   stripe.Event
		err error
	)
	if v.secret == "" {
		v.log.Warn().Msg("webhook signing secret not configured; accepting unverified payload")
		err = json.Unmarshal(payload, &e)
	} else {
		e, err = webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	}
	if err != nil {
		return nil, errors.Wrap(domain.ErrInvalidSignature, err.Error())
	}
	if e.ID == "" || e.Type == "" || e.Data == nil {
		return nil, errors.Wrap(domain.ErrInvalidSignature, "malformed event envelope")
	}
	return v.flattenEvent(&e), nil
}

// flattenEvent copies the fields the billing flow reads. A signed event whose
// object does not decode comes back marked Undecodable so it can be
// acknowledged instead of redelivered.
func (v *StripeWebhookVerifier) flattenEvent(e *stripe.Event) *model.GatewayEvent {
	out := &model.GatewayEvent{ID: e.ID, Type: string(e.Type)}
	obj := &out.Object
	undecodable := func(err error, what string) *model.GatewayEvent {
		v.log.Warn().Err(err).Str("event_id", e.ID).Str("event_type", out.Type).Msgf("decode %s", what)
		return &model.GatewayEvent{ID: e.ID, Type: out.Type, Undecodable: true}
	}

	switch out.Type {
	case model.EventCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(e.Data.Raw, &s); err != nil {
			return undecodable(err, "checkout session")
		}
		obj.ID = s.ID
		obj.CheckoutSession = s.ID
		obj.PaymentStatus = string(s.PaymentStatus)
		obj.Metadata = s.Metadata
		obj.CustomerEmail = s.CustomerEmail
		if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
			obj.CustomerEmail = s.CustomerDetails.Email
		}
		if s.PaymentIntent != nil {
			obj.PaymentIntent = s.PaymentIntent.ID
		}

	case model.EventPaymentIntentSucceeded, model.EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(e.Data.Raw, &pi); err != nil {
			return undecodable(err, "payment intent")
		}
		obj.ID = pi.ID
		obj.PaymentIntent = pi.ID
		obj.Metadata = pi.Metadata
		if len(pi.PaymentMethodTypes) > 0 {
			obj.PaymentMethod = pi.PaymentMethodTypes[0]
		}
		if pi.LastPaymentError != nil {
			obj.FailureCode = string(pi.LastPaymentError.Code)
			obj.FailureMessage = pi.LastPaymentError.Msg
		}

	case model.EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(e.Data.Raw, &ch); err != nil {
			return undecodable(err, "charge")
		}
		obj.ID = ch.ID
		obj.AmountRefunded = ch.AmountRefunded
		obj.Metadata = ch.Metadata
		if ch.PaymentIntent != nil {
			obj.PaymentIntent = ch.PaymentIntent.ID
		}
		if ch.Refunds != nil {
			for _, r := range ch.Refunds.Data {
				obj.RefundIDs = append(obj.RefundIDs, r.ID)
			}
		}

	case model.EventChargeDisputeCreated:
		var d stripe.Dispute
		if err := json.Unmarshal(e.Data.Raw, &d); err != nil {
			return undecodable(err, "dispute")
		}
		obj.ID = d.ID
		obj.DisputeReason = string(d.Reason)
		if d.PaymentIntent != nil {
			obj.PaymentIntent = d.PaymentIntent.ID
		}
	}
	return out
}
