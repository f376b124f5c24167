package usecase

import (
	"context"
	"errors"
	"strconv"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
)

// Lookup strategy names, logged and counted for every match.
const (
	lookupByIntent   = "payment_intent"
	lookupBySession  = "checkout_session"
	lookupByMetadata = "metadata"
)

// paymentLookup finds the local payment an event refers to. It returns
// (nil, nil) when the strategy does not apply or finds nothing.
type paymentLookup struct {
	name string
	find func(ctx context.Context, tx repository.Tx, obj model.EventObject) (*model.Payment, error)
}

// intentLookups is the ordered chain used for payment intent events: the
// intent id itself, then the checkout session, then the user/service pair
// carried in metadata. The last one covers intents that have not been
// round-tripped to the local record yet.
func intentLookups(payments repository.PaymentRepository) []paymentLookup {
	return []paymentLookup{
		{name: lookupByIntent, find: func(ctx context.Context, tx repository.Tx, obj model.EventObject) (*model.Payment, error) {
			if obj.PaymentIntent == "" {
				return nil, nil
			}
			return orNil(payments.FindByPaymentIntent(ctx, tx, obj.PaymentIntent))
		}},
		{name: lookupBySession, find: func(ctx context.Context, tx repository.Tx, obj model.EventObject) (*model.Payment, error) {
			if obj.CheckoutSession == "" {
				return nil, nil
			}
			return orNil(payments.FindByCheckoutSession(ctx, tx, obj.CheckoutSession))
		}},
		{name: lookupByMetadata, find: func(ctx context.Context, tx repository.Tx, obj model.EventObject) (*model.Payment, error) {
			userID := obj.Metadata["userId"]
			serviceID, err := strconv.ParseInt(obj.Metadata["serviceId"], 10, 64)
			if userID == "" || err != nil {
				return nil, nil
			}
			return orNil(payments.FindLatestOpen(ctx, tx, userID, serviceID))
		}},
	}
}

// findPayment tries each strategy in order and reports which one matched.
// It returns domain.ErrNotFound when none does.
func findPayment(ctx context.Context, tx repository.Tx, chain []paymentLookup, obj model.EventObject) (*model.Payment, string, error) {
	for _, l := range chain {
		p, err := l.find(ctx, tx, obj)
		if err != nil {
			return nil, l.name, err
		}
		if p != nil {
			return p, l.name, nil
		}
	}
	return nil, "", domain.ErrNotFound
}

func orNil(p *model.Payment, err error) (*model.Payment, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}
