package repository

import (
	"context"

	"nexus-billing/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByCheckoutSession(ctx context.Context, tx Tx, sessionID string) (*model.Payment, error)
	FindByPaymentIntent(ctx context.Context, tx Tx, intentID string) (*model.Payment, error)
	// FindLatestOpen returns the newest pending/processing payment of a user for a service.
	FindLatestOpen(ctx context.Context, tx Tx, userID string, serviceID int64) (*model.Payment, error)
	// FindForUserByExternalID matches either the payment intent or the checkout session id.
	FindForUserByExternalID(ctx context.Context, tx Tx, userID, externalID string) (*model.Payment, error)
	List(ctx context.Context, tx Tx, f model.PaymentFilter) ([]*model.Payment, int, error)

	// UpdateStatus moves the payment to `to` only while its status is one of `from`.
	// It reports whether a row changed.
	UpdateStatus(ctx context.Context, tx Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, patch model.PaymentPatch) (bool, error)
	// SetPaymentIntentIfEmpty assigns the intent id only when none is stored yet.
	// It returns domain.ErrAlreadyExists when another payment holds the id.
	SetPaymentIntentIfEmpty(ctx context.Context, tx Tx, id, intentID string) (bool, error)
	// MergeGatewayMetadata records gateway facts without touching the status.
	MergeGatewayMetadata(ctx context.Context, tx Tx, id string, meta map[string]string) error

	Analytics(ctx context.Context, tx Tx) (*model.PaymentAnalytics, error)
}

// -----------------------------
// Purchases
// -----------------------------

type PurchaseRepository interface {
	// SaveAll inserts purchases, skipping any (payment, item type, item id) that already exists.
	SaveAll(ctx context.Context, tx Tx, items []*model.Purchase) (int64, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Purchase, error)
	MarkRefundedByPayment(ctx context.Context, tx Tx, paymentID string, refundAmount int64) (int64, error)
}

// -----------------------------
// Service catalog
// -----------------------------

type ServiceRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Service) error
	FindByID(ctx context.Context, tx Tx, serviceID int64) (*model.Service, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Service, error)
}
