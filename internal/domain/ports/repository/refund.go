package repository

import (
	"context"

	"nexus-billing/internal/domain/model"
)

type RefundRepository interface {
	// Save inserts a new refund. It returns domain.ErrActiveRefundExists when the
	// payment already has an active refund.
	Save(ctx context.Context, tx Tx, r *model.Refund) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Refund, error)
	FindByExternalID(ctx context.Context, tx Tx, externalID string) (*model.Refund, error)
	FindActiveByPayment(ctx context.Context, tx Tx, paymentID string) (*model.Refund, error)
	FindLatestByPayment(ctx context.Context, tx Tx, paymentID string) (*model.Refund, error)
	FindLatestProcessingByPayment(ctx context.Context, tx Tx, paymentID string) (*model.Refund, error)
	// LatestByPayments maps payment id to its newest refund.
	LatestByPayments(ctx context.Context, tx Tx, paymentIDs []string) (map[string]*model.Refund, error)
	List(ctx context.Context, tx Tx, f model.RefundFilter) ([]*model.Refund, int, error)
	// ListProcessingWithExternalID returns up to limit processing refunds that
	// carry a gateway id, oldest first, starting after the cursor (nil for the
	// first page).
	ListProcessingWithExternalID(ctx context.Context, tx Tx, after *model.RefundCursor, limit int) ([]*model.Refund, error)

	// Update writes the mutable fields of r only while the stored status is one of `from`.
	// It reports whether a row changed.
	Update(ctx context.Context, tx Tx, r *model.Refund, from ...model.RefundStatus) (bool, error)

	Stats(ctx context.Context, tx Tx) ([]model.RefundStatusStat, error)
}
