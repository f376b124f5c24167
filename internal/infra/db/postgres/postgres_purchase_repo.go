package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4/pgxpool"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

var purchaseColumns = []string{
	"id", "user_id", "payment_id", "item_type", "item_id", "title", "price", "quantity", "status",
	"refund_amount", "created_at", "updated_at",
}

type PostgresPurchaseRepo struct {
	db *pgxpool.Pool
}

func NewPostgresPurchaseRepo(db *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: db}
}

// SaveAll inserts the items and reports how many were new.
func (r *PostgresPurchaseRepo) SaveAll(ctx context.Context, tx repository.Tx, items []*model.Purchase) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	b := psql.Insert("purchases").Columns(purchaseColumns...)
	for _, pu := range items {
		if pu.CreatedAt.IsZero() {
			pu.CreatedAt = time.Now().UTC()
			pu.UpdatedAt = pu.CreatedAt
		}
		b = b.Values(pu.ID, pu.UserID, pu.PaymentID, string(pu.ItemType), pu.ItemID, pu.Title, pu.Price,
			pu.Quantity, string(pu.Status), pu.RefundAmount, pu.CreatedAt, pu.UpdatedAt)
	}
	b = b.Suffix("ON CONFLICT (payment_id, item_type, item_id) DO NOTHING")
	cmd, err := execBuilder(ctx, r.db, tx, b)
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *PostgresPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	rows, err := queryBuilder(ctx, r.db, tx, psql.Select(purchaseColumns...).From("purchases").
		Where(sq.Eq{"user_id": userID}).OrderBy("created_at DESC"))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()
	var out []*model.Purchase
	for rows.Next() {
		var pu model.Purchase
		if err := rows.Scan(&pu.ID, &pu.UserID, &pu.PaymentID, &pu.ItemType, &pu.ItemID, &pu.Title, &pu.Price,
			&pu.Quantity, &pu.Status, &pu.RefundAmount, &pu.CreatedAt, &pu.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &pu)
	}
	if err := rows.Err(); err != nil {
		return nil, mapWriteErr(err)
	}
	return out, nil
}

// MarkRefundedByPayment flags every purchase of the payment as refunded.
// The refund amount is attributed to each row as recorded on the refund.
func (r *PostgresPurchaseRepo) MarkRefundedByPayment(ctx context.Context, tx repository.Tx, paymentID string, refundAmount int64) (int64, error) {
	const q = `UPDATE purchases SET status='refunded', refund_amount=$2, updated_at=NOW() WHERE payment_id=$1 AND status <> 'refunded';`
	cmd, err := execSQL(ctx, r.db, tx, q, paymentID, refundAmount)
	if err != nil {
		return 0, mapWriteErr(err)
	}
	return cmd.RowsAffected(), nil
}
