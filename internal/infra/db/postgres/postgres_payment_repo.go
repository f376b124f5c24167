package postgres

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

var paymentColumns = []string{
	"id", "user_id", "service_id", "checkout_session_id", "payment_intent_id", "amount", "currency",
	"status", "payment_method", "service", "customer_email", "customer_name", "metadata",
	"gateway_metadata", "refunded_at", "created_at", "updated_at",
}

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var (
		p                    model.Payment
		svc, meta, gatewayMD []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.ServiceID, &p.CheckoutSessionID, &p.PaymentIntentID, &p.Amount,
		&p.Currency, &p.Status, &p.PaymentMethod, &svc, &p.CustomerEmail, &p.CustomerName, &meta,
		&gatewayMD, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if len(svc) > 0 {
		_ = json.Unmarshal(svc, &p.Service)
	}
	p.Metadata = fromJSONMap(meta)
	p.GatewayMetadata = fromJSONMap(gatewayMD)
	return &p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	q := psql.Insert("payments").Columns(paymentColumns...).Values(
		p.ID, p.UserID, p.ServiceID, p.CheckoutSessionID, p.PaymentIntentID, p.Amount, p.Currency,
		string(p.Status), p.PaymentMethod, toJSON(p.Service), p.CustomerEmail, p.CustomerName, toJSON(p.Metadata),
		toJSON(p.GatewayMetadata), p.RefundedAt, p.CreatedAt, p.UpdatedAt,
	)
	_, err := execBuilder(ctx, r.pool, tx, q)
	return mapWriteErr(err)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where sq.Sqlizer) (*model.Payment, error) {
	b := psql.Select(paymentColumns...).From("payments").Where(where).OrderBy("created_at DESC").Limit(1)
	if inTx(tx) {
		b = b.Suffix("FOR UPDATE")
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return p, nil
}

// FindByID returns domain.ErrNotFound for ids that are not uuids.
func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, sq.Eq{"id": id})
}

func (r *paymentRepo) FindByCheckoutSession(ctx context.Context, tx repository.Tx, sessionID string) (*model.Payment, error) {
	if sessionID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, sq.Eq{"checkout_session_id": sessionID})
}

func (r *paymentRepo) FindByPaymentIntent(ctx context.Context, tx repository.Tx, intentID string) (*model.Payment, error) {
	if intentID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, sq.Eq{"payment_intent_id": intentID})
}

func (r *paymentRepo) FindLatestOpen(ctx context.Context, tx repository.Tx, userID string, serviceID int64) (*model.Payment, error) {
	return r.findOne(ctx, tx, sq.Eq{
		"user_id":    userID,
		"service_id": serviceID,
		"status":     paymentStatusStrings([]model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusProcessing}),
	})
}

func (r *paymentRepo) FindForUserByExternalID(ctx context.Context, tx repository.Tx, userID, externalID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, sq.And{
		sq.Eq{"user_id": userID},
		sq.Or{sq.Eq{"payment_intent_id": externalID}, sq.Eq{"checkout_session_id": externalID}},
	})
}

func (r *paymentRepo) List(ctx context.Context, tx repository.Tx, f model.PaymentFilter) ([]*model.Payment, int, error) {
	where := sq.And{}
	if f.UserID != "" {
		where = append(where, sq.Eq{"user_id": f.UserID})
	}
	if len(f.Statuses) > 0 {
		where = append(where, sq.Eq{"status": paymentStatusStrings(f.Statuses)})
	}

	countQ, countArgs, err := psql.Select("COUNT(*)").From("payments").Where(where).ToSql()
	if err != nil {
		return nil, 0, domain.ErrInvalidArgument
	}
	row, err := pickRow(ctx, r.pool, tx, countQ, countArgs...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, mapReadErr(err)
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	rows, err := queryBuilder(ctx, r.pool, tx, psql.Select(paymentColumns...).From("payments").
		Where(where).OrderBy("created_at DESC").Limit(limit).Offset(offset))
	if err != nil {
		return nil, 0, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapWriteErr(err)
	}
	return out, total, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from []model.PaymentStatus, to model.PaymentStatus, patch model.PaymentPatch) (bool, error) {
	b := psql.Update("payments").
		Set("status", string(to)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})
	if len(from) > 0 {
		b = b.Where(sq.Eq{"status": paymentStatusStrings(from)})
	}
	if patch.PaymentMethod != nil {
		b = b.Set("payment_method", *patch.PaymentMethod)
	}
	if len(patch.GatewayMetadata) > 0 {
		b = b.Set("gateway_metadata", sq.Expr("gateway_metadata || ?::jsonb", toJSON(patch.GatewayMetadata)))
	}
	if len(patch.Metadata) > 0 {
		b = b.Set("metadata", sq.Expr("metadata || ?::jsonb", toJSON(patch.Metadata)))
	}
	if patch.RefundedAt != nil {
		b = b.Set("refunded_at", sq.Expr("COALESCE(refunded_at, ?)", *patch.RefundedAt))
	}
	cmd, err := execBuilder(ctx, r.pool, tx, b)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) SetPaymentIntentIfEmpty(ctx context.Context, tx repository.Tx, id, intentID string) (bool, error) {
	if intentID == "" {
		return false, domain.ErrInvalidArgument
	}
	// The holder check keeps a conflict from raising 23505, which would
	// abort the surrounding transaction.
	const q = `
WITH held AS (
  SELECT id FROM payments WHERE payment_intent_id=$2 LIMIT 1
), upd AS (
  UPDATE payments SET payment_intent_id=$2, updated_at=NOW()
  WHERE id=$1 AND payment_intent_id IS NULL AND NOT EXISTS (SELECT 1 FROM held)
  RETURNING id
)
SELECT EXISTS (SELECT 1 FROM upd), (SELECT id::text FROM held);`
	row, err := pickRow(ctx, r.pool, tx, q, id, intentID)
	if err != nil {
		return false, err
	}
	var (
		set    bool
		holder *string
	)
	if err := row.Scan(&set, &holder); err != nil {
		return false, mapWriteErr(err)
	}
	if holder != nil && *holder != id {
		return false, domain.ErrAlreadyExists
	}
	return set, nil
}

func (r *paymentRepo) MergeGatewayMetadata(ctx context.Context, tx repository.Tx, id string, meta map[string]string) error {
	if len(meta) == 0 {
		return nil
	}
	const q = `UPDATE payments SET gateway_metadata = gateway_metadata || $2::jsonb, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, toJSON(meta))
	return mapWriteErr(err)
}

func (r *paymentRepo) Analytics(ctx context.Context, tx repository.Tx) (*model.PaymentAnalytics, error) {
	const q = `
SELECT
  COUNT(*),
  COALESCE(SUM(amount) FILTER (WHERE status='succeeded'), 0),
  COUNT(*) FILTER (WHERE status='pending'),
  COUNT(*) FILTER (WHERE status='succeeded'),
  COUNT(*) FILTER (WHERE status='failed'),
  COUNT(*) FILTER (WHERE status='refunded'),
  (SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE status='succeeded')
FROM payments;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	a := &model.PaymentAnalytics{}
	if err := row.Scan(&a.TotalPayments, &a.TotalRevenue, &a.PendingPayments, &a.SuccessfulPayments,
		&a.FailedPayments, &a.RefundedPayments, &a.TotalRefundAmount); err != nil {
		return nil, mapReadErr(err)
	}
	return a, nil
}
