package postgres

import (
	"context"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
)

var _ repository.RefundRepository = (*refundRepo)(nil)

const activeRefundIndex = "uq_refunds_active_payment"

var refundColumns = []string{
	"id", "payment_id", "user_id", "service_id", "reason", "amount", "currency", "external_id", "status",
	"status_reason", "approval", "confirmed_by", "service_title", "requested_at", "processed_at",
	"created_at", "updated_at",
}

type refundRepo struct{ pool *pgxpool.Pool }

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

func scanRefund(row rowScanner) (*model.Refund, error) {
	var (
		rf       model.Refund
		approval []byte
	)
	if err := row.Scan(&rf.ID, &rf.PaymentID, &rf.UserID, &rf.ServiceID, &rf.Reason, &rf.Amount, &rf.Currency,
		&rf.ExternalID, &rf.Status, &rf.StatusReason, &approval, &rf.ConfirmedBy, &rf.ServiceTitle,
		&rf.RequestedAt, &rf.ProcessedAt, &rf.CreatedAt, &rf.UpdatedAt); err != nil {
		return nil, err
	}
	if len(approval) > 0 {
		_ = json.Unmarshal(approval, &rf.Approval)
	}
	return &rf, nil
}

func (r *refundRepo) Save(ctx context.Context, tx repository.Tx, rf *model.Refund) error {
	q := psql.Insert("refunds").Columns(refundColumns...).Values(
		rf.ID, rf.PaymentID, rf.UserID, rf.ServiceID, rf.Reason, rf.Amount, rf.Currency, rf.ExternalID,
		string(rf.Status), rf.StatusReason, toJSON(rf.Approval), string(rf.ConfirmedBy), rf.ServiceTitle,
		rf.RequestedAt, rf.ProcessedAt, rf.CreatedAt, rf.UpdatedAt,
	)
	_, err := execBuilder(ctx, r.pool, tx, q)
	if isUniqueViolation(err, activeRefundIndex) {
		return domain.ErrActiveRefundExists
	}
	return mapWriteErr(err)
}

func (r *refundRepo) findOne(ctx context.Context, tx repository.Tx, where sq.Sqlizer) (*model.Refund, error) {
	b := psql.Select(refundColumns...).From("refunds").Where(where).OrderBy("created_at DESC").Limit(1)
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
	rf, err := scanRefund(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return rf, nil
}

// FindByID returns domain.ErrNotFound for ids that are not uuids.
func (r *refundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Refund, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, sq.Eq{"id": id})
}

func (r *refundRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Refund, error) {
	if externalID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, sq.Eq{"external_id": externalID})
}

func (r *refundRepo) FindActiveByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.Refund, error) {
	return r.findOne(ctx, tx, sq.Eq{
		"payment_id": paymentID,
		"status":     refundStatusStrings(model.ActiveRefundStatuses),
	})
}

func (r *refundRepo) FindLatestByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.Refund, error) {
	return r.findOne(ctx, tx, sq.Eq{"payment_id": paymentID})
}

func (r *refundRepo) FindLatestProcessingByPayment(ctx context.Context, tx repository.Tx, paymentID string) (*model.Refund, error) {
	return r.findOne(ctx, tx, sq.Eq{"payment_id": paymentID, "status": string(model.RefundStatusProcessing)})
}

func (r *refundRepo) LatestByPayments(ctx context.Context, tx repository.Tx, paymentIDs []string) (map[string]*model.Refund, error) {
	out := make(map[string]*model.Refund, len(paymentIDs))
	if len(paymentIDs) == 0 {
		return out, nil
	}
	b := psql.Select(refundColumns...).Options("DISTINCT ON (payment_id)").From("refunds").
		Where(sq.Eq{"payment_id": paymentIDs}).OrderBy("payment_id", "created_at DESC")
	rows, err := queryBuilder(ctx, r.pool, tx, b)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[rf.PaymentID] = rf
	}
	if err := rows.Err(); err != nil {
		return nil, mapWriteErr(err)
	}
	return out, nil
}

func (r *refundRepo) list(ctx context.Context, tx repository.Tx, b sq.SelectBuilder) ([]*model.Refund, error) {
	rows, err := queryBuilder(ctx, r.pool, tx, b)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()
	var out []*model.Refund
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, mapWriteErr(err)
	}
	return out, nil
}

func (r *refundRepo) List(ctx context.Context, tx repository.Tx, f model.RefundFilter) ([]*model.Refund, int, error) {
	where := sq.And{}
	if f.UserID != "" {
		where = append(where, sq.Eq{"user_id": f.UserID})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": string(f.Status)})
	}

	countQ, countArgs, err := psql.Select("COUNT(*)").From("refunds").Where(where).ToSql()
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
	out, err := r.list(ctx, tx, psql.Select(refundColumns...).From("refunds").Where(where).
		OrderBy("created_at DESC").Limit(limit).Offset(offset))
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *refundRepo) ListProcessingWithExternalID(ctx context.Context, tx repository.Tx, after *model.RefundCursor, limit int) ([]*model.Refund, error) {
	if limit <= 0 {
		limit = 500
	}
	b := psql.Select(refundColumns...).From("refunds").
		Where(sq.Eq{"status": string(model.RefundStatusProcessing)}).
		Where(sq.NotEq{"external_id": nil})
	if after != nil {
		b = b.Where(sq.Expr("(created_at, id) > (?, ?::uuid)", after.CreatedAt, after.ID))
	}
	return r.list(ctx, tx, b.OrderBy("created_at ASC", "id ASC").Limit(uint64(limit)))
}

func (r *refundRepo) Update(ctx context.Context, tx repository.Tx, rf *model.Refund, from ...model.RefundStatus) (bool, error) {
	b := psql.Update("refunds").
		Set("status", string(rf.Status)).
		Set("external_id", sq.Expr("COALESCE(external_id, ?)", rf.ExternalID)).
		Set("status_reason", rf.StatusReason).
		Set("approval", toJSON(rf.Approval)).
		Set("confirmed_by", string(rf.ConfirmedBy)).
		Set("processed_at", rf.ProcessedAt).
		Set("updated_at", rf.UpdatedAt).
		Where(sq.Eq{"id": rf.ID})
	if len(from) > 0 {
		b = b.Where(sq.Eq{"status": refundStatusStrings(from)})
	}
	cmd, err := execBuilder(ctx, r.pool, tx, b)
	if isUniqueViolation(err, activeRefundIndex) {
		return false, domain.ErrActiveRefundExists
	}
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *refundRepo) Stats(ctx context.Context, tx repository.Tx) ([]model.RefundStatusStat, error) {
	const q = `SELECT status, COUNT(*), COALESCE(SUM(amount), 0) FROM refunds GROUP BY status ORDER BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()
	var out []model.RefundStatusStat
	for rows.Next() {
		var s model.RefundStatusStat
		if err := rows.Scan(&s.Status, &s.Count, &s.TotalAmount); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapWriteErr(err)
	}
	return out, nil
}
