package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4/pgxpool"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/model"
	"nexus-billing/internal/domain/ports/repository"
)

var _ repository.ServiceRepository = (*serviceRepo)(nil)

var serviceColumns = []string{"service_id", "title", "category", "consultant", "duration", "price", "active", "created_at"}

type serviceRepo struct{ pool *pgxpool.Pool }

func NewServiceRepo(pool *pgxpool.Pool) *serviceRepo {
	return &serviceRepo{pool: pool}
}

// Save upserts a catalog entry by service id.
func (r *serviceRepo) Save(ctx context.Context, tx repository.Tx, s *model.Service) error {
	const q = `
INSERT INTO services (service_id, title, category, consultant, duration, price, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (service_id) DO UPDATE SET
  title=$2, category=$3, consultant=$4, duration=$5, price=$6, active=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, s.ServiceID, s.Title, s.Category, s.Consultant, s.Duration, s.Price, s.Active, s.CreatedAt)
	return mapWriteErr(err)
}

func scanService(row rowScanner) (*model.Service, error) {
	var s model.Service
	if err := row.Scan(&s.ServiceID, &s.Title, &s.Category, &s.Consultant, &s.Duration, &s.Price, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepo) FindByID(ctx context.Context, tx repository.Tx, serviceID int64) (*model.Service, error) {
	q, args, err := psql.Select(serviceColumns...).From("services").Where(sq.Eq{"service_id": serviceID}).ToSql()
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanService(row)
	if err != nil {
		return nil, mapReadErr(err)
	}
	return s, nil
}

func (r *serviceRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Service, error) {
	rows, err := queryBuilder(ctx, r.pool, tx, psql.Select(serviceColumns...).From("services").
		Where(sq.Eq{"active": true}).OrderBy("service_id"))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()
	var out []*model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapWriteErr(err)
	}
	return out, nil
}
