package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"nexus-billing/internal/domain"
	"nexus-billing/internal/domain/ports/repository"
)

const (
	pgUniqueViolation      = "23505"
	pgInvalidTextRepresent = "22P02"
)

// psql builds statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// executor is what pgx.Tx, a pooled conn and the pool have in common.
type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// getExecutor runs on tx when one is live and on the pool for a nil tx.
func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case nil:
		if pool == nil {
			return nil, domain.ErrInvalidExecContext
		}
		return pool, nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

// inTx reports whether reads should take row locks.
func inTx(tx repository.Tx) bool {
	_, ok := tx.(pgx.Tx)
	return ok
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Exec(ctx, q, args...)
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgx.Row, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRow(ctx, q, args...), nil
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgx.Rows, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Query(ctx, q, args...)
}

// execBuilder runs a squirrel statement.
func execBuilder(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, b sq.Sqlizer) (pgconn.CommandTag, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return execSQL(ctx, pool, tx, q, args...)
}

func queryBuilder(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, b sq.Sqlizer) (pgx.Rows, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return queryRows(ctx, pool, tx, q, args...)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// mapWriteErr classifies err under a domain sentinel. The driver error stays
// in the chain so the tx manager can see deadlocks and serialization failures.
func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
		return err
	case isUniqueViolation(err, ""):
		return domain.ErrAlreadyExists
	default:
		return fmt.Errorf("%w: %w", domain.ErrOperationFailed, err)
	}
}

// mapReadErr translates a Scan error on a single row. A key that cannot be
// cast to the column type matches nothing.
func mapReadErr(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows), hasPgCode(err, pgInvalidTextRepresent):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrReadDatabaseRow, err)
	}
}

// pageBounds normalises 1-based pagination.
func pageBounds(page, limit int) (uint64, uint64) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return uint64(limit), uint64((page - 1) * limit)
}
