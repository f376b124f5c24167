package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"nexus-billing/internal/domain/ports/repository"
	"nexus-billing/internal/infra/metrics"
)

var _ repository.TransactionManager = (*TxManager)(nil)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// TxManager runs reconciliation writes in one pgx transaction. A webhook and
// a status poll for the same refund can lock the same rows in different
// orders; when Postgres aborts one of them the whole callback is replayed.
type TxManager struct {
	pool     *pgxpool.Pool
	attempts int
	backoff  time.Duration
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, attempts: 3, backoff: 25 * time.Millisecond}
}

// WithTx commits when fn returns nil and rolls back otherwise. fn runs again
// after a serialization failure or deadlock, up to three attempts.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		err = m.once(ctx, txOpt, fn)
		if err == nil || !retryable(err) || attempt == m.attempts {
			break
		}
		metrics.IncTx("retry")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * m.backoff):
		}
	}
	return err
}

func (m *TxManager) once(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			metrics.IncTx("rollback")
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			metrics.IncTx("rollback")
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	metrics.IncTx("commit")
	return nil
}

func retryable(err error) bool {
	return hasPgCode(err, pgSerializationFailure) || hasPgCode(err, pgDeadlockDetected)
}
