package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Repositories detect a live transaction
// (pgx.Tx for Postgres) and lock rows with SELECT ... FOR UPDATE; a nil Tx runs
// against the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn inside a single database transaction.
//
// A reconciliation fact usually touches more than one record (a refund, its
// payment and the payment's purchases). All of those writes go through the same
// tx.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		r, err := refunds.FindByID(ctx, tx, id)
//		...
//		return err
//	})
//
// Returning an error from fn rolls back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
