package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept nil and fall back to the pool.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside one transaction, committing when fn
// returns nil and rolling back otherwise.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		if err := jobs.MarkSucceeded(ctx, tx, id, res); err != nil {
//			return err
//		}
//		return usage.Increment(ctx, tx, orgID, at, delta)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
