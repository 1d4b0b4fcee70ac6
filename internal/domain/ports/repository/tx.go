package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories accept nil and then run outside a transaction.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one transaction. The job store uses it
// so the read-check-write of a status update sees a locked row.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
