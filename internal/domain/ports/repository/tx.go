package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx, *sql.Tx).
// Repositories accept nil for the non-transactional path.
type Tx interface{}

// TransactionManager runs fn inside a single database transaction and
// passes the handle through tx. fn's error rolls back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
