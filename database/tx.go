package database

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/pkg/errors"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txKey struct{}

// InTx runs fn in a transaction. Calls nested inside fn join the same
// transaction.
func (d *Database) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := d.txFromCtx(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			slog.Error("database: cannot rollback transaction", "error", rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// querier returns the transaction in ctx or the connection pool.
func (d *Database) querier(ctx context.Context) querier {
	if tx := d.txFromCtx(ctx); tx != nil {
		return tx
	}
	return d.DB
}

func (d *Database) txFromCtx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}
