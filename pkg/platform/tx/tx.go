// Package tx carries an open SQL transaction through a context so stores can
// join a unit of work started by a service without changing their signatures.
package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "apb/pkg/domain-errors"
)

type ctxKey struct{}

var txKey = ctxKey{}

// DefaultTimeout bounds a unit of work when the caller sets no deadline.
const DefaultTimeout = 5 * time.Second

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Querier is the subset of *sql.DB and *sql.Tx used by stores.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Use returns the transaction carried by ctx, or db when there is none.
func Use(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// Bound applies timeout to ctx unless it already has a deadline, and rejects
// contexts that are already done.
func Bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, Aborted(err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// Aborted wraps an infrastructure failure that ended a unit of work.
func Aborted(err error) error {
	if err == nil {
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodeTransactionAborted) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeTransactionAborted, "transaction aborted")
}

// Run executes fn inside a SQL transaction bounded by timeout. The transaction
// is committed only when fn returns nil; any error rolls it back.
func Run(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel, err := Bound(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Aborted(err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Aborted(ctxErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return Aborted(err)
	}
	return nil
}
