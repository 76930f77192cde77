package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimart/medimart/internal/platform/apperr"
)

type txKey struct{}

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxFromContext returns the transaction started by TxManager.WithTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// Conn returns the transaction bound to ctx, falling back to the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxManager runs fn inside a single database transaction. Repositories reach
// the transaction through the context passed to fn.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type pgTxManager struct{ pool *pgxpool.Pool }

func NewTxManager(pool *pgxpool.Pool) TxManager { return &pgTxManager{pool: pool} }

// WithTx commits when fn returns nil and rolls back otherwise. A call nested
// inside another WithTx joins the outer transaction.
func (m *pgTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperr.Persistence(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Persistence(err, "commit transaction")
	}
	return nil
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// TranslateError maps driver errors onto the apperr taxonomy. what names the
// record for messages, e.g. "order 1f0c...".
func TranslateError(err error, what string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperr.NotFound("%s not found", what)
	case IsUniqueViolation(err):
		return apperr.Conflict("%s already exists", what)
	default:
		return apperr.Persistence(err, "store %s", what)
	}
}
