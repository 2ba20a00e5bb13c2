package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	TxKey   contextKey = "db_tx"
	ConnKey contextKey = "db_conn"
)

// WithTx returns a context carrying the given transaction. Repositories
// resolve it ahead of the pool so multi-statement operations share one tx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// TxFromContext retrieves the active transaction, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// WithConn returns a context carrying a dedicated pooled connection.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, ConnKey, conn)
}

// ConnFromContext retrieves the dedicated connection, or nil.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(ConnKey).(*pgxpool.Conn)
	return conn
}

// InTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. The transaction is injected into the context passed to fn.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
