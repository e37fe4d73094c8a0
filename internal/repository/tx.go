package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"room_chat/pkg/logger"
)

// Transactor runs fn inside one database transaction. Repositories called
// with the ctx handed to fn take part in it. Nested calls join the outer
// transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type pgTransactor struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewTransactor(db *pgxpool.Pool, log logger.Logger) Transactor {
	return &pgTransactor{db: db, log: log}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		t.log.Error("Failed to begin transaction", "error", err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		t.log.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// conn returns the transaction carried by ctx, or the pool.
func conn(ctx context.Context, db *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}
