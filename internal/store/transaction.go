package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/examgen/examgen-api/internal/platform/logger"
)

// TxFn is a function executed within a database transaction. The
// transaction is committed if it returns nil, rolled back otherwise.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// TxRunner executes a function within a database transaction. It lets
// services run multi-store writes atomically without holding the
// database handle themselves.
type TxRunner func(ctx context.Context, fn TxFn) error

// NewTxRunner returns a TxRunner bound to db.
func NewTxRunner(db *sql.DB) TxRunner {
	return func(ctx context.Context, fn TxFn) error {
		return RunInTransaction(ctx, db, fn)
	}
}

// RunInTransaction executes fn inside a transaction, handling rollback
// on error or panic.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("rollback after panic failed", "error", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("transaction rollback failed",
				"rollback_error", rbErr,
				"original_error", err)
			return fmt.Errorf("%w: rollback failed: %v (original error: %w)",
				ErrTransactionFailed, rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}
