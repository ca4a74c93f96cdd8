package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	id "securekyc/pkg/domain"
	txcontext "securekyc/pkg/platform/tx"
)

// PostgresTx runs per-user work inside one SQL transaction that holds a
// transaction-scoped advisory lock keyed on the user. Stores built on the
// same *sql.DB join the transaction through the context.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, userID id.UserID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return txcontext.Aborted(err)
	}

	ctx, cancel := txcontext.WithDeadline(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return txcontext.Aborted(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID.String()); err != nil {
		return txcontext.Aborted(fmt.Errorf("acquire user lock: %w", err))
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return txcontext.Aborted(err)
	}

	if err := tx.Commit(); err != nil {
		return txcontext.Aborted(fmt.Errorf("commit: %w", err))
	}
	return nil
}
