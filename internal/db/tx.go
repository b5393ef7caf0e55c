// Package db carries the request-scoped transaction through a context so
// that only the code that opened a transaction finishes it.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNoTx       = errors.New("db: no transaction in context")
	ErrTxFinished = errors.New("db: transaction already finished")
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txContextKey struct{}

type txState struct {
	tx   *sql.Tx
	done bool
}

// TxManager opens transactions on a pool and hands out the right querier
// for a context.
type TxManager struct {
	db *sql.DB
}

// NewTxManager wraps db.
func NewTxManager(db *sql.DB) (*TxManager, error) {
	if db == nil {
		return nil, errors.New("db: database handle is required")
	}
	return &TxManager{db: db}, nil
}

// DB exposes the underlying pool.
func (m *TxManager) DB() *sql.DB { return m.db }

// Ping checks connectivity.
func (m *TxManager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Begin opens a transaction unless ctx already carries a live one. owns
// reports whether the caller opened it and so must commit or roll back.
func (m *TxManager) Begin(ctx context.Context) (context.Context, bool, error) {
	if st, ok := ctx.Value(txContextKey{}).(*txState); ok && !st.done {
		return ctx, false, nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, false, fmt.Errorf("db: begin tx: %w", err)
	}
	return context.WithValue(ctx, txContextKey{}, &txState{tx: tx}), true, nil
}

// Commit commits the transaction carried by ctx.
func (m *TxManager) Commit(ctx context.Context) error {
	st, err := stateFrom(ctx)
	if err != nil {
		return err
	}
	st.done = true
	if err := st.tx.Commit(); err != nil {
		return fmt.Errorf("db: commit tx: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction carried by ctx.
func (m *TxManager) Rollback(ctx context.Context) error {
	st, err := stateFrom(ctx)
	if err != nil {
		return err
	}
	st.done = true
	if err := st.tx.Rollback(); err != nil {
		return fmt.Errorf("db: rollback tx: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, joining one already open in ctx.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, owns, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if !owns {
		return fn(txCtx)
	}
	defer func() {
		if st, _ := stateFrom(txCtx); st != nil && !st.done {
			_ = m.Rollback(txCtx)
		}
	}()
	if err := fn(txCtx); err != nil {
		return err
	}
	return m.Commit(txCtx)
}

// Querier returns the open transaction of ctx, or the pool.
func (m *TxManager) Querier(ctx context.Context) Querier {
	if st, ok := ctx.Value(txContextKey{}).(*txState); ok && !st.done {
		return st.tx
	}
	return m.db
}

// InTx reports whether ctx carries a live transaction.
func InTx(ctx context.Context) bool {
	st, ok := ctx.Value(txContextKey{}).(*txState)
	return ok && !st.done
}

func stateFrom(ctx context.Context) (*txState, error) {
	st, ok := ctx.Value(txContextKey{}).(*txState)
	if !ok {
		return nil, ErrNoTx
	}
	if st.done {
		return nil, ErrTxFinished
	}
	return st, nil
}
