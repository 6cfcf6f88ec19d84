package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ferro-orm/ferro"
	"github.com/ferro-orm/ferro/dialect"
)

// Transaction lifecycle states. A transaction leaves "open" exactly once.
const (
	txOpen       = "open"
	txCommitted  = "committed"
	txRolledBack = "rolled back"
	txUnknown    = "unknown"
)

// managedTx wraps a dialect.Tx with its state and a mutex. database/sql
// transactions are single-conn; the mutex serializes concurrent statements
// on the same handle.
type managedTx struct {
	mu    sync.Mutex
	tx    dialect.Tx
	state string
}

// Exec implements dialect.Exec under the handle's lock.
func (m *managedTx) Exec(ctx context.Context, query string, args, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != txOpen {
		return ferro.NewInvalidTransactionError("", m.state)
	}
	return m.tx.Exec(ctx, query, args, v)
}

// Query implements dialect.Query under the handle's lock.
func (m *managedTx) Query(ctx context.Context, query string, args, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != txOpen {
		return ferro.NewInvalidTransactionError("", m.state)
	}
	return m.tx.Query(ctx, query, args, v)
}

type txRegistry struct {
	mu  sync.RWMutex
	txs map[string]*managedTx
}

func newTxRegistry() *txRegistry {
	return &txRegistry{txs: make(map[string]*managedTx)}
}

func (r *txRegistry) add(tx dialect.Tx) string {
	handle := uuid.NewString()
	r.mu.Lock()
	r.txs[handle] = &managedTx{tx: tx, state: txOpen}
	r.mu.Unlock()
	return handle
}

func (r *txRegistry) get(handle string) (*managedTx, error) {
	r.mu.RLock()
	m, ok := r.txs[handle]
	r.mu.RUnlock()
	if !ok {
		return nil, ferro.NewInvalidTransactionError(handle, txUnknown)
	}
	return m, nil
}

// open returns the executor for handle, failing when the transaction has
// already been finalized.
func (r *txRegistry) open(handle string) (dialect.ExecQuerier, error) {
	m, err := r.get(handle)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != txOpen {
		return nil, ferro.NewInvalidTransactionError(handle, state)
	}
	return m, nil
}

// finalize transitions handle out of the open state, running commit or
// rollback exactly once.
func (r *txRegistry) finalize(handle, next string, fn func(dialect.Tx) error) error {
	m, err := r.get(handle)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != txOpen {
		return ferro.NewInvalidTransactionError(handle, m.state)
	}
	if err := fn(m.tx); err != nil {
		// The transaction is unusable either way; record the rollback so
		// retries surface a state error instead of a driver panic.
		m.state = txRolledBack
		return ferro.NewEngineError("tx "+next, err)
	}
	m.state = next
	return nil
}

// rollbackAll rolls back every still-open transaction. Used on Close.
func (r *txRegistry) rollbackAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.txs {
		m.mu.Lock()
		if m.state == txOpen {
			m.tx.Rollback()
			m.state = txRolledBack
		}
		m.mu.Unlock()
	}
	r.txs = make(map[string]*managedTx)
}

// BeginTransaction starts a transaction on a dedicated connection and
// returns its handle. Handles are independent: beginning a transaction
// while another is open nests nothing.
func (e *Engine) BeginTransaction(ctx context.Context) (string, error) {
	e.mu.RLock()
	drv := e.sqlDrv
	e.mu.RUnlock()
	if drv == nil {
		return "", ferro.ErrNotInitialized
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return "", ferro.NewEngineError("begin", err)
	}
	handle := e.txs.add(tx)
	e.logger.Debug("transaction begun", "handle", handle)
	return handle, nil
}

// CommitTransaction commits the transaction behind handle. Committing a
// finalized or unknown handle fails with an invalid-transaction error.
func (e *Engine) CommitTransaction(ctx context.Context, handle string) error {
	err := e.txs.finalize(handle, txCommitted, func(tx dialect.Tx) error {
		return tx.Commit()
	})
	if err == nil {
		e.logger.Debug("transaction committed", "handle", handle)
	}
	return err
}

// RollbackTransaction rolls back the transaction behind handle.
func (e *Engine) RollbackTransaction(ctx context.Context, handle string) error {
	err := e.txs.finalize(handle, txRolledBack, func(tx dialect.Tx) error {
		return tx.Rollback()
	})
	if err == nil {
		e.logger.Debug("transaction rolled back", "handle", handle)
	}
	return err
}

// WithTransaction begins a transaction, runs fn with its handle, and
// commits when fn returns nil. A non-nil error or a panic rolls back.
func (e *Engine) WithTransaction(ctx context.Context, fn func(handle string) error) error {
	handle, err := e.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			e.RollbackTransaction(ctx, handle)
			panic(v)
		}
	}()
	if err := fn(handle); err != nil {
		if rerr := e.RollbackTransaction(ctx, handle); rerr != nil {
			e.logger.Debug("rollback after error failed", "handle", handle, "err", rerr)
		}
		return err
	}
	return e.CommitTransaction(ctx, handle)
}
