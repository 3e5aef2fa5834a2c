// Package tx carries the journal of one chain state transition through
// context.Context. Stores register undo hooks for their in-memory mutations and
// on-commit hooks for effects that must only become visible once the
// transition succeeds. SQL-backed chains also carry the *sql.Tx.
package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// Tx is the journal of a single transition. It is not safe to share across
// transitions; hooks may be registered concurrently from one transition.
type Tx struct {
	mu       sync.Mutex
	sqlTx    *sql.Tx
	undo     []func()
	commit   []func()
	finished bool
}

// New starts a journal, optionally bound to a SQL transaction.
func New(sqlTx *sql.Tx) *Tx {
	return &Tx{sqlTx: sqlTx}
}

// SQL returns the bound SQL transaction, if any.
func (t *Tx) SQL() (*sql.Tx, bool) {
	return t.sqlTx, t.sqlTx != nil
}

// OnRollback registers fn to run if the transition fails. Hooks run in
// reverse registration order.
func (t *Tx) OnRollback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, fn)
}

// OnCommit registers fn to run after the transition commits. Hooks run in
// registration order.
func (t *Tx) OnCommit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commit = append(t.commit, fn)
}

// Rollback replays undo hooks newest first and drops commit hooks.
func (t *Tx) Rollback() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	undo := t.undo
	t.undo, t.commit = nil, nil
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// Commit runs commit hooks oldest first and drops undo hooks.
func (t *Tx) Commit() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	commit := t.commit
	t.undo, t.commit = nil, nil
	t.mu.Unlock()

	for _, fn := range commit {
		fn()
	}
}

// WithTx stores a journal in context for downstream store usage.
func WithTx(ctx context.Context, t *Tx) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, t)
}

// From extracts a journal from context if present.
func From(ctx context.Context) (*Tx, bool) {
	t, ok := ctx.Value(txKey).(*Tx)
	return t, ok
}

// SQLFrom extracts the SQL transaction bound to the journal in context.
func SQLFrom(ctx context.Context) (*sql.Tx, bool) {
	t, ok := From(ctx)
	if !ok {
		return nil, false
	}
	return t.SQL()
}

// Undo registers fn as a rollback hook when ctx carries a journal. Outside a
// transition the mutation is final and fn is discarded.
func Undo(ctx context.Context, fn func()) {
	if t, ok := From(ctx); ok {
		t.OnRollback(fn)
	}
}

// AfterCommit defers fn until the journal in ctx commits, or runs it
// immediately when ctx carries none.
func AfterCommit(ctx context.Context, fn func()) {
	if t, ok := From(ctx); ok {
		t.OnCommit(fn)
		return
	}
	fn()
}
