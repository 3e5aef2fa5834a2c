// Package chain models one independent ledger. Every state-changing
// operation on a chain runs as a serialized transition that either commits
// completely or leaves no trace; reads never observe a transition in flight.
package chain

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	"ccns/pkg/platform/tx"
)

// defaultTxTimeout bounds a transition when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

type activeKey struct{}

type activeTransition struct {
	chain    *Chain
	writable bool
}

// Chain serializes transitions for one ledger. When a *sql.DB is attached,
// each transition also runs inside a SQL transaction so Postgres-backed stores
// commit or roll back together with in-memory state.
type Chain struct {
	selector id.ChainSelector
	name     string

	mu      sync.RWMutex
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Chain)

// WithDB binds transitions to SQL transactions on db.
func WithDB(db *sql.DB) Option {
	return func(c *Chain) {
		c.db = db
	}
}

// WithTimeout overrides the default transition timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// New constructs a chain identified by selector. name is only used for logs.
func New(selector id.ChainSelector, name string, opts ...Option) *Chain {
	c := &Chain{
		selector: selector,
		name:     name,
		timeout:  defaultTxTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Selector() id.ChainSelector {
	return c.selector
}

func (c *Chain) Name() string {
	return c.name
}

// RunInTx executes fn as one atomic transition. Calls nested inside a running
// transition of the same chain join it instead of starting a new one.
func (c *Chain) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if active, ok := c.active(ctx); ok {
		if !active.writable {
			return dErrors.New(dErrors.CodeInternal, "transition started inside a read-only view")
		}
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transition aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transition aborted: context cancelled")
	}

	var sqlTx *sql.Tx
	if c.db != nil {
		sqlTx, err = c.db.BeginTx(ctx, nil)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "begin transition")
		}
	}

	journal := tx.New(sqlTx)
	txCtx := context.WithValue(tx.WithTx(ctx, journal), activeKey{}, activeTransition{chain: c, writable: true})

	defer func() {
		if r := recover(); r != nil {
			c.abort(ctx, journal, sqlTx)
			panic(r)
		}
	}()

	if err = fn(txCtx); err != nil {
		c.abort(ctx, journal, sqlTx)
		return err
	}

	if sqlTx != nil {
		if cerr := sqlTx.Commit(); cerr != nil {
			journal.Rollback()
			return dErrors.Wrap(cerr, dErrors.CodeInternal, "commit transition")
		}
	}
	journal.Commit()
	return nil
}

// View runs fn against a consistent snapshot: no transition runs concurrently.
func (c *Chain) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := c.active(ctx); ok {
		return fn(ctx)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(context.WithValue(ctx, activeKey{}, activeTransition{chain: c}))
}

func (c *Chain) String() string {
	return fmt.Sprintf("%s(%s)", c.name, c.selector)
}

func (c *Chain) active(ctx context.Context) (activeTransition, bool) {
	cur, ok := ctx.Value(activeKey{}).(activeTransition)
	return cur, ok && cur.chain == c
}

func (c *Chain) abort(ctx context.Context, journal *tx.Tx, sqlTx *sql.Tx) {
	journal.Rollback()
	if sqlTx != nil {
		if err := sqlTx.Rollback(); err != nil && err != sql.ErrTxDone {
			c.logger.ErrorContext(ctx, "sql rollback failed",
				"chain", c.name,
				"error", err,
			)
		}
	}
}
