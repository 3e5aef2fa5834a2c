// Package names implements the per-chain Name Registry: a name→owner mapping
// with a single bound writer.
package names

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"ccns/internal/admin"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/sentinel"
)

// Store persists name records for one chain. Get returns sentinel.ErrNotFound
// for names that were never set. Set must register an undo with the journal
// in ctx (or join its SQL transaction) so a failed transition restores the
// previous value.
type Store interface {
	Set(ctx context.Context, name id.Name, owner id.Address) error
	Get(ctx context.Context, name id.Name) (id.Address, error)
}

// Executor runs transitions and consistent reads on the registry's chain.
type Executor interface {
	Selector() id.ChainSelector
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	View(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier receives change notifications. Emit runs inside the writing
// transition; an error fails the write.
type Notifier interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Registry is the local name→owner store of one chain.
type Registry struct {
	chain      Executor
	store      Store
	authority  *admin.Authority
	controller atomic.Pointer[id.Address]
	notifier   Notifier
	logger     *slog.Logger
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithNotifier(n Notifier) Option {
	return func(r *Registry) {
		r.notifier = n
	}
}

// New constructs an unbound registry. Every write fails until a controller
// is bound with BindController.
func New(chain Executor, store Store, authority *admin.Authority, opts ...Option) (*Registry, error) {
	if chain == nil {
		return nil, errors.New("chain is required")
	}
	if store == nil {
		return nil, errors.New("names store is required")
	}
	if authority == nil {
		return nil, errors.New("admin authority is required")
	}
	r := &Registry{
		chain:     chain,
		store:     store,
		authority: authority,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BindController fixes controller as the only address allowed to write.
// The slot is set at most once for the lifetime of the registry.
//
// Errors: CodePermissionDenied when caller is not the administrator,
// CodeInvalidConfig for a zero controller, CodeAlreadyBound on any call after
// a successful bind.
func (r *Registry) BindController(ctx context.Context, caller, controller id.Address) error {
	if err := r.authority.Check(caller); err != nil {
		return err
	}
	if controller.IsZero() {
		return dErrors.New(dErrors.CodeInvalidConfig, "controller address is required")
	}
	bound := controller
	if !r.controller.CompareAndSwap(nil, &bound) {
		return dErrors.New(dErrors.CodeAlreadyBound, "registry controller already bound")
	}

	r.logger.InfoContext(ctx, "registry controller bound",
		"chain", r.chain.Selector(),
		"controller", controller,
	)
	r.emitDetached(ctx, audit.Event{
		Action: string(audit.EventControllerBound),
		Chain:  r.chain.Selector(),
		Actor:  caller,
		Owner:  controller,
	})
	return nil
}

// Controller returns the bound controller, if any.
func (r *Registry) Controller() (id.Address, bool) {
	c := r.controller.Load()
	if c == nil {
		return id.ZeroAddress, false
	}
	return *c, true
}

// SetAddress overwrites the owner of name. Only the bound controller may call
// it; repeated identical calls are idempotent.
func (r *Registry) SetAddress(ctx context.Context, caller id.Address, name id.Name, owner id.Address) error {
	controller, ok := r.Controller()
	if !ok || controller != caller {
		return dErrors.New(dErrors.CodePermissionDenied, "caller is not the registry controller")
	}

	return r.chain.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.store.Set(ctx, name, owner); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store name record")
		}
		if r.notifier != nil {
			err := r.notifier.Emit(ctx, audit.Event{
				Action: string(audit.EventAddressSet),
				Chain:  r.chain.Selector(),
				Name:   name,
				Owner:  owner,
				Actor:  caller,
			})
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit change notification")
			}
		}
		return nil
	})
}

// Lookup returns the owner of name, or id.ZeroAddress when it was never set.
func (r *Registry) Lookup(ctx context.Context, name id.Name) (id.Address, error) {
	var owner id.Address
	err := r.chain.View(ctx, func(ctx context.Context) error {
		got, err := r.store.Get(ctx, name)
		if errors.Is(err, sentinel.ErrNotFound) {
			owner = id.ZeroAddress
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load name record")
		}
		owner = got
		return nil
	})
	return owner, err
}

// emitDetached records events that are not part of a reverting transition.
// Failures are logged rather than returned.
func (r *Registry) emitDetached(ctx context.Context, event audit.Event) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Emit(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
