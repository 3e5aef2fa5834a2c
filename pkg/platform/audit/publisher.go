package audit

import (
	"context"
	"fmt"
	"log/slog"

	id "ccns/pkg/domain"
	"ccns/pkg/requestcontext"
)

// Publisher emits audit events with fail-closed semantics: Emit returns the
// store error and the calling transition must fail with it.
type Publisher struct {
	store  Store
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and appends an event. The category is always derived from the
// action.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	event.Category = AuditEvent(event.Action).Category()

	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit persistence failed",
				"action", event.Action,
				"name", event.Name,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, name id.Name) ([]Event, error) {
	return p.store.ListByName(ctx, name)
}
