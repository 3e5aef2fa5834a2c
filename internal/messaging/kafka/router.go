// Package kafka is a messaging substrate on Kafka. Sends are staged in a
// Postgres outbox inside the sending transition; a Relay publishes staged
// messages to one topic per destination chain and a Consumer on the
// destination hands them to the local receiver.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"ccns/internal/messaging"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	"ccns/pkg/requestcontext"
)

// Stager persists accepted messages until they are published.
type Stager interface {
	Stage(ctx context.Context, rec Record) error
}

// Router is the outbound side of the Kafka substrate for one source chain.
// The source chain must run its transitions on the database the outbox writes
// to, otherwise staged rows outlive reverted transitions.
type Router struct {
	outbox Stager
	source id.ChainSelector
	fees   messaging.FeeSchedule
	logger *slog.Logger
}

var _ messaging.Router = (*Router)(nil)

type RouterOption func(*Router)

func WithFeeSchedule(fees messaging.FeeSchedule) RouterOption {
	return func(r *Router) {
		r.fees = fees
	}
}

func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func NewRouter(outbox Stager, source id.ChainSelector, opts ...RouterOption) *Router {
	r := &Router{
		outbox: outbox,
		source: source,
		fees:   messaging.DefaultFeeSchedule,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) GetFee(_ context.Context, _ id.ChainSelector, msg messaging.Message) (uint64, error) {
	return r.fees.Quote(msg), nil
}

// Send stages msg for dest. The message id is assigned here and travels with
// the record to the destination.
func (r *Router) Send(ctx context.Context, dest id.ChainSelector, msg messaging.Message, fee uint64) (id.MessageID, error) {
	if dest == r.source {
		return id.MessageID{}, dErrors.New(dErrors.CodeInvalidConfig, "destination must differ from source chain")
	}
	if quote := r.fees.Quote(msg); fee < quote {
		return id.MessageID{}, dErrors.New(dErrors.CodeInsufficientFee,
			fmt.Sprintf("fee %d below quote %d", fee, quote))
	}

	rec := Record{
		ID:          id.NewMessageID(),
		Source:      r.source,
		Destination: dest,
		Message:     msg,
		Fee:         fee,
		CreatedAt:   requestcontext.Now(ctx).UTC(),
	}
	rec.Message.Data = append([]byte(nil), msg.Data...)
	if err := r.outbox.Stage(ctx, rec); err != nil {
		return id.MessageID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stage message")
	}

	r.logger.DebugContext(ctx, "message staged",
		"message_id", rec.ID,
		"source", r.source,
		"destination", dest,
		"fee", fee,
	)
	return rec.ID, nil
}
