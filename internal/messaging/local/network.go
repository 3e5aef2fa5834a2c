// Package local is an in-process messaging substrate. One Network connects
// any number of chains; each chain gets a Router bound to its selector.
// Accepted messages are queued once the sending transition commits and are
// delivered only when DeliverNext/DeliverAll is called, which keeps the
// asynchrony of a real substrate observable in tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ccns/internal/messaging"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	"ccns/pkg/platform/tx"
)

// Envelope is a message accepted by the network.
type Envelope struct {
	ID          id.MessageID
	Source      id.ChainSelector
	Destination id.ChainSelector
	Message     messaging.Message
	Fee         uint64
}

// Result reports the outcome of one delivery attempt.
type Result struct {
	Envelope Envelope
	Err      error
}

type endpointKey struct {
	chain   id.ChainSelector
	address id.Address
}

// Network simulates the substrate between chains.
type Network struct {
	router id.Address
	fees   messaging.FeeSchedule
	logger *slog.Logger

	mu        sync.Mutex
	endpoints map[endpointKey]messaging.Receiver
	queue     []Envelope
	sent      map[id.MessageID]Envelope
	order     []id.MessageID
}

type Option func(*Network)

func WithFeeSchedule(fees messaging.FeeSchedule) Option {
	return func(n *Network) {
		n.fees = fees
	}
}

// WithRouterAddress fixes the address presented as caller on delivery.
func WithRouterAddress(addr id.Address) Option {
	return func(n *Network) {
		n.router = addr
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Network) {
		n.logger = logger
	}
}

func NewNetwork(opts ...Option) *Network {
	n := &Network{
		router:    id.NewRandomAddress(),
		fees:      messaging.DefaultFeeSchedule,
		logger:    slog.Default(),
		endpoints: make(map[endpointKey]messaging.Receiver),
		sent:      make(map[id.MessageID]Envelope),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// RouterAddress is the caller every receiver sees on delivery.
func (n *Network) RouterAddress() id.Address {
	return n.router
}

// Router returns the outbound router of the chain identified by source.
func (n *Network) Router(source id.ChainSelector) *Router {
	return &Router{network: n, source: source}
}

// Attach registers r as the receiver deployed at addr on chain.
func (n *Network) Attach(chain id.ChainSelector, addr id.Address, r messaging.Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[endpointKey{chain: chain, address: addr}] = r
}

// Quote prices msg under the current fee schedule.
func (n *Network) Quote(msg messaging.Message) uint64 {
	n.mu.Lock()
	fees := n.fees
	n.mu.Unlock()
	return fees.Quote(msg)
}

// SetFeeSchedule changes prices for subsequent quotes.
func (n *Network) SetFeeSchedule(fees messaging.FeeSchedule) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fees = fees
}

// Pending returns the number of queued, undelivered messages.
func (n *Network) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Sent returns every message released by a committed transition, oldest first.
func (n *Network) Sent() []Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Envelope, 0, len(n.order))
	for _, msgID := range n.order {
		out = append(out, n.sent[msgID])
	}
	return out
}

// DeliverNext delivers the oldest queued message. ok is false when the queue
// is empty. A failed delivery is dropped from the queue; use Redeliver to
// retry it.
func (n *Network) DeliverNext(ctx context.Context) (Result, bool) {
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.mu.Unlock()
		return Result{}, false
	}
	env := n.queue[0]
	n.queue = n.queue[1:]
	target, found := n.endpoints[endpointKey{chain: env.Destination, address: env.Message.Receiver}]
	n.mu.Unlock()

	res := Result{Envelope: env}
	if !found {
		res.Err = fmt.Errorf("no receiver at %s on chain %s", env.Message.Receiver, env.Destination)
	} else {
		res.Err = target.Receive(ctx, n.router, messaging.Delivery{
			MessageID:      env.ID,
			SourceSelector: env.Source,
			Sender:         env.Message.Sender,
			Data:           env.Message.Data,
		})
	}

	if res.Err != nil {
		n.logger.WarnContext(ctx, "delivery failed",
			"message_id", env.ID,
			"source", env.Source,
			"destination", env.Destination,
			"error", res.Err,
		)
	}
	return res, true
}

// DeliverAll drains the queue, including messages enqueued by deliveries.
func (n *Network) DeliverAll(ctx context.Context) []Result {
	var results []Result
	for {
		if ctx.Err() != nil {
			return results
		}
		res, ok := n.DeliverNext(ctx)
		if !ok {
			return results
		}
		results = append(results, res)
	}
}

// ErrUnknownMessage is returned by Redeliver for ids the network never released.
var ErrUnknownMessage = errors.New("unknown message")

// Redeliver queues a previously released message again, simulating
// at-least-once delivery.
func (n *Network) Redeliver(msgID id.MessageID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	env, ok := n.sent[msgID]
	if !ok {
		return ErrUnknownMessage
	}
	n.queue = append(n.queue, env)
	return nil
}

func (n *Network) release(env Envelope) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[env.ID] = env
	n.order = append(n.order, env.ID)
	n.queue = append(n.queue, env)
}

// Router is the outbound side of Network on one source chain.
type Router struct {
	network *Network
	source  id.ChainSelector
}

var _ messaging.Router = (*Router)(nil)

func (r *Router) GetFee(_ context.Context, _ id.ChainSelector, msg messaging.Message) (uint64, error) {
	return r.network.Quote(msg), nil
}

// Send accepts msg for dest. Inside a chain transition the message is released
// on commit; a reverted transition releases nothing.
func (r *Router) Send(ctx context.Context, dest id.ChainSelector, msg messaging.Message, fee uint64) (id.MessageID, error) {
	if dest == r.source {
		return id.MessageID{}, dErrors.New(dErrors.CodeInvalidConfig, "destination must differ from source chain")
	}
	if quote := r.network.Quote(msg); fee < quote {
		return id.MessageID{}, dErrors.New(dErrors.CodeInsufficientFee,
			fmt.Sprintf("fee %d below quote %d", fee, quote))
	}
	msg.Data = append([]byte(nil), msg.Data...)
	env := Envelope{
		ID:          id.NewMessageID(),
		Source:      r.source,
		Destination: dest,
		Message:     msg,
		Fee:         fee,
	}
	tx.AfterCommit(ctx, func() {
		r.network.release(env)
	})
	return env.ID, nil
}
