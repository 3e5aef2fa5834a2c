// Package messaging defines the ports of the cross-chain messaging substrate
// as consumed by the registrar (outbound) and the receiver (inbound).
package messaging

//go:generate mockgen -source=messaging.go -destination=mocks/mocks.go -package=mocks Router,Receiver

import (
	"context"
	"errors"

	id "ccns/pkg/domain"
)

// Message is an outbound message handed to the substrate by a sender
// contract on the source chain.
type Message struct {
	Sender   id.Address
	Receiver id.Address
	Data     []byte
	GasLimit uint64
}

// Router is the outbound side of the substrate on one source chain.
//
// GetFee quotes the fee for delivering msg to dest at call time. Send hands the
// message over together with the paid fee; a fee below the current quote is
// rejected with CodeInsufficientFee. A message accepted inside a chain
// transition is released for delivery only when that transition commits.
type Router interface {
	GetFee(ctx context.Context, dest id.ChainSelector, msg Message) (uint64, error)
	Send(ctx context.Context, dest id.ChainSelector, msg Message, fee uint64) (id.MessageID, error)
}

// Delivery is what the substrate hands to a receiver on the destination chain.
// SourceSelector and Sender are authenticated by the substrate.
type Delivery struct {
	MessageID      id.MessageID
	SourceSelector id.ChainSelector
	Sender         id.Address
	Data           []byte
}

// Receiver is the inbound entrypoint invoked by the substrate. caller is the
// address of the delivering router. Receive must fail, not silently succeed,
// when the delivery is rejected, and mark that failure with Reject.
type Receiver interface {
	Receive(ctx context.Context, caller id.Address, delivery Delivery) error
}

// ErrRejected matches errors marked by Reject: the receiver refused the
// delivery for its caller, origin or content, and redelivering it cannot
// succeed. Any other Receive error is a failure of the receiving chain.
var ErrRejected = errors.New("delivery rejected")

type rejection struct {
	err error
}

func (r *rejection) Error() string { return r.err.Error() }

func (r *rejection) Unwrap() error { return r.err }

func (r *rejection) Is(target error) bool { return target == ErrRejected }

// Reject marks err as a final rejection. The coded error inside stays
// reachable through errors.As.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &rejection{err: err}
}

// IsRejected reports whether err was marked by Reject.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
