package registrar

import (
	"time"

	id "ccns/pkg/domain"
)

// DefaultMinGasLimit is the smallest destination execution budget accepted
// by EnableChain when no other minimum is configured.
const DefaultMinGasLimit uint64 = 50_000

// ChainLink enables one destination chain. Links are dispatched to in the
// order they were first enabled.
type ChainLink struct {
	Selector  id.ChainSelector
	Receiver  id.Address
	GasLimit  uint64
	EnabledAt time.Time
}

// Dispatch records one message handed to the substrate by Register.
type Dispatch struct {
	Selector  id.ChainSelector
	MessageID id.MessageID
	Fee       uint64
}

// Receipt is the result of a successful Register.
type Receipt struct {
	Name       id.Name
	Owner      id.Address
	Dispatches []Dispatch
}

// TotalFee sums the fees paid for every dispatch.
func (r *Receipt) TotalFee() uint64 {
	var total uint64
	for _, d := range r.Dispatches {
		total += d.Fee
	}
	return total
}
