package messaging

import (
	"math"
	"math/bits"
)

// FeeSchedule prices a message as Base plus PerByte for every payload byte.
// Quotes saturate at math.MaxUint64.
type FeeSchedule struct {
	Base    uint64
	PerByte uint64
}

// DefaultFeeSchedule is used by substrates configured without a schedule.
var DefaultFeeSchedule = FeeSchedule{Base: 1_000, PerByte: 10}

// Quote prices msg.
func (f FeeSchedule) Quote(msg Message) uint64 {
	hi, variable := bits.Mul64(f.PerByte, uint64(len(msg.Data)))
	if hi != 0 {
		return math.MaxUint64
	}
	total, carry := bits.Add64(f.Base, variable, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return total
}
