package domain

import (
	"strconv"

	dErrors "ccns/pkg/domain-errors"
)

// ChainSelector is the opaque routing identifier of a chain on the messaging
// substrate. It carries no ordering or arithmetic meaning.
type ChainSelector uint64

// ParseChainSelector parses a decimal selector from external input.
func ParseChainSelector(s string) (ChainSelector, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "chain selector cannot be empty")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "chain selector must be an unsigned integer")
	}
	return ChainSelector(v), nil
}

func (c ChainSelector) String() string {
	return strconv.FormatUint(uint64(c), 10)
}
