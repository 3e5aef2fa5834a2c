package domain

import (
	"github.com/google/uuid"

	dErrors "ccns/pkg/domain-errors"
)

// MessageID identifies one cross-chain message accepted by the substrate.
type MessageID uuid.UUID

// NewMessageID returns a fresh random message id.
func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

// ParseMessageID parses a message id from external input.
func ParseMessageID(s string) (MessageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, dErrors.New(dErrors.CodeBadRequest, "invalid message id")
	}
	if u == uuid.Nil {
		return MessageID{}, dErrors.New(dErrors.CodeBadRequest, "message id cannot be nil")
	}
	return MessageID(u), nil
}

func (m MessageID) String() string {
	return uuid.UUID(m).String()
}

// IsNil reports whether the id was never assigned.
func (m MessageID) IsNil() bool {
	return uuid.UUID(m) == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler.
func (m MessageID) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike ParseMessageID it
// accepts the nil id so zero values round-trip.
func (m *MessageID) UnmarshalText(text []byte) error {
	u, err := uuid.ParseBytes(text)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid message id")
	}
	*m = MessageID(u)
	return nil
}
