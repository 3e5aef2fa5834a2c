// Package sentinel holds the facts stores report about persisted state.
// Stores return them, usually wrapped; services translate them into coded
// domain errors. Validation and permission failures never use these.
package sentinel

import "errors"

var (
	// ErrNotFound: no record exists under the key.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: the write would leave a record out of range, such as
	// a fee balance below zero or above its maximum.
	ErrInvalidState = errors.New("invalid state")
)
