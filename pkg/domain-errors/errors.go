// Package domainerrors defines the coded error taxonomy shared by the name
// service packages. Services return *Error values; transports map codes to
// their own status representation.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a failure class. Codes are stable strings so they can be
// surfaced to clients and used as metric labels.
type Code string

const (
	// Protocol failures.
	CodePermissionDenied Code = "permission_denied"
	CodeInvalidName      Code = "invalid_name"
	CodeInvalidConfig    Code = "invalid_config"
	CodeInsufficientFee  Code = "insufficient_fee"
	CodeUntrustedSource  Code = "untrusted_source"
	CodeUntrustedSender  Code = "untrusted_sender"
	CodeMalformedPayload Code = "malformed_payload"
	CodeAlreadyBound     Code = "already_bound"

	// Ambient failures.
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to callers except
// for CodeInternal, where transports should omit it.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is a shorthand for HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code found in err, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
