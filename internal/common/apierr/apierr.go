// Package apierr gives the gateway a small, typed error taxonomy so call
// sites can classify failures with errors.Is/errors.As instead of matching
// on message text, while the WS/HTTP layer still renders the exact
// human-readable strings the protocol promises.
package apierr

import (
	"errors"
	"fmt"
)

// Code classifies an error for protocol-layer handling.
type Code string

const (
	CodeValidation   Code = "validation"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal"
	CodeTimeout      Code = "timeout"
	CodeBusy         Code = "busy"
)

// Error wraps an underlying cause with a Code for classification.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no underlying cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap builds an *Error around an existing error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the Code of err if it is (or wraps) an *Error, else CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

var (
	// ErrSessionBusy is returned by a streaming call made while a turn is in flight.
	ErrSessionBusy = New(CodeBusy, "session is busy")
	// ErrNoAgentAvailable is surfaced when the registry has no healthy candidate.
	ErrNoAgentAvailable = New(CodeInternal, "no available agent found")
	// ErrWrapperNotFound is returned by registry lookups for an unknown wrapper id.
	ErrWrapperNotFound = New(CodeNotFound, "wrapper not found")
	// ErrDuplicateSessionID is returned when creating an RPC session whose id already exists.
	ErrDuplicateSessionID = New(CodeValidation, "session id already exists")
)
