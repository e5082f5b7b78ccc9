package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput = errors.New("empty input")

	// Extraction failures.
	ErrServiceUnavailable = errors.New("language service unavailable")
	ErrUnparseable        = errors.New("unparseable extraction result")

	// Normalization failures.
	ErrMissingAmount = errors.New("missing amount")
	ErrZeroAmount    = errors.New("amount must not be zero")
	ErrInvalidDate   = errors.New("invalid date")

	// Ledger store failures.
	ErrAuthFailure = errors.New("ledger authentication failed")
	ErrRateLimited = errors.New("ledger rate limited")
	ErrUnavailable = errors.New("ledger unavailable")
)

// StoreError is returned by ledger adapters. Kind is one of ErrAuthFailure,
// ErrRateLimited or ErrUnavailable. Ambiguous is set when the request may
// have been applied even though the call failed.
type StoreError struct {
	Op        string
	Kind      error
	Ambiguous bool
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Ambiguous {
		msg += " (outcome unknown)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsAmbiguous reports whether err carries a store failure whose outcome is
// unknown.
func IsAmbiguous(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Ambiguous
}
