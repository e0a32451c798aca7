// Package errors provides structured, machine-readable error codes for the
// engine and the auth service.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Transport errors
	CodeTransportTimeout Code = "TRANSPORT_TIMEOUT"
	CodeTransportSend    Code = "TRANSPORT_SEND"

	// Auth errors
	CodeAuthInvalidNonce    Code = "AUTH_INVALID_NONCE"
	CodeAuthInvalidTag      Code = "AUTH_INVALID_TAG"
	CodeAuthInvalidAddress  Code = "AUTH_INVALID_ADDRESS"
	CodeAuthInvalidSlot     Code = "AUTH_INVALID_SLOT"
	CodeAuthSessionNotFound Code = "AUTH_SESSION_NOT_FOUND"
	CodeAuthInvalidGrant    Code = "AUTH_INVALID_GRANT"

	// Payment errors. Send failures are recorded as data for the UI
	// rather than propagated as faults; missing provider credentials
	// surface at startup.
	CodePaymentFailed        Code = "PAYMENT_FAILED"
	CodePaymentNotConfigured Code = "PAYMENT_NOT_CONFIGURED"
)

// Error pairs a code with a human-readable reason and an optional cause.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

// New creates an Error with the given code and reason.
func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Wrap creates an Error with the given code and underlying cause.
func Wrap(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CodeOf extracts the code from an error, or CodeUnknown when the error does
// not carry one.
func CodeOf(err error) Code {
	var structured *Error
	if stderrors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}
