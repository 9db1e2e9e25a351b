// Package apperr defines the failure taxonomy shared by the services and the
// HTTP layer. Every error returned across a service boundary carries one of
// the codes below so callers can branch on it without parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-checkable failure class.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeMalformed        Code = "MALFORMED"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeExpired          Code = "EXPIRED"
	CodeSelfExchange     Code = "SELF_EXCHANGE"
	CodeConflict         Code = "CONFLICT"
	CodeExhausted        Code = "EXHAUSTED"
	CodeUpdateFailed     Code = "UPDATE_FAILED"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeRateLimited      Code = "RATE_LIMITED"
)

// Error pairs a Code with a caller-safe message. Cause is kept for logs only.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an error with the given code and message that unwraps to cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Malformed(msg string) error    { return New(CodeMalformed, msg) }
func Unauthorized(msg string) error { return New(CodeUnauthorized, msg) }
func NotFound(msg string) error     { return New(CodeNotFound, msg) }
func Conflict(msg string) error     { return New(CodeConflict, msg) }

// StoreUnavailable wraps a backing-store failure that is not a uniqueness
// conflict.
func StoreUnavailable(msg string, cause error) error {
	return Wrap(CodeStoreUnavailable, msg, cause)
}

// CodeOf extracts the code from err, or CodeUnknown when err carries none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
