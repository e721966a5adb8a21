// Package domainerrors carries typed error codes from services to transports.
//
// Services return *Error values created with New or Wrap; handlers map the
// Code to an HTTP status and an OAuth "error" string without inspecting
// messages. Infrastructure facts (not found, already used) travel as sentinel
// errors from pkg/platform/sentinel and are translated at the service boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Values mirror the OAuth 2.0 error
// registry where one exists so they can be rendered verbatim.
type Code string

const (
	CodeInvalidRequest       Code = "invalid_request"
	CodeInvalidClient        Code = "invalid_client"
	CodeInvalidGrant         Code = "invalid_grant"
	CodeUnsupportedGrantType Code = "unsupported_grant_type"
	CodeInvalidCredentials   Code = "invalid_credentials"
	CodeAccessDenied         Code = "access_denied"
	CodeUnauthorized         Code = "unauthorized"
	CodeConflict             Code = "conflict"
	CodeNotFound             Code = "not_found"
	CodeRateLimited          Code = "rate_limited"
	CodeInternal             Code = "server_error"
)

// Error is a domain error with a stable code and a human readable message.
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

// Is reports equality on code and message so tests can use errors.Is with a
// freshly constructed value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a domain error.
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

// CodeOf returns the code of the outermost domain error in err's chain, or
// CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Message returns the message of the outermost domain error, or "" when err
// carries none.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
