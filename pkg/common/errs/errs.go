package errs

import (
	"errors"
	"fmt"
	"time"
)

// Code is the wire-level error code carried in API error envelopes.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeRateLimited  Code = "rate_limited"
	CodeInvalidState Code = "invalid_state"
	CodeInternal     Code = "internal"
)

// Error is the structured error carried through the core. Details is
// optional remediation data surfaced verbatim to the caller (expected
// chain id, suggested vaults, retry_at and similar).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed input. Never retried.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown resource. Also used for cross-workspace
// access so existence is not leaked.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// PolicyDenied reports a policy gate denial with remediation details.
// The code defaults to forbidden; callers with a more specific mapping
// (chain mismatch is invalid_state) override via WithCode.
func PolicyDenied(reason string, details map[string]any) *Error {
	return &Error{Code: CodeForbidden, Message: reason, Details: details}
}

// InvalidState reports an operation that is valid in shape but not in the
// resource's current state.
func InvalidState(message string, details map[string]any) *Error {
	return &Error{Code: CodeInvalidState, Message: message, Details: details}
}

// Persistence wraps a store failure. Transient; safe to retry with backoff.
func Persistence(err error) *Error {
	return &Error{Code: CodeInternal, Message: "persistence failure", Err: err}
}

// RateLimited carries the timestamp at which the caller may retry.
func RateLimited(message string, retryAt time.Time) *Error {
	return &Error{
		Code:    CodeRateLimited,
		Message: message,
		Details: map[string]any{"retry_at": retryAt.UTC().Format(time.RFC3339)},
	}
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// WithCode returns a copy of e carrying the given code.
func (e *Error) WithCode(code Code) *Error {
	clone := *e
	clone.Code = code
	return &clone
}

// From coerces an arbitrary error into an *Error, wrapping unknown errors
// as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeRateLimited:
		return 429
	case CodeInvalidState:
		return 409
	default:
		return 500
	}
}
