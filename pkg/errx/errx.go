// Package errx provides structured errors with stable codes, categories, and
// HTTP status hints. Each module registers its codes on a Registry; errors
// carry optional details for logging and a public message safe to return to
// callers.
package errx

import (
	"errors"
	"fmt"
)

// Error is a rich error with a stable code and optional context.
type Error struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Type       Type           `json:"type"`
	HTTPStatus int            `json:"http_status"`
	Details    map[string]any `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two errx errors by code, so callers can compare against a
// registry constructor's result with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// WithDetail attaches a key/value pair for diagnostics. Chainable.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error. Chainable.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// New creates an unregistered error; the code defaults to the type name.
func New(message string, t Type) *Error {
	return &Error{
		Code:       string(t),
		Message:    message,
		Type:       t,
		HTTPStatus: t.httpStatus(),
	}
}

// Wrap annotates an existing error. If err is already an *Error its code is
// preserved; returns nil when err is nil.
func Wrap(err error, message string, t Type) *Error {
	if err == nil {
		return nil
	}
	var inner *Error
	if errors.As(err, &inner) {
		return &Error{
			Code:       inner.Code,
			Message:    message,
			Type:       t,
			HTTPStatus: inner.HTTPStatus,
			Details:    inner.Details,
			cause:      err,
		}
	}
	return &Error{
		Code:       string(t),
		Message:    message,
		Type:       t,
		HTTPStatus: t.httpStatus(),
		cause:      err,
	}
}

// Internal is shorthand for New(message, TypeInternal).
func Internal(message string) *Error { return New(message, TypeInternal) }

// Unavailable is shorthand for New(message, TypeUnavailable).
func Unavailable(message string) *Error { return New(message, TypeUnavailable) }

// Validation is shorthand for New(message, TypeValidation).
func Validation(message string) *Error { return New(message, TypeValidation) }

// IsType reports whether err is an errx error of the given type.
func IsType(err error, t Type) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}
