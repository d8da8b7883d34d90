// Package apperr defines the typed error taxonomy used across the booking
// engine so handlers can map failures to HTTP status codes without sniffing
// error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindPolicyViolation Kind = "policy_violation"
	KindGateway         Kind = "gateway_error"
	KindInternal        Kind = "internal"
)

// Error is an application error carrying a Kind that the HTTP layer maps to
// a status code, plus an optional wrapped cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode returns the HTTP status code this error kind maps to.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func new(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Validation(format string, args ...interface{}) *Error {
	return new(KindValidation, nil, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return new(KindNotFound, nil, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return new(KindUnauthorized, nil, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return new(KindForbidden, nil, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return new(KindConflict, nil, format, args...)
}

func PolicyViolation(format string, args ...interface{}) *Error {
	return new(KindPolicyViolation, nil, format, args...)
}

func Gateway(cause error, format string, args ...interface{}) *Error {
	return new(KindGateway, cause, format, args...)
}

func Internal(cause error, format string, args ...interface{}) *Error {
	return new(KindInternal, cause, format, args...)
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
