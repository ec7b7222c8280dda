package apperr

import (
	"errors"
	"net/http"
)

// Kind is the stable, machine readable class of a failure.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindUnauthorized        Kind = "unauthorized"
	KindFlagged             Kind = "flagged"
	KindExpired             Kind = "expired"
	KindConflict            Kind = "conflict"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Error is the domain error returned by every service operation.
type Error struct {
	Kind Kind
	// Reason distinguishes failures within a kind, e.g. "self_transfer".
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and, when set on the target, reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New builds an error of the given kind.
func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, reason, message string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message, Err: err}
}

// Internal wraps an unexpected infrastructure error.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: "internal", Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason of err, or "" when err is not an *Error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code handlers reply with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientFunds, KindFlagged:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindExpired:
		return http.StatusGone
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
