package model

import (
	"errors"
	"fmt"
)

// Kind is the normalized failure taxonomy surfaced by the application layer.
type Kind string

const (
	// KindValidation indicates malformed or missing borrower identity data.
	KindValidation Kind = "validation"
	// KindNotFound indicates an unknown borrower or no viable installment plan.
	KindNotFound Kind = "not_found"
	// KindAuth indicates credential acquisition failed or was rejected twice.
	KindAuth Kind = "auth"
	// KindTimeout indicates the margin never became ready within the polling budget.
	KindTimeout Kind = "timeout"
	// KindRejected indicates the provider explicitly rejected the consent term.
	KindRejected Kind = "rejected"
	// KindUpstream indicates any other non-2xx or transport failure from a collaborator.
	KindUpstream Kind = "upstream"
	// KindInternal is the fallback for errors that carry no kind.
	KindInternal Kind = "internal"
)

// Sentinel errors shared between adapters and the application layer.
var (
	// ErrUnauthorized is returned by driven adapters when the provider answers 401.
	// TokenCache treats it as a signal to renew the credential and retry once.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPersonNotFound is returned by the person lookup when the CPF is unknown.
	ErrPersonNotFound = errors.New("person not found")

	// ErrNoViablePlan is returned by the negotiator when no installment option
	// was accepted across all tried financing configs.
	ErrNoViablePlan = errors.New("no viable installment plan")
)

// Error wraps a failure with its taxonomy kind. Op names the step that failed
// ("create_term", "await_margin"). Detail carries the provider's raw payload or
// human-readable reason when one is available.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Detail  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

// Unwrap supports errors.Is and errors.As on the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new taxonomy error.
func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// WithDetail returns e after setting the provider detail.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf extracts the taxonomy kind from err. Errors that are not an *Error
// map to KindInternal; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf returns the provider detail attached to err, if any.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}

// Validationf builds a KindValidation error with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return NewError(KindValidation, op, fmt.Sprintf(format, args...), nil)
}

// StatusError is returned by HTTP adapters for non-2xx responses. Body holds
// the raw response payload, truncated by the adapter.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
