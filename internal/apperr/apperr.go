// Package apperr defines the error kinds surfaced by billing, call and
// verification operations. Packages declare their own sentinels with New and
// wrap causes with Wrap; errors.Is matches on Kind.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized           Kind = "unauthorized"
	KindForbidden              Kind = "forbidden"
	KindNotFound               Kind = "not_found"
	KindInvalidArgument        Kind = "invalid_argument"
	KindInvalidState           Kind = "invalid_state"
	KindUnsupportedDestination Kind = "unsupported_destination"
	KindCallerIDNotVerified    Kind = "caller_id_not_verified"
	KindInsufficientBalance    Kind = "insufficient_balance"
	KindTopupFailed            Kind = "topup_failed"
	KindAlreadyVerified        Kind = "already_verified"
	KindCodeExpired            Kind = "code_expired"
	KindTooManyAttempts        Kind = "too_many_attempts"
	KindInvalidCode            Kind = "invalid_code"
	KindRateLimited            Kind = "rate_limited"
	KindProvider               Kind = "provider_error"
	KindInternal               Kind = "internal"
)

// Error carries a Kind, a caller-safe message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a cause. The cause is kept for logs and errors.Is/As but is
// not part of Msg.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Errorf builds an error of kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match when target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-safe message of the first *Error in err's chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

var (
	ErrNotFound        = New(KindNotFound, "not found")
	ErrInvalidArgument = New(KindInvalidArgument, "invalid argument")
	ErrInvalidState    = New(KindInvalidState, "invalid state")
	ErrForbidden       = New(KindForbidden, "forbidden")
)
