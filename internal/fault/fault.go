// Package fault defines the closed set of failure kinds surfaced by the
// credential store and the relay. The Kind constants below are the whole
// set; callers may switch on them exhaustively.
//
// Callers branch on the kind, never on the message text:
//
//	if errors.Is(err, fault.TransportError) { ... }
//
// The message keeps the underlying diagnostic for operators.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	StoreUnavailable Kind = "store_unavailable"
	StoreReadFailed  Kind = "store_read_failed"
	StoreWriteFailed Kind = "store_write_failed"
	InvalidMethod    Kind = "invalid_method"
	InvalidURL       Kind = "invalid_url"
	InvalidAPIKey    Kind = "invalid_api_key"
	TransportError   Kind = "transport_error"
	BodyReadError    Kind = "body_read_error"
)

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return string(k)
}

// Error is a failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string // e.g. "keychain get", "relay send"
	Err  error
}

// New tags err with kind. Op names the operation that failed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is New with a formatted diagnostic.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
