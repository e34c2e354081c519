package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures. Callers branch on the kind, never on
// error strings.
type Kind string

const (
	KindUnknown            Kind = "UNKNOWN"
	KindNotFound           Kind = "NOT_FOUND"
	KindInsufficientStock  Kind = "INSUFFICIENT_STOCK"
	KindOverflow           Kind = "OVERFLOW"
	KindUnderflow          Kind = "UNDERFLOW"
	KindIllegalTransition  Kind = "ILLEGAL_TRANSITION"
	KindInvalidOperation   Kind = "INVALID_OPERATION"
	KindConflict           Kind = "CONFLICT"
	KindTimeout            Kind = "TIMEOUT"
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
