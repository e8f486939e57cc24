package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an address that has never been initialized. It
	// is the expected first-run condition, not a failure.
	ErrNotFound = errors.New("account not found")
	// ErrNetwork reports a transport failure or timeout.
	ErrNetwork = errors.New("ledger unreachable")
	// ErrRejected reports a transaction or read refused by the ledger or
	// its program.
	ErrRejected = errors.New("rejected by ledger")
)

// Kind classifies ledger errors for callers that annotate UI state.
type Kind string

const (
	KindNone     Kind = ""
	KindNotFound Kind = "account_not_found"
	KindNetwork  Kind = "network"
	KindRejected Kind = "rejected_by_ledger"
)

// Error carries the failed operation alongside its kind and cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound wraps ErrNotFound for op.
func NotFound(op string) error {
	return &Error{Kind: ErrNotFound, Op: op}
}

// NetworkError wraps a transport failure.
func NetworkError(op string, err error) error {
	return &Error{Kind: ErrNetwork, Op: op, Err: err}
}

// Rejected wraps a refusal with a formatted reason.
func Rejected(op string, format string, args ...interface{}) error {
	return &Error{Kind: ErrRejected, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf maps any error returned by a Session to its kind. Context
// cancellation and deadlines are network errors; anything unrecognized is
// treated as a network error too, since the caller may retry it.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrNetwork),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindNetwork
	default:
		return KindNetwork
	}
}
