// Package fault defines the error kinds shared by every core component.
//
// Each component wraps collaborator failures in a *Error carrying the kind,
// the component name and the failing operation. The outer API maps kinds to
// transport status codes; nothing in the core inspects error strings.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy and transport mapping.
type Kind int

const (
	// KindUnknown is the zero value; errors without a kind classify as this.
	KindUnknown Kind = iota

	// KindRequest means the caller supplied invalid input.
	KindRequest

	// KindNotFound means the entity or collection does not exist.
	KindNotFound

	// KindConflict means a state-machine violation (publish twice, send to
	// a closed session).
	KindConflict

	// KindUpstream means a transient collaborator failure, retryable up to
	// the component's cap.
	KindUpstream

	// KindTimeout means a deadline was exceeded.
	KindTimeout

	// KindContract means model output failed all JSON recovery attempts.
	KindContract

	// KindCorruptSource means the uploaded document is unreadable.
	KindCorruptSource

	// KindClosed means the operation targets a terminal entity.
	KindClosed
)

// String returns the uppercase tag for the kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindUpstream:
		return "UPSTREAM"
	case KindTimeout:
		return "TIMEOUT"
	case KindContract:
		return "CONTRACT"
	case KindCorruptSource:
		return "CORRUPT_SOURCE"
	case KindClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type used across the core.
type Error struct {
	Kind      Kind   // Classification for propagation and transport mapping
	Component string // Component that produced the error (e.g. "llm", "rag")
	Operation string // Operation that failed (e.g. "ingest", "publish")
	Message   string // Human-readable detail
	Err       error  // Underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s: %s", e.Component, e.Operation, e.Kind, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, &Error{Kind: k}) works with
// sentinel comparisons built by New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Component == "" && t.Operation == ""
}

// New creates an error with the given kind.
func New(kind Kind, component, operation, message string) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message}
}

// Wrap creates an error with the given kind and underlying cause.
func Wrap(kind Kind, component, operation, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message, Err: err}
}

// KindOf classifies any error. Context deadline and cancellation errors
// classify as Timeout; unwrapped third-party errors classify as Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// IsKind reports whether err classifies as the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the core may retry the operation that produced
// err. Only Upstream and Timeout are retryable; Request and Contract never.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstream, KindTimeout:
		return true
	default:
		return false
	}
}
