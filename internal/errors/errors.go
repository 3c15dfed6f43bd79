// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so a failure can be routed to the right place: a failed
// result for a single generation request, a backoff in the poll loop, or a fatal
// startup error.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// and every E is compatible with the standard errors.Is / errors.As helpers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Transport indicates a network failure talking to a backend or the control plane.
	Transport Kind = "transport"
	// Protocol indicates a malformed response or an unexpected event from a backend.
	Protocol Kind = "protocol"
	// Config indicates missing or invalid configuration (no API key, nothing reachable).
	Config Kind = "config"
	// NotFound indicates a model that is not registered or not present on its backend.
	NotFound Kind = "not_found"
	// Unsupported indicates a provider asked for a capability it does not have.
	Unsupported Kind = "unsupported"
	// Validation indicates a backend rejected the submitted job.
	Validation Kind = "validation"
	// Timeout indicates a job exceeded its completion ceiling.
	Timeout Kind = "timeout"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the outermost E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// MessageOf returns the human-friendly message of the outermost E, falling back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *E
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
