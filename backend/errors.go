package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies backend failures.
type ErrorKind string

const (
	// KindUnconfigured means required credentials are absent.
	KindUnconfigured ErrorKind = "unconfigured"

	// KindUpstream wraps any vendor-side failure.
	KindUpstream ErrorKind = "upstream"

	// KindCancelled means the caller's cancellation signal fired.
	KindCancelled ErrorKind = "cancelled"

	// KindUnknownBackend means the registry has no such identifier.
	KindUnknownBackend ErrorKind = "unknown_backend"
)

// Error represents a failure from a backend adapter or the registry.
type Error struct {
	Kind    ErrorKind
	Backend string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend %s: %s: %v", e.Backend, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s backend %s: %s", e.Backend, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}

// WrapErr converts an arbitrary adapter failure into a *Error, mapping
// context cancellation and deadline expiry to KindCancelled and
// everything else to KindUpstream. Existing *Error values pass through.
func WrapErr(name string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCancelled, Backend: name, Message: "call cancelled", Err: err}
	}
	return &Error{Kind: KindUpstream, Backend: name, Message: "vendor call failed", Err: err}
}
