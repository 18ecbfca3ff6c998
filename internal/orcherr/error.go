// Package orcherr defines the error kinds surfaced across the execution
// pipeline (§7), replacing exception-based control flow with typed result
// values distinguishable from transport errors.
package orcherr

import "fmt"

// Kind is one of the error kinds surfaced to the caller in §7.
type Kind string

const (
	KindMalformed         Kind = "MALFORMED"
	KindDuplicateOp       Kind = "DUPLICATE_OPERATION"
	KindRiskDenied        Kind = "RISK_DENIED"
	KindRouteUnavailable  Kind = "ROUTE_UNAVAILABLE"
	KindVenueUnreachable  Kind = "VENUE_UNREACHABLE"
	KindVenueRejected     Kind = "VENUE_REJECTED"
	KindTimeout           Kind = "TIMEOUT"
	KindInternal          Kind = "INTERNAL"
)

// Error carries a Kind, an optional sub-reason (e.g. a risk-denial reason),
// and the wrapped cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s(%s): %v", e.Kind, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap constructs an *Error wrapping err.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Is allows errors.Is(err, orcherr.KindX) style comparisons against a Kind
// sentinel by matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason != "" {
		return e.Kind == t.Kind && e.Reason == t.Reason
	}
	return e.Kind == t.Kind
}
