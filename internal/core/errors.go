// Package core holds small cross-cutting primitives (errors, clock,
// logging, ID generation) shared by every other package in this
// module, instead of each subsystem growing its own copy.
package core

import "fmt"

// Kind is the semantic error taxonomy from the control plane's error
// handling design: handlers map it to an HTTP status, background loops
// map it to a retry/backoff decision.
type Kind string

const (
	// KindNotFound means the referenced entity does not exist.
	KindNotFound Kind = "not_found"
	// KindConflict means a uniqueness constraint or admission
	// conflict prevented the operation.
	KindConflict Kind = "conflict"
	// KindInvalid means the request failed schema or semantic
	// validation.
	KindInvalid Kind = "invalid"
	// KindUnauthorized means the caller's credentials were missing
	// or rejected.
	KindUnauthorized Kind = "unauthorized"
	// KindUpstream means a remote dependency (source API, cluster
	// API) was unreachable or returned an error.
	KindUpstream Kind = "upstream"
	// KindTransient means the operation can be retried as-is.
	KindTransient Kind = "transient"
	// KindFatal means the operation must not be retried.
	KindFatal Kind = "fatal"
)

// Error is the structured error type returned by every package in this
// module. Handlers and background loops switch on Kind rather than
// parsing error strings.
type Error struct {
	Kind   Kind
	Detail string
	// Code is a stable, machine-readable identifier surfaced to API
	// clients alongside Detail (e.g. "project_not_found").
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs an Error of the given kind with a stable code and
// human-readable detail.
func NewError(kind Kind, code, detail string) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail}
}

// Wrap constructs an Error of the given kind that wraps an underlying
// error, preserving it for errors.Is/errors.As.
func Wrap(kind Kind, code, detail string, err error) *Error {
	return &Error{Kind: kind, Code: code, Detail: detail, Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and
// KindFatal otherwise — an un-typed error is treated conservatively as
// non-retriable.
func KindOf(err error) Kind {
	var ce *Error
	if asError(err, &ce) {
		return ce.Kind
	}
	return KindFatal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
