// Package apperr defines the error taxonomy shared across the ingestion
// pipeline, the metrics engine, and the API layer. Errors are sentinel kinds
// wrapped with context, compatible with errors.Is/As, mirroring the
// teacher's database-level error wrapping but elevated to a package every
// layer can import without a cyclic dependency on database.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy of section 7 of the specification.
type Kind int

const (
	KindUnknown Kind = iota
	KindUpstreamUnavailable
	KindRateLimited
	KindDecodeError
	KindConflictSkipped
	KindNotFound
	KindConflict
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindDecodeError:
		return "decode_error"
	case KindConflictSkipped:
		return "conflict_skipped"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged, context-wrapped error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on Kind alone, so callers can do
// errors.Is(err, apperr.NotFound) without caring about Op/Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func sentinel(k Kind) *Error { return &Error{Kind: k, Message: k.String()} }

// Sentinels for use with errors.Is.
var (
	UpstreamUnavailable = sentinel(KindUpstreamUnavailable)
	RateLimited         = sentinel(KindRateLimited)
	DecodeError         = sentinel(KindDecodeError)
	ConflictSkipped     = sentinel(KindConflictSkipped)
	NotFound            = sentinel(KindNotFound)
	Conflict            = sentinel(KindConflict)
	Invariant           = sentinel(KindInvariant)
)

// New builds a new tagged error for op/message, optionally wrapping cause.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// Is reports whether err carries the given kind, walking the chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or KindUnknown if it isn't tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
