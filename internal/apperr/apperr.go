// Package apperr defines the error taxonomy shared by every node operation.
// Handlers map kinds to HTTP status codes in exactly one place.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed, missing, or out-of-range input.
	KindValidation
	// KindNotFound marks an unknown entity id.
	KindNotFound
	// KindForbidden marks a caller lacking the role or party authorization.
	KindForbidden
	// KindConflict marks a state-machine or balance invariant violation.
	KindConflict
	// KindTransient marks an unreachable or timed-out peer / chain RPC.
	KindTransient
)

// Error is a kinded error. Operations return it directly; the router maps it.
type Error struct {
	K   Kind
	Msg string
}

func (e *Error) Error() string { return e.Msg }

func newf(k Kind, format string, args ...any) error {
	return &Error{K: k, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error { return newf(KindValidation, format, args...) }
func NotFoundf(format string, args ...any) error   { return newf(KindNotFound, format, args...) }
func Forbiddenf(format string, args ...any) error  { return newf(KindForbidden, format, args...) }
func Conflictf(format string, args ...any) error   { return newf(KindConflict, format, args...) }
func Transientf(format string, args ...any) error  { return newf(KindTransient, format, args...) }

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.K
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
