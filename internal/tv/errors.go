package tv

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures by how they propagate.
type ErrorKind string

const (
	// NotFound: a missing source/target path, version, snapshot or repository.
	NotFound ErrorKind = "not-found"
	// Precondition: the request conflicts with existing state or configuration.
	Precondition ErrorKind = "precondition"
	// PartialFailure: some files in a bulk operation failed. Only surfaced as a
	// top-level error when no file succeeded.
	PartialFailure ErrorKind = "partial-failure"
	// PolicyAmbiguous: a conflict the configured policy deliberately left unresolved.
	PolicyAmbiguous ErrorKind = "policy-ambiguous"
	// Cancelled: the context was cancelled or timed out mid-operation.
	Cancelled ErrorKind = "cancelled"
	// Internal: anything else.
	Internal ErrorKind = "internal"
)

// Error is a classified engine error.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		return e.Message + ": " + e.Cause.Error()
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func notFoundf(format string, args ...any) *Error {
	return NewError(NotFound, fmt.Sprintf(format, args...), nil)
}

func preconditionf(format string, args ...any) *Error {
	return NewError(Precondition, fmt.Sprintf(format, args...), nil)
}

// IsKind reports whether any error in err's tree is an *Error of the given
// kind, including causes wrapped by another *Error and errors.Join branches.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e != nil && e.Kind == kind {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, branch := range u.Unwrap() {
				if IsKind(branch, kind) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}

// KindOf returns the kind of the first *Error in err's tree, or Internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
