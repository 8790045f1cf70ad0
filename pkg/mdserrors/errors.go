// Package mdserrors defines the closed error-kind set surfaced by the metadata core.
//
// Every externally observable failure collapses to exactly one Kind, carried in the response
// frame as its numeric Code(). Internally, errors still carry a wrapped cause (with
// stacktrace, via github.com/pkg/errors) for logging.
package mdserrors

import (
	"errors"
	"fmt"

	perrors "github.com/pkg/errors"
)

// Kind is the closed set of externally observable failure kinds (spec §7).
type Kind int

const (
	// OK is the zero value: no error.
	OK Kind = iota

	// NotFound: an inode, name, or directory is absent where one was expected.
	NotFound

	// StorageFailure: the underlying device rejected an operation or returned a short count.
	StorageFailure

	// InvalidState: partition or component is in a state that does not admit the request.
	InvalidState

	// OwnershipViolation: caller asked to mutate a partition not owned locally.
	OwnershipViolation

	// Exhausted: inode-number band used up.
	Exhausted

	// ConcurrentConflict: an einode name is already present at a target directory.
	ConcurrentConflict

	// ParentUnknown: parent-cache miss and storage fallback also failed.
	ParentUnknown
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case NotFound:
		return "NotFound"
	case StorageFailure:
		return "StorageFailure"
	case InvalidState:
		return "InvalidState"
	case OwnershipViolation:
		return "OwnershipViolation"
	case Exhausted:
		return "Exhausted"
	case ConcurrentConflict:
		return "ConcurrentConflict"
	case ParentUnknown:
		return "ParentUnknown"
	}
	panic(fmt.Sprintf("unknown mdserrors.Kind %d", int(k)))
}

// Code is the numeric error code carried in the response frame (spec §6/§7).
func (k Kind) Code() int { return int(k) }

// Error is the concrete error type used throughout the core: a Kind plus a richly-formatted
// cause, following pkg/errors/errors.go's RichError/Wrap pattern.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
}

// Format forwards to the wrapped cause so that "%+v" still prints a stacktrace when present.
func (e *Error) Format(s fmt.State, verb rune) {
	if f, ok := e.cause.(fmt.Formatter); ok {
		f.Format(s, verb)
		return
	}
	fmt.Fprint(s, e.Error())
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given Kind with a formatted message, stacktrace-carrying.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: perrors.Errorf(format, args...)}
}

// Wrap attaches a Kind to an arbitrary lower-level error, preserving it as the cause.
// A nil err yields a nil *Error (returned as untyped nil via errOrNil to avoid the classic
// typed-nil-in-interface trap at call sites that return `error`).
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: perrors.Wrapf(err, format, args...)}
}

// KindOf extracts the Kind of err, defaulting to StorageFailure for errors the core did not
// originate (e.g. raw I/O errors bubbling up verbatim per spec §7 propagation policy).
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return StorageFailure
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
