// Package xferrors defines the error taxonomy every repair-engine operation returns through,
// replacing the teacher's goto-fail/goto-cancel unwind chains (pkg/xfs/xfs.go) with typed,
// wrapped errors per spec.md §7.
package xferrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a repair-engine failure so callers can decide whether to retry, downgrade to a
// diagnostic (no_modify mode), or abort the run.
type Kind int

const (
	// KindNoSpace: the allocator cannot satisfy a request. May be locally recoverable by
	// retrying after other deferred items drain; otherwise fatal.
	KindNoSpace Kind = iota
	// KindCorruption: an on-disk structure failed verification.
	KindCorruption
	// KindIoError: device I/O failed.
	KindIoError
	// KindOutOfMemory: resource exhaustion.
	KindOutOfMemory
	// KindNotSupported: the requested feature combination is invalid.
	KindNotSupported
	// KindBusy/KindAgain: deferred-op requeue signal, never surfaced to the user.
	KindBusy
	KindAgain
	// KindInvalidArgument: malformed CLI input or converter expression.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNoSpace:
		return "no space"
	case KindCorruption:
		return "corruption"
	case KindIoError:
		return "I/O error"
	case KindOutOfMemory:
		return "out of memory"
	case KindNotSupported:
		return "not supported"
	case KindBusy:
		return "busy"
	case KindAgain:
		return "again"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error is a typed, wrapped failure. Subject names the offending group/inode/block/token per
// spec.md §7's "fatal errors print a message referencing the offending group/inode/block".
type Error struct {
	Kind    Kind
	Subject string
	cause   error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s", e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a typed error with no underlying cause.
func New(kind Kind, subject string) *Error {
	return &Error{Kind: kind, Subject: subject}
}

// Wrap attaches a Kind and subject to an underlying error, preserving its cause chain so
// errors.Is/errors.As and errors.Cause keep working.
func Wrap(kind Kind, subject string, cause error) *Error {
	if cause == nil {
		return New(kind, subject)
	}
	return &Error{Kind: kind, Subject: subject, cause: errors.Wrap(cause, subject)}
}

// Is reports whether err (or anything in its chain) is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if xe, ok := err.(*Error); ok {
			e = xe
			if e.Kind == kind {
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Requeue reports whether err is a KindBusy/KindAgain signal that the deferred-op engine should
// swallow internally rather than surface to the user (spec.md §7 propagation policy).
func Requeue(err error) bool {
	return Is(err, KindBusy) || Is(err, KindAgain)
}

// Cause returns the deepest underlying error, matching github.com/pkg/errors semantics.
func Cause(err error) error {
	return errors.Cause(err)
}
