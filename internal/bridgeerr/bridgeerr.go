// Package bridgeerr implements the error taxonomy from spec.md §7 as a
// small set of sentinel kinds that every subsystem wraps its failures in,
// so the dispatcher (C11) can classify a failure and attach a remediation
// hint without string-matching error messages.
package bridgeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one taxonomy entry from spec.md §7. It is not a Go error type in
// its own right — it is compared with errors.Is against the sentinel Kind
// values below, after wrapping with Wrap.
type Kind struct {
	name string
}

func (k Kind) Error() string { return k.name }

var (
	ValidationError       = Kind{"validation_error"}
	NoServerForExtension   = Kind{"no_server_for_extension"}
	AtCapacity             = Kind{"at_capacity"}
	ServerCrashed          = Kind{"server_crashed"}
	ServerRestarted        = Kind{"server_restarted"}
	ConnectionLost         = Kind{"connection_lost"}
	Timeout                = Kind{"timeout"}
	CapabilityUnsupported  = Kind{"capability_unsupported"}
	OverlappingEdits       = Kind{"overlapping_edits"}
	RangeOutOfBounds       = Kind{"range_out_of_bounds"}
	ConcurrentEdit         = Kind{"concurrent_edit"}
	WouldCreateCycle       = Kind{"would_create_cycle"}
	ImporterConflict       = Kind{"importer_conflict"}
	ToolUnknown            = Kind{"tool_unknown"}
	Internal               = Kind{"internal"}
)

// kindedError pairs a Kind with an underlying, stack-carrying cause.
type kindedError struct {
	kind  Kind
	cause error
}

func (e *kindedError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind.name, e.cause)
}

func (e *kindedError) Unwrap() error { return e.cause }

func (e *kindedError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.kind
}

// Wrap attaches kind to err, preserving a stack trace via pkg/errors so the
// structured logger can print "where" as well as "what". msg is prefixed to
// the error text, matching the teacher's fmt.Errorf("...: %w", err) idiom.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: kind, cause: errors.Wrap(err, msg)}
}

// New creates a fresh error of the given kind with a message, carrying a
// stack trace from this call site.
func New(kind Kind, msg string) error {
	return &kindedError{kind: kind, cause: errors.New(msg)}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &kindedError{kind: kind, cause: errors.Errorf(format, args...)}
}

// KindOf returns the taxonomy Kind wrapped in err, and whether one was found.
// Unclassified errors report Internal, false so callers can still log a kind
// without mistaking "unknown" for a deliberate Internal classification.
func KindOf(err error) (Kind, bool) {
	for _, k := range []Kind{
		ValidationError, NoServerForExtension, AtCapacity, ServerCrashed,
		ServerRestarted, ConnectionLost, Timeout, CapabilityUnsupported,
		OverlappingEdits, RangeOutOfBounds, ConcurrentEdit, WouldCreateCycle,
		ImporterConflict, ToolUnknown, Internal,
	} {
		if errors.Is(err, k) {
			return k, true
		}
	}
	return Internal, false
}

// StackTrace exposes the first pkg/errors stack trace found while unwrapping
// err from the outside in, for structured logging — mtlog sinks can render it as a property instead
// of flattening it into the message text.
func StackTrace(err error) errors.StackTrace {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil
}
