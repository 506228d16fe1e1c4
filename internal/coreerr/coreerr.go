// Package coreerr defines the typed error kinds the core reports (spec.md
// §7) and the fatal/non-fatal split the coordinator acts on.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for logging, counting, and the fatal/non-fatal
// propagation decision. Kinds are compared with errors.Is against the
// sentinel values below, not by type-asserting *Error.
type Kind int

const (
	// DecodeFailed: a PDU's Viterbi/CRC check did not pass. Local, counted
	// per-user, never propagated.
	DecodeFailed Kind = iota
	// ReassemblyTimeout: a reassembler's deadline elapsed before all
	// fragments arrived. Local.
	ReassemblyTimeout
	// ReassemblyMismatch: two fragments of the same (userid, sequence)
	// disagree on frag_total. Local.
	ReassemblyMismatch
	// BufferUnderflow: the bit pipeline was fed fewer cells than the
	// payload needed. Fatal.
	BufferUnderflow
	// DriverUnavailable: the radio driver capability is gone. Fatal.
	DriverUnavailable
	// DeadlineMissed: a realtime task overran its budget. Warning only.
	DeadlineMissed
	// InvalidAssignment: the scheduler produced an assignment entry
	// referencing a userid outside the associated set. Fatal.
	InvalidAssignment
	// UnknownUser: an uplink slot decoded to a userid with no user slot
	// allocated. The slot is discarded, not fatal.
	UnknownUser
)

func (k Kind) String() string {
	switch k {
	case DecodeFailed:
		return "decode_failed"
	case ReassemblyTimeout:
		return "reassembly_timeout"
	case ReassemblyMismatch:
		return "reassembly_mismatch"
	case BufferUnderflow:
		return "buffer_underflow"
	case DriverUnavailable:
		return "driver_unavailable"
	case DeadlineMissed:
		return "deadline_missed"
	case InvalidAssignment:
		return "invalid_assignment"
	case UnknownUser:
		return "unknown_user"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this kind must terminate the process
// per spec.md §7's propagation policy.
func (k Kind) Fatal() bool {
	switch k {
	case BufferUnderflow, DriverUnavailable, InvalidAssignment:
		return true
	default:
		return false
	}
}

// Error wraps a Kind with context. Callers compare kinds with errors.Is
// against the sentinel Err* values, not by unwrapping *Error directly.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error of the given kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel values, one per Kind, for errors.Is comparisons against errors
// returned by New (which carry a Msg but compare equal by Kind alone via
// Is above).
var (
	ErrDecodeFailed       = &Error{Kind: DecodeFailed}
	ErrReassemblyTimeout  = &Error{Kind: ReassemblyTimeout}
	ErrReassemblyMismatch = &Error{Kind: ReassemblyMismatch}
	ErrBufferUnderflow    = &Error{Kind: BufferUnderflow}
	ErrDriverUnavailable  = &Error{Kind: DriverUnavailable}
	ErrDeadlineMissed     = &Error{Kind: DeadlineMissed}
	ErrInvalidAssignment  = &Error{Kind: InvalidAssignment}
	ErrUnknownUser        = &Error{Kind: UnknownUser}
)

// KindOf extracts the Kind from err if it (transitively) wraps a *Error,
// reporting ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
