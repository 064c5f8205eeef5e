// Package outcome defines the closed set of terminal session classifications
// and their stable process exit statuses.
package outcome

import (
	"errors"
	"fmt"
)

// Kind is the terminal classification of one verification session.
type Kind int

const (
	// Completed means the search exhausted its bounds without a violation.
	Completed Kind = iota
	// ViolationFound means a property violation was detected and a witness recorded.
	ViolationFound
	// TimedOut means the session time limit expired.
	TimedOut
	// MemoryExhausted means the session memory limit was exceeded.
	MemoryExhausted
	// ConfigurationError covers operator-correctable setup problems.
	ConfigurationError
	// ReplayDivergence means a recorded trace no longer reproduces its violation.
	ReplayDivergence
	// EntryPointAmbiguous means the default entry point name did not select
	// exactly one candidate.
	EntryPointAmbiguous
	// InternalError is the fallback for unclassified failures.
	InternalError
)

// Exit statuses reported to the operating system.
const (
	ExitCompleted       = 0
	ExitViolation       = 2
	ExitTimeout         = 3
	ExitMemout          = 4
	ExitError           = 5
	ExitAmbiguousTarget = 6
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{
	Completed,
	ViolationFound,
	TimedOut,
	MemoryExhausted,
	ConfigurationError,
	ReplayDivergence,
	EntryPointAmbiguous,
	InternalError,
}

var kindNames = map[Kind]string{
	Completed:           "completed",
	ViolationFound:      "violation-found",
	TimedOut:            "timed-out",
	MemoryExhausted:     "memory-exhausted",
	ConfigurationError:  "configuration-error",
	ReplayDivergence:    "replay-divergence",
	EntryPointAmbiguous: "entry-point-ambiguous",
	InternalError:       "internal-error",
}

// String returns the stable lower-case name used in logs and statistics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode maps a Kind to its process exit status. Unknown kinds map to ExitError.
func (k Kind) ExitCode() int {
	switch k {
	case Completed:
		return ExitCompleted
	case ViolationFound:
		return ExitViolation
	case TimedOut:
		return ExitTimeout
	case MemoryExhausted:
		return ExitMemout
	case EntryPointAmbiguous:
		return ExitAmbiguousTarget
	case ConfigurationError, ReplayDivergence, InternalError:
		return ExitError
	default:
		return ExitError
	}
}

// Error tags an underlying error with the Kind it terminates a session with.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}

	return e.Err.Error()
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Tag wraps err with kind. A nil err stays nil.
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Err: err}
}

// Sentinel creates a tagged sentinel error suitable for package-level vars.
func Sentinel(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// KindOf classifies err. A nil error is Completed; an untagged error is InternalError.
// The outermost tag wins when several are present.
func KindOf(err error) Kind {
	if err == nil {
		return Completed
	}

	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	return InternalError
}
