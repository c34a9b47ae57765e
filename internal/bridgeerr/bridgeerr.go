// Package bridgeerr defines the error-kind taxonomy shared across the
// bridge engine so callers can branch on category instead of parsing
// strings.
package bridgeerr

import "fmt"

// Kind identifies the category of a bridge error.
type Kind int

const (
	InvalidArg Kind = iota
	IO
	Timeout
	Connection
	Config
	Hangup
	Modem
	NoCarrier
	Busy
	NoDialtone
	NoAnswer
	Partial
	Serial
	Telnet
	BufferFull
	Protocol
	System
	Thread
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "INVALID_ARG"
	case IO:
		return "IO"
	case Timeout:
		return "TIMEOUT"
	case Connection:
		return "CONNECTION"
	case Config:
		return "CONFIG"
	case Hangup:
		return "HANGUP"
	case Modem:
		return "MODEM"
	case NoCarrier:
		return "NO_CARRIER"
	case Busy:
		return "BUSY"
	case NoDialtone:
		return "NO_DIALTONE"
	case NoAnswer:
		return "NO_ANSWER"
	case Partial:
		return "PARTIAL"
	case Serial:
		return "SERIAL"
	case Telnet:
		return "TELNET"
	case BufferFull:
		return "BUFFER_FULL"
	case Protocol:
		return "PROTOCOL"
	case System:
		return "SYSTEM"
	case Thread:
		return "THREAD"
	default:
		return "UNKNOWN"
	}
}

// Error is a bridge error tagged with a Kind, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an existing error.
func Wrap(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is a bridge *Error of the given Kind.
func Is(err error, k Kind) bool {
	var be *Error
	if e, ok := err.(*Error); ok {
		be = e
	} else {
		return false
	}
	return be.Kind == k
}

// Transient reports whether the error kind is one the caller of the
// failing primitive should retry locally rather than propagate.
func Transient(k Kind) bool {
	switch k {
	case Timeout, BufferFull, Partial:
		return true
	default:
		return false
	}
}

// SystemLevel reports whether the error kind must be promoted to a
// system-state-machine event rather than handled locally.
func SystemLevel(k Kind) bool {
	switch k {
	case Hangup, Connection:
		return true
	default:
		return false
	}
}
