// Package qerr defines the error taxonomy shared by every protocol client
// in gamequery. Every error surfaced to a caller through a completion
// handle is a *qerr.Error so callers can branch on Kind with errors.As
// instead of string matching.
package qerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure, not a specific type.
type Kind int

const (
	// Transport covers bind/send/receive OS errors and use of a closed socket.
	Transport Kind = iota
	// Encoding means a request could not be serialized.
	Encoding
	// MalformedPayload means bytes could not be decoded.
	MalformedPayload
	// UnrecognizedMessage means a valid frame carried an unknown discriminator.
	UnrecognizedMessage
	// PacketSizeLimitExceeded means an outbound payload exceeded the MTU cap.
	PacketSizeLimitExceeded
	// RequestTimedOut means the deadline passed with no matching response.
	RequestTimedOut
	// DuplicateSession means a live session already existed for the key.
	DuplicateSession
	// AuthenticationFailed means RCON auth was refused.
	AuthenticationFailed
	// Cancelled means the request was cancelled by the caller.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "Transport"
	case Encoding:
		return "Encoding"
	case MalformedPayload:
		return "MalformedPayload"
	case UnrecognizedMessage:
		return "UnrecognizedMessage"
	case PacketSizeLimitExceeded:
		return "PacketSizeLimitExceeded"
	case RequestTimedOut:
		return "RequestTimedOut"
	case DuplicateSession:
		return "DuplicateSession"
	case AuthenticationFailed:
		return "AuthenticationFailed"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the concrete error type surfaced through completion handles.
type Error struct {
	Kind Kind
	Op   string // short operation name, e.g. "a2s.QueryInfo"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a *Error. err may be nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func IsTimeout(err error) bool              { return Is(err, RequestTimedOut) }
func IsDuplicateSession(err error) bool      { return Is(err, DuplicateSession) }
func IsCancelled(err error) bool             { return Is(err, Cancelled) }
func IsAuthenticationFailed(err error) bool  { return Is(err, AuthenticationFailed) }
func IsMalformedPayload(err error) bool      { return Is(err, MalformedPayload) }
