package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a missing or malformed point table or environment
	// parameter. Fatal at startup.
	ErrConfig = errors.New("config error")
	// ErrSinkConnect marks a failure to reach the PDT agent at startup. Fatal.
	ErrSinkConnect = errors.New("sink connect failed")
	// ErrSourceConnect marks a failed OPC UA handshake or authentication.
	// Recovered by backoff and retry.
	ErrSourceConnect = errors.New("source connect failed")
	// ErrSend marks a failed write to the PDT agent. Logged and swallowed.
	ErrSend = errors.New("sink send failed")
)

// ReadErrorKind classifies a failed single-point read.
type ReadErrorKind uint8

const (
	// PointNotFound affects only the point being read; the cycle continues.
	PointNotFound ReadErrorKind = iota + 1
	// SessionInvalid means the session is unusable and must be recreated.
	SessionInvalid
	// Timeout is treated like SessionInvalid.
	Timeout
)

func (k ReadErrorKind) String() string {
	switch k {
	case PointNotFound:
		return "point_not_found"
	case SessionInvalid:
		return "session_invalid"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ReadError is returned by SourceSession.ReadPoint.
type ReadError struct {
	Kind   ReadErrorKind
	NodeID string
	Err    error
}

func (e *ReadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("read %s: %s", e.NodeID, e.Kind)
	}
	return fmt.Sprintf("read %s: %s: %v", e.NodeID, e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// SessionFatal reports whether the read failure invalidates the whole session.
func (e *ReadError) SessionFatal() bool {
	return e.Kind == SessionInvalid || e.Kind == Timeout
}

// NewReadError builds a ReadError.
func NewReadError(kind ReadErrorKind, nodeID string, err error) *ReadError {
	return &ReadError{Kind: kind, NodeID: nodeID, Err: err}
}
