package socks

import (
	"errors"
	"fmt"
)

var (
	// ErrArgument marks faults in caller supplied input, raised before any I/O.
	ErrArgument = errors.New("socks: invalid argument")
	// ErrProtocolVersion marks a reply whose version byte is not the one the
	// engine speaks.
	ErrProtocolVersion = errors.New("socks: protocol version mismatch")
	// ErrRejected marks a well formed reply whose status refuses the request.
	ErrRejected = errors.New("socks: rejected by proxy")
	// ErrNotConnected is returned when a stage is attempted without a
	// connected transport.
	ErrNotConnected = errors.New("socks: not connected to proxy")
	// ErrState is returned when an operation does not fit the engine's
	// current state.
	ErrState = errors.New("socks: operation not valid in current state")
	// ErrShortReply is returned when a reply is too short to decode.
	ErrShortReply = errors.New("socks: short reply")
)

// Argumentf returns an error wrapping ErrArgument.
func Argumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArgument, fmt.Sprintf(format, args...))
}

// VersionError reports a reply carrying an unexpected version byte.
type VersionError struct {
	Stage string
	Want  byte
	Got   byte
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("socks: %s: proxy replied with version %#02x, want %#02x", e.Stage, e.Got, e.Want)
}

func (e *VersionError) Unwrap() error { return ErrProtocolVersion }

// StatusError reports a reply whose status or method code refuses the stage.
type StatusError struct {
	Stage  string
	Code   byte
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("socks: %s rejected: %s (%#02x)", e.Stage, e.Reason, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrRejected }

// TransportError wraps a connect, send or receive failure, timeouts
// included.
type TransportError struct {
	Stage string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("socks: %s: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
