// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific TransportError.
const (
	// ErrDialNil indicates a transport was configured without a dial
	// function.
	ErrDialNil = ErrorKind("ErrDialNil")

	// ErrStopped indicates an operation was attempted against a transport
	// that has been shut down.
	ErrStopped = ErrorKind("ErrStopped")

	// ErrSelfConnection indicates the hello exchange recognized the remote
	// side of a connection as the local node itself.
	ErrSelfConnection = ErrorKind("ErrSelfConnection")

	// ErrDuplicatePeer indicates a connection to a node the transport
	// already holds an identified connection to.
	ErrDuplicatePeer = ErrorKind("ErrDuplicatePeer")

	// ErrInvalidHandshake indicates the remote node violated the hello
	// exchange protocol.
	ErrInvalidHandshake = ErrorKind("ErrInvalidHandshake")

	// ErrProtocolVersion indicates the remote node speaks a protocol
	// version this transport cannot serve.
	ErrProtocolVersion = ErrorKind("ErrProtocolVersion")

	// ErrPeerNotFound indicates a send to a node the transport holds no
	// identified connection to.
	ErrPeerNotFound = ErrorKind("ErrPeerNotFound")

	// ErrPeerStalled indicates a peer stopped draining its send queue, so
	// the connection was dropped.
	ErrPeerStalled = ErrorKind("ErrPeerStalled")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// TransportError identifies a transport error.  It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error.
type TransportError struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e TransportError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e TransportError) Unwrap() error {
	return e.Err
}

// transportError creates a TransportError given a set of arguments.
func transportError(kind ErrorKind, desc string) TransportError {
	return TransportError{Err: kind, Description: desc}
}
