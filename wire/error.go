// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrNonCanonicalVarInt is returned when a variable length integer is
	// not canonically encoded.
	ErrNonCanonicalVarInt = ErrorKind("ErrNonCanonicalVarInt")

	// ErrVarStringTooLong is returned when a variable string exceeds the
	// maximum message size allowed.
	ErrVarStringTooLong = ErrorKind("ErrVarStringTooLong")

	// ErrVarBytesTooLong is returned when a variable-length byte slice
	// exceeds the maximum message size allowed.
	ErrVarBytesTooLong = ErrorKind("ErrVarBytesTooLong")

	// ErrCmdTooLong is returned when a command exceeds the maximum command
	// size allowed.
	ErrCmdTooLong = ErrorKind("ErrCmdTooLong")

	// ErrPayloadTooLarge is returned when a payload exceeds the maximum
	// payload size allowed.
	ErrPayloadTooLarge = ErrorKind("ErrPayloadTooLarge")

	// ErrWrongNetwork is returned when a message intended for a different
	// network is received.
	ErrWrongNetwork = ErrorKind("ErrWrongNetwork")

	// ErrMalformedCmd is returned when a malformed command is received.
	ErrMalformedCmd = ErrorKind("ErrMalformedCmd")

	// ErrUnknownCmd is returned when an unknown command is received.
	ErrUnknownCmd = ErrorKind("ErrUnknownCmd")

	// ErrPayloadChecksum is returned when a message with an invalid checksum
	// is received.
	ErrPayloadChecksum = ErrorKind("ErrPayloadChecksum")

	// ErrMsgInvalidForPVer is returned when a message is invalid for
	// the expected protocol version.
	ErrMsgInvalidForPVer = ErrorKind("ErrMsgInvalidForPVer")

	// ErrInvalidMsg is returned for an invalid message structure.
	ErrInvalidMsg = ErrorKind("ErrInvalidMsg")

	// ErrUserAgentTooLong is returned when the provided user agent exceeds
	// the maximum allowed.
	ErrUserAgentTooLong = ErrorKind("ErrUserAgentTooLong")

	// ErrMalformedStrictString is returned when a string that has strict
	// formatting requirements does not conform to the requirements.
	ErrMalformedStrictString = ErrorKind("ErrMalformedStrictString")

	// ErrInvalidTimestamp is returned when a timestamp exceeds the maximum
	// value representable by the protocol.
	ErrInvalidTimestamp = ErrorKind("ErrInvalidTimestamp")

	// ErrTooManyVisited is returned when the visited list of a routed
	// message exceeds the maximum hop budget.
	ErrTooManyVisited = ErrorKind("ErrTooManyVisited")

	// ErrTooManyNodes is returned when a node list exceeds the maximum
	// allowed.
	ErrTooManyNodes = ErrorKind("ErrTooManyNodes")

	// ErrTooManyMetas is returned when an object meta list exceeds the
	// maximum allowed.
	ErrTooManyMetas = ErrorKind("ErrTooManyMetas")

	// ErrTooManyUpdates is returned when an object history exceeds the
	// maximum number of entries allowed.
	ErrTooManyUpdates = ErrorKind("ErrTooManyUpdates")

	// ErrTooManySigs is returned when an update proof carries more
	// signatures than allowed.
	ErrTooManySigs = ErrorKind("ErrTooManySigs")

	// ErrFloTooLarge is returned when a serialized object exceeds the
	// absolute protocol maximum.
	ErrFloTooLarge = ErrorKind("ErrFloTooLarge")

	// ErrUnknownUpdateKind is returned when an update entry carries an
	// unknown kind discriminant.
	ErrUnknownUpdateKind = ErrorKind("ErrUnknownUpdateKind")

	// ErrUnknownCuckooKind is returned when an object carries an unknown
	// cuckoo policy discriminant.
	ErrUnknownCuckooKind = ErrorKind("ErrUnknownCuckooKind")

	// ErrEmptyHistory is returned when an object is missing its two
	// defining entries.
	ErrEmptyHistory = ErrorKind("ErrEmptyHistory")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// MessageError identifies an error related to wire messages.  It has
// full support for errors.Is and errors.As, so the caller can
// ascertain the specific reason for the error by checking the
// underlying error.
type MessageError struct {
	Func        string
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e MessageError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e MessageError) Unwrap() error {
	return e.Err
}

// messageError creates a MessageError given a set of arguments.
func messageError(fn string, kind ErrorKind, desc string) MessageError {
	return MessageError{Func: fn, Err: kind, Description: desc}
}
