// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ace

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific Error.
const (
	// ErrUnknownCondition is returned when a condition carries an unknown
	// kind discriminant.
	ErrUnknownCondition = ErrorKind("ErrUnknownCondition")

	// ErrUnknownVersionMode is returned when a badge reference carries an
	// unknown version mode discriminant.
	ErrUnknownVersionMode = ErrorKind("ErrUnknownVersionMode")

	// ErrTreeTooDeep is returned when a condition tree nests deeper than
	// the maximum allowed.
	ErrTreeTooDeep = ErrorKind("ErrTreeTooDeep")

	// ErrTooManyConds is returned when a threshold condition has more
	// direct sub conditions than the maximum allowed.
	ErrTooManyConds = ErrorKind("ErrTooManyConds")

	// ErrMalformedCondition is returned when a serialized condition has
	// trailing data or is otherwise structurally invalid.
	ErrMalformedCondition = ErrorKind("ErrMalformedCondition")

	// ErrNoSuchKey is returned when a signer's key cannot contribute to a
	// condition.
	ErrNoSuchKey = ErrorKind("ErrNoSuchKey")

	// ErrBadSignature is returned when signature material has the wrong
	// size for the wire encoding.
	ErrBadSignature = ErrorKind("ErrBadSignature")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an error related to access condition handling.  It has
// full support for errors.Is and errors.As, so the caller can ascertain the
// specific reason for the error by checking the underlying error.
type Error struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// makeError creates an Error given a set of arguments.
func makeError(kind ErrorKind, desc string) Error {
	return Error{Err: kind, Description: desc}
}
