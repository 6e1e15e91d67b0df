// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flo

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrBadGenesis indicates the first two history entries do not form a
	// valid object definition.
	ErrBadGenesis = ErrorKind("ErrBadGenesis")

	// ErrBadEntry indicates a history entry past the definition is
	// structurally invalid, for example out of sequence, backdated, or
	// missing its proof.
	ErrBadEntry = ErrorKind("ErrBadEntry")

	// ErrStaleVersion indicates a proposed entry is not newer than the
	// newest stored entry.
	ErrStaleVersion = ErrorKind("ErrStaleVersion")

	// ErrRuleRejected indicates an entry's proof does not satisfy the rule
	// set that was in force before it.
	ErrRuleRejected = ErrorKind("ErrRuleRejected")

	// ErrBadRules indicates a rule set payload cannot be parsed.
	ErrBadRules = ErrorKind("ErrBadRules")

	// ErrNotRealm indicates an object was expected to define a realm but
	// does not.
	ErrNotRealm = ErrorKind("ErrNotRealm")

	// ErrNotBadge indicates an object was expected to hold a delegated
	// badge condition but does not.
	ErrNotBadge = ErrorKind("ErrNotBadge")

	// ErrTooLarge indicates an object exceeds the size a realm accepts.
	ErrTooLarge = ErrorKind("ErrTooLarge")

	// ErrMalformedRealm indicates a serialized realm definition cannot be
	// decoded.
	ErrMalformedRealm = ErrorKind("ErrMalformedRealm")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error identifies an object model error.  It has full support for
// errors.Is and errors.As, so the caller can ascertain the specific reason
// for the error by checking the underlying error.
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
