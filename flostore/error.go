// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flostore

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific StoreError.
const (
	// ErrDB indicates a generic error with the underlying database.
	ErrDB = ErrorKind("ErrDB")

	// ErrDBCorruption indicates a stored record cannot be decoded.
	ErrDBCorruption = ErrorKind("ErrDBCorruption")

	// ErrDBVersion indicates the database was written with a format this
	// software does not understand.
	ErrDBVersion = ErrorKind("ErrDBVersion")

	// ErrClosed indicates an operation was attempted against a store that
	// has been shut down.
	ErrClosed = ErrorKind("ErrClosed")

	// ErrUnknownRealm indicates an object belongs to a realm this node
	// either does not serve or holds no definition for.
	ErrUnknownRealm = ErrorKind("ErrUnknownRealm")

	// ErrNotMember indicates the originator of a store or update is not in
	// the realm's member list.
	ErrNotMember = ErrorKind("ErrNotMember")

	// ErrTooLarge indicates an object exceeds the size its realm accepts.
	ErrTooLarge = ErrorKind("ErrTooLarge")

	// ErrBudgetExceeded indicates storing an object would exceed the space
	// budgeted for its realm.
	ErrBudgetExceeded = ErrorKind("ErrBudgetExceeded")

	// ErrInvalidFlo indicates an object fails structural or history
	// verification.
	ErrInvalidFlo = ErrorKind("ErrInvalidFlo")

	// ErrNotFound indicates a request walked the network without locating
	// any node that holds the object.
	ErrNotFound = ErrorKind("ErrNotFound")

	// ErrUnreachable indicates a request produced no definite answer
	// before its deadline, so the object may exist on nodes that could not
	// be reached.
	ErrUnreachable = ErrorKind("ErrUnreachable")

	// ErrStaleVersion indicates holders rejected an update because they
	// already have an entry at the same or a newer version.
	ErrStaleVersion = ErrorKind("ErrStaleVersion")

	// ErrRuleRejected indicates holders rejected an update because its
	// proof does not satisfy the object's rule set.
	ErrRuleRejected = ErrorKind("ErrRuleRejected")

	// ErrRejected indicates holders rejected an update for a reason other
	// than staleness or rule failure.
	ErrRejected = ErrorKind("ErrRejected")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// StoreError identifies a storage error.  It has full support for errors.Is
// and errors.As, so the caller can ascertain the specific reason for the
// error by checking the underlying error.
type StoreError struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e StoreError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e StoreError) Unwrap() error {
	return e.Err
}

// storeError creates a StoreError given a set of arguments.
func storeError(kind ErrorKind, desc string) StoreError {
	return StoreError{Err: kind, Description: desc}
}
