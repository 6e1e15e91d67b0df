// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package flo provides the object model layered on top of the wire types.

An object is an append-only history of versioned entries.  The first two
entries define the object and are committed to by its content-derived
identifier, so they can never change.  Every later entry must carry the
next version in sequence and a proof satisfying the access rule set that
was in force before it.

The package wraps the wire representation with caching of the identifier
and the serialization, validates histories and proposed appends, and
reconciles diverged copies of the same object deterministically so two
holders converge after a single exchange.

It also decodes the two well-known object types the store gives meaning
to: realm definitions, which name a storage policy and declare themselves
as their own realm, and badges, which hold a delegated access condition
other rule sets can reference by identifier and version.
*/
package flo
