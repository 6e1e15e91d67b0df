// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package flid provides abstracted identifier functionality.
//
// Nodes and stored objects in the fledger overlay share a single 256-bit
// identifier space.  Node identifiers are derived from the hash of the node's
// public key while object identifiers are derived from the hash of the
// object's immutable first entries, so both sides of the distance metric are
// content addressed and cannot be chosen freely.
//
// The package also provides the XOR distance metric the routing layer is
// built on along with helpers to compare and order identifiers by their
// distance to a common target.
package flid
