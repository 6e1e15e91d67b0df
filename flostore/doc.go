// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package flostore keeps replicated objects for the realms a node serves.

The store owns the object database and drives the overlay's closest walks
to place, fetch, and update objects:

  - Put stores an object locally when admitted and offers copies to nodes
    close to the object identifier until the realm's spread is reached.
    Each offered node verifies the object's full history and the
    originator's realm membership before acknowledging a placement, and
    answers with a coded decline otherwise.

  - Get answers from local storage when possible and otherwise fetches
    from the first holder a walk toward the identifier encounters.  A walk
    that reaches its end without finding a holder reports a definitive
    miss.

  - Update carries a signed history entry to every holder on the walk.
    Each holder verifies the entry against the object's rule set before
    extending its copy, so divergent copies cannot be produced by a
    malformed or stale entry.

Holders of the same object converge through two paths: an offered or
synced copy is reconciled with the held one, keeping the longest
verifiable history, and every node periodically announces descriptions of
its held objects to its direct neighbors, which request whatever they lack.

Objects may carry a lifetime or name a parent object.  A holder discards
lifetime objects when their duration has passed since the copy was last
stored or refreshed, and attached objects when their parent is no longer
held.  Expiry is a holder-local decision.

Admission is governed by the realm an object belongs to: a node only
stores objects of realms it serves and for which it holds the realm
definition, within the definition's object size limit and space budget.
Realms the node owns bypass the budget.

All store state is owned by a single event handler goroutine, so
operations and overlay deliveries are processed strictly one at a time.
*/
package flostore
