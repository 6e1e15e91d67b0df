// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package kademlia

import (
	"sort"
	"time"

	"github.com/ineiti/fledger/flid"
)

// node tracks the liveness state of a single known peer.
type node struct {
	// id is the peer identifier.
	id flid.ID

	// lastConfirmed is the time of the most recent direct liveness
	// evidence for the peer.
	lastConfirmed time.Time

	// lastPinged is the time the peer was last reported as a refresh
	// candidate by TickMaintenance.  It bounds how often the same peer
	// is handed back to the caller for pinging.
	lastPinged time.Time
}

// kBucket holds the peers whose identifiers share a common prefix length
// with the local identifier.
type kBucket struct {
	// active holds the confirmed members ordered from most to least
	// recently confirmed.
	active []*node

	// pending holds candidates that arrived while the bucket was full,
	// ordered from least to most recently seen.  A candidate is promoted
	// once a confirmed slot opens up.
	pending []*node

	// probe identifies the active member currently undergoing a liveness
	// check, or nil when no check is outstanding.  At most one check per
	// bucket is outstanding at a time.
	probe *flid.ID

	// probeStart is the time the outstanding liveness check was issued.
	probeStart time.Time
}

// find returns the index of the active member with the given identifier or
// -1 when there is none.
func (b *kBucket) find(id flid.ID) int {
	for i, n := range b.active {
		if n.id == id {
			return i
		}
	}
	return -1
}

// findPending returns the index of the pending candidate with the given
// identifier or -1 when there is none.
func (b *kBucket) findPending(id flid.ID) int {
	for i, n := range b.pending {
		if n.id == id {
			return i
		}
	}
	return -1
}

// insertActive places the record according to its confirmation time so that
// the active slice stays ordered from most to least recently confirmed.
func (b *kBucket) insertActive(n *node) {
	i := sort.Search(len(b.active), func(i int) bool {
		return b.active[i].lastConfirmed.Before(n.lastConfirmed)
	})
	b.active = append(b.active, nil)
	copy(b.active[i+1:], b.active[i:])
	b.active[i] = n
}

// removeActive removes the active member at the given index.
func (b *kBucket) removeActive(i int) {
	copy(b.active[i:], b.active[i+1:])
	b.active[len(b.active)-1] = nil
	b.active = b.active[:len(b.active)-1]
}

// removePending removes the pending candidate at the given index.
func (b *kBucket) removePending(i int) {
	copy(b.pending[i:], b.pending[i+1:])
	b.pending[len(b.pending)-1] = nil
	b.pending = b.pending[:len(b.pending)-1]
}

// addPending appends a candidate to the pending list, dropping the oldest
// candidate when the list is already at capacity.
func (b *kBucket) addPending(n *node, maxPending int) {
	if len(b.pending) >= maxPending {
		b.removePending(0)
	}
	b.pending = append(b.pending, n)
}

// promote moves the most recently seen pending candidate into the active
// set when a confirmed slot is available.  It returns true when a candidate
// was promoted.
func (b *kBucket) promote(k int) bool {
	if len(b.active) >= k || len(b.pending) == 0 {
		return false
	}
	n := b.pending[len(b.pending)-1]
	b.pending[len(b.pending)-1] = nil
	b.pending = b.pending[:len(b.pending)-1]
	b.insertActive(n)
	return true
}

// appendActiveIDs appends the identifiers of all active members to the
// given slice and returns the result.
func (b *kBucket) appendActiveIDs(ids []flid.ID) []flid.ID {
	for _, n := range b.active {
		ids = append(ids, n.id)
	}
	return ids
}
