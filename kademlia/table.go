// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package kademlia

import (
	"time"

	"github.com/ineiti/fledger/flid"
)

const (
	// DefaultK is the default maximum number of confirmed records per
	// bucket.
	DefaultK = 20

	// DefaultPingInterval is the default duration after which a confirmed
	// record becomes a refresh candidate.
	DefaultPingInterval = time.Minute

	// DefaultStaleTimeout is the default duration without confirmation
	// after which a record is dropped from the table.
	DefaultStaleTimeout = 3 * time.Minute
)

// Config is the configuration for a routing table.
type Config struct {
	// Self is the local node identifier all bucket distances are measured
	// against.  Records for this identifier are never added to the table.
	Self flid.ID

	// K is the maximum number of confirmed records per bucket.
	//
	// It defaults to DefaultK when zero.
	K int

	// PingInterval is the duration after which a confirmed record becomes
	// a refresh candidate reported by TickMaintenance.
	//
	// It defaults to DefaultPingInterval when zero.
	PingInterval time.Duration

	// StaleTimeout is the duration without confirmation after which a
	// record is dropped by TickMaintenance.
	//
	// It defaults to DefaultStaleTimeout when zero.
	StaleTimeout time.Duration

	// Now returns the current time.
	//
	// It defaults to time.Now when nil.
	Now func() time.Time
}

// Table is a routing table that organizes known peers into buckets indexed
// by the length of the identifier prefix they share with the local node.
// Peers in higher numbered buckets are closer to the local node in the XOR
// metric.
//
// Structural mutations follow a probe before evict policy: when a bucket is
// already full of confirmed peers, a newcomer is parked as a pending
// candidate and Seen hands the least recently confirmed member back to the
// caller for a liveness check.  The check outcome is committed through
// ProbeSucceeded or ProbeFailed and only a failed check evicts.  A hard
// disconnect reported through Lost removes a record without any check.
//
// Table is not safe for concurrent access.  It is intended to be owned by a
// single goroutine such as the router event loop.
type Table struct {
	cfg     Config
	buckets [flid.IDBits]*kBucket

	// count is the number of confirmed records across all buckets.
	count int

	// dirty indicates the confirmed records changed since the last
	// snapshot was written.
	dirty bool
}

// New returns a routing table for the provided configuration.
func New(cfg Config) *Table {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = DefaultStaleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Table{cfg: cfg}
	for i := range t.buckets {
		t.buckets[i] = &kBucket{}
	}
	return t
}

// BucketIndex returns the index of the bucket the given identifier maps to,
// which is the length of the prefix it shares with the local identifier.
// The local identifier itself maps to the final bucket.
func (t *Table) BucketIndex(id flid.ID) int {
	idx := flid.PrefixLen(t.cfg.Self, id)
	if idx >= flid.IDBits {
		idx = flid.IDBits - 1
	}
	return idx
}

// bucket returns the bucket the given identifier maps to.
func (t *Table) bucket(id flid.ID) *kBucket {
	return t.buckets[t.BucketIndex(id)]
}

// Len returns the number of confirmed records in the table.
func (t *Table) Len() int {
	return t.count
}

// Nodes returns the identifiers of all confirmed records in bucket order.
func (t *Table) Nodes() []flid.ID {
	ids := make([]flid.ID, 0, t.count)
	for _, b := range t.buckets {
		ids = b.appendActiveIDs(ids)
	}
	return ids
}

// Seen records liveness evidence for the given node, inserting a new record
// or refreshing an existing one.  The local identifier is ignored.
//
// When the target bucket is already full of confirmed records, the newcomer
// is parked as a pending candidate and the identifier of the least recently
// confirmed member is returned.  The caller must check that member for
// liveness and commit the outcome through ProbeSucceeded or ProbeFailed
// before any eviction takes place.  A nil return means no check is needed,
// either because the record was absorbed or because a check is already
// outstanding for the bucket.
func (t *Table) Seen(id flid.ID) *flid.ID {
	if id == t.cfg.Self {
		return nil
	}
	now := t.cfg.Now()
	b := t.bucket(id)

	// Refresh an existing record.
	if i := b.find(id); i != -1 {
		n := b.active[i]
		n.lastConfirmed = now
		b.removeActive(i)
		b.insertActive(n)
		t.dirty = true
		return nil
	}

	// Insert directly while the bucket has room.
	if len(b.active) < t.cfg.K {
		b.insertActive(&node{id: id, lastConfirmed: now})
		t.count++
		t.dirty = true
		log.Tracef("New node %s in bucket %d (%d nodes total)", id.Short(),
			t.BucketIndex(id), t.count)
		return nil
	}

	// The bucket is full.  Park the newcomer so it can take over a slot
	// later and ask the caller to check the least recently confirmed
	// member unless a check is already in flight.
	if i := b.findPending(id); i != -1 {
		n := b.pending[i]
		n.lastConfirmed = now
		b.removePending(i)
		b.pending = append(b.pending, n)
	} else {
		b.addPending(&node{id: id, lastConfirmed: now}, 2*t.cfg.K)
	}
	if b.probe != nil {
		return nil
	}
	probeID := b.active[len(b.active)-1].id
	b.probe = &probeID
	b.probeStart = now
	log.Debugf("Bucket %d full, probing %s before evicting", t.BucketIndex(id),
		probeID.Short())
	candidate := probeID
	return &candidate
}

// Lost removes the record for the given node immediately, without a
// liveness check.  It is meant for hard evidence such as a transport
// disconnect.  A pending candidate is promoted when the removal opens a
// confirmed slot.
func (t *Table) Lost(id flid.ID) {
	b := t.bucket(id)
	if i := b.findPending(id); i != -1 {
		b.removePending(i)
	}
	i := b.find(id)
	if i == -1 {
		return
	}
	b.removeActive(i)
	t.count--
	if b.probe != nil && *b.probe == id {
		b.probe = nil
	}
	if b.promote(t.cfg.K) {
		t.count++
	}
	t.dirty = true
	log.Debugf("Removed disconnected node %s from bucket %d (%d nodes total)",
		id.Short(), t.BucketIndex(id), t.count)
}

// ProbeSucceeded commits a successful liveness check for the given node.
// The member is refreshed and keeps its slot while the pending candidate
// that triggered the check stays parked until another slot opens.  The call
// is ignored unless the node matches the outstanding check for its bucket.
func (t *Table) ProbeSucceeded(id flid.ID) {
	b := t.bucket(id)
	if b.probe == nil || *b.probe != id {
		return
	}
	b.probe = nil
	i := b.find(id)
	if i == -1 {
		return
	}
	n := b.active[i]
	n.lastConfirmed = t.cfg.Now()
	b.removeActive(i)
	b.insertActive(n)
	t.dirty = true
}

// ProbeFailed commits a failed liveness check for the given node.  The
// member is evicted and the most recently seen pending candidate takes over
// its slot.  The call is ignored unless the node matches the outstanding
// check for its bucket, and the eviction is skipped when fresh evidence for
// the member arrived while the check was in flight.
func (t *Table) ProbeFailed(id flid.ID) {
	b := t.bucket(id)
	if b.probe == nil || *b.probe != id {
		return
	}
	b.probe = nil
	if i := b.find(id); i != -1 {
		n := b.active[i]
		if n.lastConfirmed.After(b.probeStart) {
			return
		}
		b.removeActive(i)
		t.count--
		log.Debugf("Evicted unresponsive node %s from bucket %d", id.Short(),
			t.BucketIndex(id))
	}
	if b.promote(t.cfg.K) {
		t.count++
	}
	t.dirty = true
}

// Closest returns up to n confirmed records ordered by ascending XOR
// distance to the target, with ties broken by the identifier value.  The
// result starts from the target bucket and widens to neighboring buckets
// until enough candidates are found, so under a sparse table the result is
// a best effort approximation rather than the globally closest set.
func (t *Table) Closest(target flid.ID, n int) []flid.ID {
	if n <= 0 {
		return nil
	}
	idx := t.BucketIndex(target)
	ids := t.buckets[idx].appendActiveIDs(nil)
	for i := 1; (idx-i >= 0 || idx+i < flid.IDBits) && len(ids) < n; i++ {
		if idx-i >= 0 {
			ids = t.buckets[idx-i].appendActiveIDs(ids)
		}
		if idx+i < flid.IDBits {
			ids = t.buckets[idx+i].appendActiveIDs(ids)
		}
	}
	flid.SortByDistance(ids, target)
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Maintenance reports the upkeep work due after a maintenance tick.
type Maintenance struct {
	// PingWants are confirmed records whose most recent liveness evidence
	// is older than the ping interval.  The caller should check them for
	// liveness and report the results through Seen.
	PingWants []flid.ID

	// Evicted are records that were dropped after going without
	// confirmation for longer than the stale timeout.
	Evicted []flid.ID
}

// TickMaintenance sweeps the table for records needing a refresh and drops
// records that have gone unconfirmed for longer than the stale timeout.
// Each refresh candidate is reported at most once per ping interval.
// Liveness checks that were never committed are abandoned after the stale
// timeout so their buckets do not wedge.
func (t *Table) TickMaintenance() Maintenance {
	now := t.cfg.Now()
	var m Maintenance
	for idx, b := range t.buckets {
		kept := b.active[:0]
		for _, n := range b.active {
			age := now.Sub(n.lastConfirmed)
			if age >= t.cfg.StaleTimeout {
				m.Evicted = append(m.Evicted, n.id)
				t.count--
				t.dirty = true
				if b.probe != nil && *b.probe == n.id {
					b.probe = nil
				}
				log.Debugf("Expired stale node %s from bucket %d",
					n.id.Short(), idx)
				continue
			}
			if age >= t.cfg.PingInterval &&
				now.Sub(n.lastPinged) >= t.cfg.PingInterval {

				n.lastPinged = now
				m.PingWants = append(m.PingWants, n.id)
			}
			kept = append(kept, n)
		}
		for i := len(kept); i < len(b.active); i++ {
			b.active[i] = nil
		}
		b.active = kept

		// Drop pending candidates that went stale while parked.
		for i := 0; i < len(b.pending); {
			if now.Sub(b.pending[i].lastConfirmed) >= t.cfg.StaleTimeout {
				b.removePending(i)
				continue
			}
			i++
		}

		if b.probe != nil && now.Sub(b.probeStart) >= t.cfg.StaleTimeout {
			b.probe = nil
		}
		for b.promote(t.cfg.K) {
			t.count++
			t.dirty = true
		}
	}
	return m
}
