// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package kademlia

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ineiti/fledger/flid"
)

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func (c *testClock) time() time.Time {
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// newTestClock returns a clock starting at a fixed point in time.
func newTestClock() *testClock {
	return &testClock{now: time.Unix(1755856800, 0)}
}

// idAtDepth returns an identifier sharing exactly depth leading bits with
// the given identifier.  The salt distinguishes identifiers at the same
// depth and must not be zero for more than one identifier per depth.
func idAtDepth(self flid.ID, depth int, salt byte) flid.ID {
	id := self
	id[depth/8] ^= 0x80 >> (depth % 8)
	id[flid.IDSize-1] ^= salt
	return id
}

// containsID returns whether the given identifier is in the list.
func containsID(ids []flid.ID, id flid.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// TestBucketIndex ensures identifiers map to the bucket matching the length
// of the prefix they share with the local identifier.
func TestBucketIndex(t *testing.T) {
	var self flid.ID
	tbl := New(Config{Self: self})

	tests := []struct {
		name string
		id   flid.ID
		want int
	}{{
		name: "first bit differs",
		id:   idAtDepth(self, 0, 0),
		want: 0,
	}, {
		name: "eighth bit differs",
		id:   idAtDepth(self, 7, 0),
		want: 7,
	}, {
		name: "first bit of second byte differs",
		id:   idAtDepth(self, 8, 0),
		want: 8,
	}, {
		name: "only final bit differs",
		id:   idAtDepth(self, flid.IDBits-1, 0),
		want: flid.IDBits - 1,
	}, {
		name: "same as local identifier",
		id:   self,
		want: flid.IDBits - 1,
	}}

	for _, test := range tests {
		if got := tbl.BucketIndex(test.id); got != test.want {
			t.Errorf("%s: unexpected bucket index - got %d, want %d",
				test.name, got, test.want)
		}
	}
}

// TestSeenBasic ensures records are inserted, refreshed rather than
// duplicated, and that the local identifier is never added.
func TestSeenBasic(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{Self: self, K: 4, Now: clock.time})

	a := idAtDepth(self, 2, 0x01)
	b := idAtDepth(self, 2, 0x02)
	c := idAtDepth(self, 9, 0x01)
	for _, id := range []flid.ID{a, b, c} {
		if probe := tbl.Seen(id); probe != nil {
			t.Fatalf("unexpected probe request for %s", probe)
		}
		clock.advance(time.Second)
	}
	if tbl.Len() != 3 {
		t.Fatalf("unexpected table size - got %d, want 3", tbl.Len())
	}

	// Re-seeing a known node must not create another record.
	if probe := tbl.Seen(a); probe != nil {
		t.Fatalf("unexpected probe request for %s", probe)
	}
	if tbl.Len() != 3 {
		t.Fatalf("unexpected table size after refresh - got %d, want 3",
			tbl.Len())
	}

	// The local identifier is ignored.
	if probe := tbl.Seen(self); probe != nil {
		t.Fatalf("unexpected probe request for %s", probe)
	}
	if tbl.Len() != 3 {
		t.Fatalf("unexpected table size after seeing self - got %d, want 3",
			tbl.Len())
	}

	nodes := tbl.Nodes()
	for _, id := range []flid.ID{a, b, c} {
		if !containsID(nodes, id) {
			t.Fatalf("missing node %s", id)
		}
	}
	if containsID(nodes, self) {
		t.Fatal("local identifier must not appear in the table")
	}
}

// TestClosest ensures lookups return records ordered by ascending XOR
// distance to the target and honor the requested count.
func TestClosest(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{Self: self, K: 4, Now: clock.time})

	if got := tbl.Closest(idAtDepth(self, 3, 0), 5); len(got) != 0 {
		t.Fatalf("unexpected result from empty table - got %v", got)
	}

	var all []flid.ID
	for depth := 0; depth < 8; depth++ {
		for salt := byte(1); salt <= 3; salt++ {
			id := idAtDepth(self, depth, salt)
			all = append(all, id)
			if probe := tbl.Seen(id); probe != nil {
				t.Fatalf("unexpected probe request for %s", probe)
			}
			clock.advance(time.Second)
		}
	}

	target := idAtDepth(self, 5, 0x09)
	got := tbl.Closest(target, len(all))
	if len(got) != len(all) {
		t.Fatalf("unexpected result size - got %d, want %d", len(got),
			len(all))
	}
	for i := 0; i < len(got)-1; i++ {
		if flid.CmpDistance(got[i], got[i+1], target) != -1 {
			t.Fatalf("results not ordered by distance at index %d: %s "+
				"before %s", i, got[i], got[i+1])
		}
	}

	// The requested count bounds the result.
	got = tbl.Closest(target, 2)
	if len(got) != 2 {
		t.Fatalf("unexpected result size - got %d, want 2", len(got))
	}

	// The closest record to a target in a populated bucket must share that
	// bucket.
	wantIdx := tbl.BucketIndex(target)
	if gotIdx := tbl.BucketIndex(got[0]); gotIdx != wantIdx {
		t.Fatalf("closest record in bucket %d, want %d", gotIdx, wantIdx)
	}
}

// TestProbeEviction exercises the full probe lifecycle for a full bucket:
// the least recently confirmed member is handed out for a check, a
// successful check keeps it, and a failed check replaces it with the most
// recently seen pending candidate.
func TestProbeEviction(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{Self: self, K: 1, Now: clock.time})

	a := idAtDepth(self, 3, 0x01)
	b := idAtDepth(self, 3, 0x02)
	c := idAtDepth(self, 3, 0x03)

	// Committing an outcome with no check outstanding is ignored.
	tbl.ProbeFailed(a)
	tbl.ProbeSucceeded(a)

	if probe := tbl.Seen(a); probe != nil {
		t.Fatalf("unexpected probe request for %s", probe)
	}
	clock.advance(time.Second)

	// The bucket is now full, so a newcomer must trigger a check of the
	// least recently confirmed member.
	probe := tbl.Seen(b)
	if probe == nil {
		t.Fatal("expected a probe request for the full bucket")
	}
	if *probe != a {
		t.Fatalf("unexpected probe target - got %s, want %s", probe, a)
	}

	// Another newcomer while the check is outstanding parks without a
	// second request.
	clock.advance(time.Second)
	if probe := tbl.Seen(c); probe != nil {
		t.Fatalf("unexpected second probe request for %s", probe)
	}

	// A successful check keeps the member and its slot.
	tbl.ProbeSucceeded(a)
	if tbl.Len() != 1 {
		t.Fatalf("unexpected table size - got %d, want 1", tbl.Len())
	}
	if got := tbl.Closest(a, 10); !containsID(got, a) {
		t.Fatalf("expected %s to survive a successful check", a)
	}

	// Press again.  The parked candidates are still waiting, so the next
	// evidence for one of them must trigger a new check.
	clock.advance(time.Second)
	probe = tbl.Seen(b)
	if probe == nil || *probe != a {
		t.Fatalf("unexpected probe target - got %v, want %s", probe, a)
	}

	// A failed check evicts the member and promotes the most recently
	// seen pending candidate, which is b.
	tbl.ProbeFailed(a)
	if tbl.Len() != 1 {
		t.Fatalf("unexpected table size after eviction - got %d, want 1",
			tbl.Len())
	}
	got := tbl.Closest(a, 10)
	if containsID(got, a) {
		t.Fatalf("expected %s to be evicted after a failed check", a)
	}
	if !containsID(got, b) {
		t.Fatalf("expected %s to take over the open slot", b)
	}
	if containsID(got, c) {
		t.Fatalf("expected %s to remain parked", c)
	}
}

// TestProbeFreshEvidence ensures a failed check does not evict a member
// that produced fresh evidence while the check was in flight.
func TestProbeFreshEvidence(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{Self: self, K: 1, Now: clock.time})

	a := idAtDepth(self, 3, 0x01)
	b := idAtDepth(self, 3, 0x02)

	tbl.Seen(a)
	clock.advance(time.Second)
	probe := tbl.Seen(b)
	if probe == nil || *probe != a {
		t.Fatalf("unexpected probe target - got %v, want %s", probe, a)
	}

	// Evidence for a arrives after the check was issued but before the
	// caller reports the timeout.
	clock.advance(time.Second)
	tbl.Seen(a)
	tbl.ProbeFailed(a)

	if got := tbl.Closest(a, 10); !containsID(got, a) {
		t.Fatalf("expected %s to survive the late timeout", a)
	}
}

// TestLost ensures a hard disconnect removes a record immediately and lets
// a pending candidate take over the open slot.
func TestLost(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{Self: self, K: 1, Now: clock.time})

	a := idAtDepth(self, 3, 0x01)
	b := idAtDepth(self, 3, 0x02)
	c := idAtDepth(self, 3, 0x03)

	// Removing an unknown node is a no-op.
	tbl.Lost(a)

	tbl.Seen(a)
	clock.advance(time.Second)
	if probe := tbl.Seen(b); probe == nil {
		t.Fatal("expected a probe request for the full bucket")
	}

	tbl.Lost(a)
	if tbl.Len() != 1 {
		t.Fatalf("unexpected table size - got %d, want 1", tbl.Len())
	}
	got := tbl.Closest(a, 10)
	if containsID(got, a) {
		t.Fatalf("expected %s to be removed on disconnect", a)
	}
	if !containsID(got, b) {
		t.Fatalf("expected %s to take over the open slot", b)
	}

	// The disconnect also cleared the outstanding check, so the bucket
	// accepts new probe requests right away.
	clock.advance(time.Second)
	probe := tbl.Seen(c)
	if probe == nil || *probe != b {
		t.Fatalf("unexpected probe target - got %v, want %s", probe, b)
	}
}

// TestTickMaintenance ensures maintenance sweeps report refresh candidates
// once per ping interval and expire records past the stale timeout.
func TestTickMaintenance(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{
		Self:         self,
		K:            2,
		PingInterval: time.Minute,
		StaleTimeout: 3 * time.Minute,
		Now:          clock.time,
	})

	a := idAtDepth(self, 3, 0x01)
	b := idAtDepth(self, 3, 0x02)
	tbl.Seen(a)
	tbl.Seen(b)

	// Fresh records need no attention.
	clock.advance(30 * time.Second)
	m := tbl.TickMaintenance()
	if len(m.PingWants) != 0 || len(m.Evicted) != 0 {
		t.Fatalf("unexpected maintenance for fresh records: %+v", m)
	}

	// Both records age past the ping interval.
	clock.advance(30 * time.Second)
	m = tbl.TickMaintenance()
	if len(m.PingWants) != 2 {
		t.Fatalf("unexpected ping wants - got %d, want 2", len(m.PingWants))
	}

	// An immediate second sweep must not report them again.
	m = tbl.TickMaintenance()
	if len(m.PingWants) != 0 {
		t.Fatalf("unexpected repeat ping wants: %v", m.PingWants)
	}

	// Evidence for a resets its staleness while b keeps aging out.
	tbl.Seen(a)
	clock.advance(2 * time.Minute)
	m = tbl.TickMaintenance()
	if !reflect.DeepEqual(m.Evicted, []flid.ID{b}) {
		t.Fatalf("unexpected evictions - got %v, want [%s]", m.Evicted, b)
	}
	if !reflect.DeepEqual(m.PingWants, []flid.ID{a}) {
		t.Fatalf("unexpected ping wants - got %v, want [%s]", m.PingWants, a)
	}
	if tbl.Len() != 1 {
		t.Fatalf("unexpected table size - got %d, want 1", tbl.Len())
	}
}

// TestTickPromotesPending ensures a pending candidate takes over when a
// stale member expires, even when the check for that member was never
// committed.
func TestTickPromotesPending(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{
		Self:         self,
		K:            1,
		PingInterval: time.Minute,
		StaleTimeout: 3 * time.Minute,
		Now:          clock.time,
	})

	a := idAtDepth(self, 3, 0x01)
	b := idAtDepth(self, 3, 0x02)

	tbl.Seen(a)
	clock.advance(2 * time.Minute)
	if probe := tbl.Seen(b); probe == nil {
		t.Fatal("expected a probe request for the full bucket")
	}

	// The check outcome never arrives.  One minute later a crosses the
	// stale timeout while b is still fresh.
	clock.advance(time.Minute)
	m := tbl.TickMaintenance()
	if !reflect.DeepEqual(m.Evicted, []flid.ID{a}) {
		t.Fatalf("unexpected evictions - got %v, want [%s]", m.Evicted, a)
	}
	got := tbl.Closest(a, 10)
	if !containsID(got, b) {
		t.Fatalf("expected %s to take over the expired slot", b)
	}
	if tbl.Len() != 1 {
		t.Fatalf("unexpected table size - got %d, want 1", tbl.Len())
	}
}

// TestSnapshotRoundTrip ensures the confirmed records survive a save and
// load cycle with their confirmation times intact.
func TestSnapshotRoundTrip(t *testing.T) {
	var self flid.ID
	clock := newTestClock()
	tbl := New(Config{Self: self, K: 4, Now: clock.time})

	for depth := 0; depth < 4; depth++ {
		for salt := byte(1); salt <= 2; salt++ {
			tbl.Seen(idAtDepth(self, depth, salt))
			clock.advance(time.Second)
		}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.json")
	if err := tbl.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// Nothing changed, so a second save must not touch the file system.
	otherPath := filepath.Join(dir, "nodes2.json")
	if err := tbl.SaveSnapshot(otherPath); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if _, err := os.Stat(otherPath); !os.IsNotExist(err) {
		t.Fatal("expected no snapshot write for an unchanged table")
	}

	restored := New(Config{Self: self, K: 4, Now: clock.time})
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !reflect.DeepEqual(restored.Nodes(), tbl.Nodes()) {
		t.Fatalf("restored records mismatch - got %v, want %v",
			restored.Nodes(), tbl.Nodes())
	}

	// The restored confirmation times must drive maintenance the same way
	// the originals would.
	clock.advance(time.Minute)
	m := restored.TickMaintenance()
	if len(m.PingWants) != restored.Len() {
		t.Fatalf("unexpected ping wants after restore - got %d, want %d",
			len(m.PingWants), restored.Len())
	}
}

// TestSnapshotErrors ensures corrupt, mismatched, and missing snapshot
// files are handled.
func TestSnapshotErrors(t *testing.T) {
	var self flid.ID
	dir := t.TempDir()

	// A missing file leaves the table empty without an error.
	tbl := New(Config{Self: self})
	if err := tbl.LoadSnapshot(filepath.Join(dir, "missing.json")); err != nil {
		t.Fatalf("LoadSnapshot on missing file: %v", err)
	}
	if tbl.Len() != 0 {
		t.Fatalf("unexpected table size - got %d, want 0", tbl.Len())
	}

	// Corrupt contents produce an error.
	corruptPath := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corruptPath, []byte("{nonsense"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := tbl.LoadSnapshot(corruptPath); err == nil {
		t.Fatal("expected an error for a corrupt snapshot")
	}

	// An unknown format version produces an error.
	versionPath := filepath.Join(dir, "version.json")
	contents := `{"Version":99,"Self":"` + self.String() + `","Nodes":[]}`
	if err := os.WriteFile(versionPath, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := tbl.LoadSnapshot(versionPath); err == nil {
		t.Fatal("expected an error for an unknown snapshot version")
	}

	// A snapshot written by a different identity produces an error.
	other := idAtDepth(self, 0, 0x7f)
	otherTbl := New(Config{Self: other})
	otherTbl.Seen(idAtDepth(other, 1, 0x01))
	otherPath := filepath.Join(dir, "other.json")
	if err := otherTbl.SaveSnapshot(otherPath); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := tbl.LoadSnapshot(otherPath); err == nil {
		t.Fatal("expected an error for a foreign snapshot")
	}
}
