// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flo

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

// testTime is the base timestamp used by the tests.  Later entries offset
// from it so histories stay monotonic.
var testTime = time.Unix(0x66cf2a00, 0)

// testRealmID returns an identifier filled with the given byte.
func testRealmID(b byte) flid.ID {
	var id flid.ID
	for i := range id {
		id[i] = b
	}
	return id
}

// mustSigner generates a fresh signing key.
func mustSigner(t *testing.T) *ace.KeySigner {
	t.Helper()
	signer, err := ace.GenerateKeySigner()
	if err != nil {
		t.Fatalf("GenerateKeySigner: %v", err)
	}
	return signer
}

// mustCreate returns a new object with the given payload and rule set.
func mustCreate(t *testing.T, realm flid.ID, typ string, data []byte, rules *ace.Condition) *Flo {
	t.Helper()
	f, err := Create(realm, typ, data, rules, wire.Cuckoo{}, testTime)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return f
}

// mustAppendData signs and appends a data entry at the next version.
func mustAppendData(t *testing.T, f *Flo, payload []byte, cond *ace.Condition,
	signers ...*ace.KeySigner) {

	t.Helper()
	version := f.WireFlo().Version() + 1
	u := NewDataUpdate(version, payload,
		testTime.Add(time.Duration(version)*time.Second))
	err := SignUpdate(u, f.ID(), cond, signers...)
	if err != nil {
		t.Fatalf("SignUpdate: %v", err)
	}
	err = f.AppendUpdate(u, nil)
	if err != nil {
		t.Fatalf("AppendUpdate: %v", err)
	}
}

// TestFloCaching ensures the wrapper caches the identifier and the
// serialization and drops the latter when the history grows.
func TestFloCaching(t *testing.T) {
	signer := mustSigner(t)
	rules := signer.Condition()
	f := mustCreate(t, testRealmID(0x11), "notes", []byte("first"), &rules)

	id := f.ID()
	if id != f.WireFlo().CalcID() {
		t.Fatal("cached identifier differs from calculated identifier")
	}
	if id != f.ID() {
		t.Fatal("identifier changed between calls")
	}

	b1, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	b2, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatal("serialization changed between calls")
	}

	mustAppendData(t, f, []byte("second"), &rules, signer)
	b3, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes after append: %v", err)
	}
	if bytes.Equal(b1, b3) {
		t.Fatal("serialization not regenerated after append")
	}
	if f.ID() != id {
		t.Fatal("identifier changed after append")
	}
}

// TestFloRoundTrip ensures a wrapped object survives serialization.
func TestFloRoundTrip(t *testing.T) {
	signer := mustSigner(t)
	rules := signer.Condition()
	f := mustCreate(t, testRealmID(0x22), "notes", []byte("payload"), &rules)
	mustAppendData(t, f, []byte("updated"), &rules, signer)

	serialized, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	g, err := NewFloFromBytes(serialized)
	if err != nil {
		t.Fatalf("NewFloFromBytes: %v", err)
	}
	if g.ID() != f.ID() {
		t.Fatalf("identifier changed across round trip: %s != %s", g.ID(),
			f.ID())
	}
	gb, err := g.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(gb, serialized) {
		t.Fatal("reserialization differs from original")
	}
	if err := VerifyHistory(g.WireFlo(), nil); err != nil {
		t.Fatalf("VerifyHistory after round trip: %v", err)
	}

	if _, err := NewFloFromBytes(serialized[:len(serialized)-3]); err == nil {
		t.Fatal("truncated serialization deserialized without error")
	}
}

// TestFloAccessors exercises the payload, rule, meta, and global identifier
// accessors.
func TestFloAccessors(t *testing.T) {
	signer := mustSigner(t)
	rules := signer.Condition()
	realm := testRealmID(0x33)
	f := mustCreate(t, realm, "notes", []byte("first"), &rules)

	if !bytes.Equal(f.Data(), []byte("first")) {
		t.Fatalf("Data: got %q, want %q", f.Data(), "first")
	}
	got, err := f.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if got.Hash() != rules.Hash() {
		t.Fatal("Rules returned a different rule set")
	}

	mustAppendData(t, f, []byte("second"), &rules, signer)
	if !bytes.Equal(f.Data(), []byte("second")) {
		t.Fatalf("Data after append: got %q, want %q", f.Data(), "second")
	}

	meta, err := f.Meta()
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	size, err := f.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if meta.ID != f.ID() || meta.Version != 2 || int(meta.Size) != size {
		t.Fatalf("Meta: got %v/%d/%d, want %v/2/%d", meta.ID, meta.Version,
			meta.Size, f.ID(), size)
	}

	gid := f.GlobalID()
	if gid.Realm != realm || gid.Object != f.ID() {
		t.Fatalf("GlobalID: got %v, want %v/%v", gid, realm, f.ID())
	}
	rgid := RealmGlobalID(realm)
	if rgid.Realm != realm || rgid.Object != realm {
		t.Fatalf("RealmGlobalID: got %v", rgid)
	}
}

// TestFloCuckoo exercises the expiry and parent attachment accessors.
func TestFloCuckoo(t *testing.T) {
	signer := mustSigner(t)
	rules := signer.Condition()
	parent := testRealmID(0x44)

	plain := mustCreate(t, testRealmID(0x55), "notes", nil, &rules)
	if _, ok := plain.TTL(); ok {
		t.Fatal("object without expiry reported one")
	}
	if _, ok := plain.CuckooParent(); ok {
		t.Fatal("object without parent reported one")
	}

	expiring, err := Create(testRealmID(0x55), "notes", nil, &rules,
		wire.Cuckoo{Kind: wire.CuckooDuration, Duration: 1500}, testTime)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ttl, ok := expiring.TTL()
	if !ok || ttl != 1500*time.Millisecond {
		t.Fatalf("TTL: got %v/%v, want 1.5s/true", ttl, ok)
	}

	attached, err := Create(testRealmID(0x55), "notes", nil, &rules,
		wire.Cuckoo{Kind: wire.CuckooParent, Parent: parent}, testTime)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, ok := attached.CuckooParent()
	if !ok || got != parent {
		t.Fatalf("CuckooParent: got %v/%v, want %v/true", got, ok, parent)
	}
}

// TestBadgeFlo ensures badge objects carry a delegated condition that
// rotates with the object version.
func TestBadgeFlo(t *testing.T) {
	owner := mustSigner(t)
	delegate := mustSigner(t)
	next := mustSigner(t)
	ownerRules := owner.Condition()
	delegated := delegate.Condition()

	f, err := CreateBadge(testRealmID(0x66), &delegated, &ownerRules,
		testTime)
	if err != nil {
		t.Fatalf("CreateBadge: %v", err)
	}
	badge, err := ParseBadgeFlo(f)
	if err != nil {
		t.Fatalf("ParseBadgeFlo: %v", err)
	}
	if badge.ID != f.ID() {
		t.Fatal("badge identifier differs from object identifier")
	}
	if badge.Version != 1 {
		t.Fatalf("badge version: got %d, want 1", badge.Version)
	}
	if badge.Condition.Hash() != delegated.Hash() {
		t.Fatal("badge condition differs from delegated condition")
	}

	// Rotating the badge replaces the delegated condition and advances
	// the version referenced by delegating rule sets.
	rotated := next.Condition()
	payload, err := rotated.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	u := NewDataUpdate(2, payload, testTime.Add(time.Second))
	err = SignUpdate(u, f.ID(), &ownerRules, owner)
	if err != nil {
		t.Fatalf("SignUpdate: %v", err)
	}
	err = f.AppendUpdate(u, nil)
	if err != nil {
		t.Fatalf("AppendUpdate: %v", err)
	}
	badge, err = ParseBadgeFlo(f)
	if err != nil {
		t.Fatalf("ParseBadgeFlo after rotation: %v", err)
	}
	if badge.Version != 2 {
		t.Fatalf("badge version after rotation: got %d, want 2",
			badge.Version)
	}
	if badge.Condition.Hash() != rotated.Hash() {
		t.Fatal("badge condition did not rotate")
	}

	plain := mustCreate(t, testRealmID(0x66), "notes", nil, &ownerRules)
	if _, err := ParseBadgeFlo(plain); !errors.Is(err, ErrNotBadge) {
		t.Fatalf("ParseBadgeFlo on plain object: got %v, want %v", err,
			ErrNotBadge)
	}
}
