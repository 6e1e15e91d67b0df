// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flo

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/wire"
)

// TestVerifyAppend exercises the acceptance rules for proposed history
// entries.
func TestVerifyAppend(t *testing.T) {
	signerA := mustSigner(t)
	signerB := mustSigner(t)
	signerC := mustSigner(t)
	rulesA := signerA.Condition()
	rulesB := signerB.Condition()

	newFlo := func(rules *ace.Condition) *Flo {
		return mustCreate(t, testRealmID(0x01), "notes", []byte("genesis"),
			rules)
	}
	signedUpdate := func(f *Flo, version uint32, ts time.Time,
		cond *ace.Condition, signers ...*ace.KeySigner) *wire.Update {

		u := NewDataUpdate(version, []byte("next"), ts)
		if len(signers) > 0 {
			err := SignUpdate(u, f.ID(), cond, signers...)
			if err != nil {
				t.Fatalf("SignUpdate: %v", err)
			}
		}
		return u
	}

	t.Run("valid", func(t *testing.T) {
		f := newFlo(&rulesA)
		u := signedUpdate(f, 2, testTime.Add(time.Second), &rulesA, signerA)
		if err := f.AppendUpdate(u, nil); err != nil {
			t.Fatalf("AppendUpdate: %v", err)
		}
		if f.WireFlo().Version() != 2 {
			t.Fatalf("version after append: got %d, want 2",
				f.WireFlo().Version())
		}
	})

	t.Run("stale version", func(t *testing.T) {
		f := newFlo(&rulesA)
		u := signedUpdate(f, 1, testTime.Add(time.Second), &rulesA, signerA)
		err := VerifyAppend(f.WireFlo(), f.ID(), u, nil)
		if !errors.Is(err, ErrStaleVersion) {
			t.Fatalf("got %v, want %v", err, ErrStaleVersion)
		}
	})

	t.Run("version gap", func(t *testing.T) {
		f := newFlo(&rulesA)
		u := signedUpdate(f, 4, testTime.Add(time.Second), &rulesA, signerA)
		err := VerifyAppend(f.WireFlo(), f.ID(), u, nil)
		if !errors.Is(err, ErrBadEntry) {
			t.Fatalf("got %v, want %v", err, ErrBadEntry)
		}
	})

	t.Run("backdated", func(t *testing.T) {
		f := newFlo(&rulesA)
		u := signedUpdate(f, 2, testTime.Add(-time.Hour), &rulesA, signerA)
		err := VerifyAppend(f.WireFlo(), f.ID(), u, nil)
		if !errors.Is(err, ErrBadEntry) {
			t.Fatalf("got %v, want %v", err, ErrBadEntry)
		}
	})

	t.Run("no proof", func(t *testing.T) {
		f := newFlo(&rulesA)
		u := signedUpdate(f, 2, testTime.Add(time.Second), nil)
		err := VerifyAppend(f.WireFlo(), f.ID(), u, nil)
		if !errors.Is(err, ErrRuleRejected) {
			t.Fatalf("got %v, want %v", err, ErrRuleRejected)
		}
	})

	t.Run("wrong signer", func(t *testing.T) {
		f := newFlo(&rulesA)
		u := signedUpdate(f, 2, testTime.Add(time.Second), &rulesB, signerB)
		err := VerifyAppend(f.WireFlo(), f.ID(), u, nil)
		if !errors.Is(err, ErrRuleRejected) {
			t.Fatalf("got %v, want %v", err, ErrRuleRejected)
		}
	})

	t.Run("half of threshold", func(t *testing.T) {
		rules := ace.NewThresholdCondition(2, signerA.Condition(),
			signerB.Condition(), signerC.Condition())
		f := newFlo(&rules)
		u := signedUpdate(f, 2, testTime.Add(time.Second), &rules, signerA)
		err := VerifyAppend(f.WireFlo(), f.ID(), u, nil)
		if !errors.Is(err, ErrRuleRejected) {
			t.Fatalf("one of two signatures: got %v, want %v", err,
				ErrRuleRejected)
		}
		u = signedUpdate(f, 2, testTime.Add(time.Second), &rules, signerA,
			signerC)
		if err := VerifyAppend(f.WireFlo(), f.ID(), u, nil); err != nil {
			t.Fatalf("two of three signatures: %v", err)
		}
	})

	t.Run("open rules", func(t *testing.T) {
		open := ace.NewThresholdCondition(0)
		f := newFlo(&open)
		u := signedUpdate(f, 2, testTime.Add(time.Second), nil)
		if err := VerifyAppend(f.WireFlo(), f.ID(), u, nil); err != nil {
			t.Fatalf("unsigned entry under open rules: %v", err)
		}
	})

	t.Run("other object", func(t *testing.T) {
		f := newFlo(&rulesA)
		g := mustCreate(t, testRealmID(0x01), "notes", []byte("other"),
			&rulesA)
		u := signedUpdate(g, 2, testTime.Add(time.Second), &rulesA, signerA)
		err := VerifyAppend(f.WireFlo(), f.ID(), u, nil)
		if !errors.Is(err, ErrRuleRejected) {
			t.Fatalf("replayed entry: got %v, want %v", err, ErrRuleRejected)
		}
	})
}

// TestRulesRotation ensures a rule change is authorized by the old rule set
// and governs every entry after it.
func TestRulesRotation(t *testing.T) {
	signerA := mustSigner(t)
	signerB := mustSigner(t)
	rulesA := signerA.Condition()
	rulesB := signerB.Condition()

	f := mustCreate(t, testRealmID(0x02), "notes", []byte("genesis"),
		&rulesA)
	id := f.ID()

	u2, err := NewRulesUpdate(2, &rulesB, testTime.Add(time.Second))
	if err != nil {
		t.Fatalf("NewRulesUpdate: %v", err)
	}
	if err := SignUpdate(u2, id, &rulesA, signerA); err != nil {
		t.Fatalf("SignUpdate: %v", err)
	}
	if err := f.AppendUpdate(u2, nil); err != nil {
		t.Fatalf("rule change under old rules: %v", err)
	}

	got, err := f.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if got.Hash() != rulesB.Hash() {
		t.Fatal("rule set did not rotate")
	}

	// The old owner lost control with the rotation.
	u3 := NewDataUpdate(3, []byte("stale owner"), testTime.Add(2*time.Second))
	if err := SignUpdate(u3, id, &rulesA, signerA); err != nil {
		t.Fatalf("SignUpdate: %v", err)
	}
	err = VerifyAppend(f.WireFlo(), id, u3, nil)
	if !errors.Is(err, ErrRuleRejected) {
		t.Fatalf("old owner after rotation: got %v, want %v", err,
			ErrRuleRejected)
	}

	mustAppendData(t, f, []byte("new owner"), &rulesB, signerB)
	if err := VerifyHistory(f.WireFlo(), nil); err != nil {
		t.Fatalf("VerifyHistory: %v", err)
	}
}

// TestVerifyHistory ensures full history verification accepts a valid
// history and pins down which entry broke an invalid one.
func TestVerifyHistory(t *testing.T) {
	signer := mustSigner(t)
	rules := signer.Condition()
	f := mustCreate(t, testRealmID(0x03), "notes", []byte("genesis"), &rules)
	mustAppendData(t, f, []byte("two"), &rules, signer)
	mustAppendData(t, f, []byte("three"), &rules, signer)

	if err := VerifyHistory(f.WireFlo(), nil); err != nil {
		t.Fatalf("VerifyHistory: %v", err)
	}
	if got := ValidPrefixLen(f.WireFlo(), nil); got != 4 {
		t.Fatalf("ValidPrefixLen: got %d, want 4", got)
	}

	// Stripping the proof of entry 2 invalidates it and everything after.
	clone := *f.WireFlo()
	clone.History = append([]wire.Update(nil), f.WireFlo().History...)
	clone.History[2].Sigs = nil
	err := VerifyHistory(&clone, nil)
	if !errors.Is(err, ErrRuleRejected) {
		t.Fatalf("stripped proof: got %v, want %v", err, ErrRuleRejected)
	}
	if got := ValidPrefixLen(&clone, nil); got != 2 {
		t.Fatalf("ValidPrefixLen with stripped proof: got %d, want 2", got)
	}

	// A broken definition leaves nothing valid.
	clone.History[0].Version = 7
	if err := VerifyHistory(&clone, nil); !errors.Is(err, ErrBadGenesis) {
		t.Fatalf("broken definition: got %v, want %v", err, ErrBadGenesis)
	}
	if got := ValidPrefixLen(&clone, nil); got != 0 {
		t.Fatalf("ValidPrefixLen with broken definition: got %d, want 0",
			got)
	}
}

// TestEntryImmutability ensures the identifier commits to the defining
// entries only, so later appends never change it.
func TestEntryImmutability(t *testing.T) {
	signer := mustSigner(t)
	rules := signer.Condition()
	f := mustCreate(t, testRealmID(0x04), "notes", []byte("genesis"), &rules)
	id := f.WireFlo().CalcID()

	mustAppendData(t, f, []byte("two"), &rules, signer)
	mustAppendData(t, f, []byte("three"), &rules, signer)
	if got := f.WireFlo().CalcID(); got != id {
		t.Fatalf("identifier changed after appends: %s != %s", got, id)
	}
}

// TestReconcile ensures two holders of diverged copies settle on the same
// copy regardless of which side runs the exchange.
func TestReconcile(t *testing.T) {
	signer := mustSigner(t)
	rules := signer.Condition()

	base := func() *Flo {
		return mustCreate(t, testRealmID(0x05), "notes", []byte("genesis"),
			&rules)
	}

	t.Run("longer history wins", func(t *testing.T) {
		short := base()
		long := base()
		mustAppendData(t, short, []byte("a2"), &rules, signer)
		mustAppendData(t, long, []byte("b2"), &rules, signer)
		mustAppendData(t, long, []byte("b3"), &rules, signer)

		merged, changed := Reconcile(short.WireFlo(), long.WireFlo(), nil)
		if !changed {
			t.Fatal("longer remote history did not replace local")
		}
		if !reflect.DeepEqual(merged.History, long.WireFlo().History) {
			t.Fatal("merged history is not the longer history")
		}

		merged, changed = Reconcile(long.WireFlo(), short.WireFlo(), nil)
		if changed {
			t.Fatal("shorter remote history replaced local")
		}
		if !reflect.DeepEqual(merged.History, long.WireFlo().History) {
			t.Fatal("merged history is not the longer history")
		}
	})

	t.Run("equal length tie break", func(t *testing.T) {
		fa := base()
		fb := base()
		mustAppendData(t, fa, []byte("fork a"), &rules, signer)
		mustAppendData(t, fb, []byte("fork b"), &rules, signer)

		ma, _ := Reconcile(fa.WireFlo(), fb.WireFlo(), nil)
		mb, _ := Reconcile(fb.WireFlo(), fa.WireFlo(), nil)
		if !reflect.DeepEqual(ma.History, mb.History) {
			t.Fatal("the two sides settled on different histories")
		}
	})

	t.Run("identical copies", func(t *testing.T) {
		f := base()
		mustAppendData(t, f, []byte("two"), &rules, signer)
		clone := *f.WireFlo()
		clone.History = append([]wire.Update(nil), f.WireFlo().History...)

		merged, changed := Reconcile(f.WireFlo(), &clone, nil)
		if changed {
			t.Fatal("identical remote copy reported as a change")
		}
		if merged != f.WireFlo() {
			t.Fatal("identical copies did not keep the local object")
		}
	})

	t.Run("invalid tail loses", func(t *testing.T) {
		good := base()
		bad := base()
		mustAppendData(t, good, []byte("two"), &rules, signer)
		mustAppendData(t, bad, []byte("two"), &rules, signer)
		mustAppendData(t, bad, []byte("three"), &rules, signer)
		badWire := bad.WireFlo()
		badWire.History[2].Sigs = nil

		merged, changed := Reconcile(good.WireFlo(), badWire, nil)
		if changed {
			t.Fatal("copy with an invalid tail replaced a valid copy")
		}
		if !reflect.DeepEqual(merged.History, good.WireFlo().History) {
			t.Fatal("merged history is not the valid copy")
		}
	})

	t.Run("other object ignored", func(t *testing.T) {
		f := base()
		other := mustCreate(t, testRealmID(0x05), "notes", []byte("other"),
			&rules)
		merged, changed := Reconcile(f.WireFlo(), other.WireFlo(), nil)
		if changed || merged != f.WireFlo() {
			t.Fatal("copy of a different object was merged")
		}
	})
}

// TestUpdateDigest ensures the signed digest binds to the object identifier
// and the entry content.
func TestUpdateDigest(t *testing.T) {
	u := NewDataUpdate(2, []byte("payload"), testTime)
	d1 := UpdateDigest(testRealmID(0x06), u)
	d2 := UpdateDigest(testRealmID(0x07), u)
	if d1 == d2 {
		t.Fatal("digest does not depend on the object identifier")
	}
	u2 := NewDataUpdate(2, []byte("payload!"), testTime)
	d3 := UpdateDigest(testRealmID(0x06), u2)
	if d1 == d3 {
		t.Fatal("digest does not depend on the entry payload")
	}
	if d1 != UpdateDigest(testRealmID(0x06), u) {
		t.Fatal("digest is not deterministic")
	}
}
