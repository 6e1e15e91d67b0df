// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ace

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ineiti/fledger/flid"
)

// mustSigner generates a fresh key signer or aborts the test.
func mustSigner(t *testing.T) *KeySigner {
	t.Helper()
	signer, err := GenerateKeySigner()
	if err != nil {
		t.Fatalf("GenerateKeySigner: %v", err)
	}
	return signer
}

// signFor adds a signature over the digest the given top level condition
// requires, without checking tree membership.  Tests use it to sign for
// keys reached through delegated badges.
func signFor(t *testing.T, set SignatureSet, signer *KeySigner, cond *Condition, msg []byte) {
	t.Helper()
	sig, err := signer.Sign(cond.SignedDigest(msg))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	set[signer.KeyID()] = Signature{PubKey: signer.PubKey(), Sig: sig}
}

// TestEvaluateVerifier tests satisfaction of a single key condition.
func TestEvaluateVerifier(t *testing.T) {
	signer := mustSigner(t)
	stranger := mustSigner(t)
	cond := signer.Condition()
	msg := []byte("update digest")

	sigs := make(SignatureSet)
	if err := sigs.Sign(signer, &cond, msg); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !Evaluate(&cond, sigs, msg, nil) {
		t.Fatal("valid signature rejected")
	}
	if Evaluate(&cond, sigs, []byte("another digest"), nil) {
		t.Fatal("signature accepted for a different message")
	}
	if Evaluate(&cond, make(SignatureSet), msg, nil) {
		t.Fatal("empty signature set accepted")
	}

	// A signature entry carrying a public key that does not hash to the
	// required identifier must be rejected.
	forged := make(SignatureSet)
	forged[signer.KeyID()] = Signature{
		PubKey: stranger.PubKey(),
		Sig:    sigs[signer.KeyID()].Sig,
	}
	if Evaluate(&cond, forged, msg, nil) {
		t.Fatal("mismatched public key accepted")
	}

	// Signing with a key the condition does not name fails.
	err := sigs.Sign(stranger, &cond, msg)
	if !errors.Is(err, ErrNoSuchKey) {
		t.Fatalf("Sign with foreign key: got %v, want %v", err,
			ErrNoSuchKey)
	}
}

// TestEvaluateThreshold tests satisfaction counting of threshold
// conditions.
func TestEvaluateThreshold(t *testing.T) {
	a := mustSigner(t)
	b := mustSigner(t)
	c := mustSigner(t)
	msg := []byte("update digest")

	cond := NewThresholdCondition(2, a.Condition(), b.Condition(),
		c.Condition())

	sign := func(signers ...*KeySigner) SignatureSet {
		set := make(SignatureSet)
		for _, s := range signers {
			if err := set.Sign(s, &cond, msg); err != nil {
				t.Fatalf("Sign: %v", err)
			}
		}
		return set
	}

	if Evaluate(&cond, sign(), msg, nil) {
		t.Fatal("no signatures satisfied 2 of 3")
	}
	if Evaluate(&cond, sign(a), msg, nil) {
		t.Fatal("one signature satisfied 2 of 3")
	}
	if !Evaluate(&cond, sign(a, c), msg, nil) {
		t.Fatal("two signatures rejected for 2 of 3")
	}
	if !Evaluate(&cond, sign(a, b, c), msg, nil) {
		t.Fatal("three signatures rejected for 2 of 3")
	}

	// A zero threshold passes without signatures.
	empty := NewThresholdCondition(0)
	if !Evaluate(&empty, make(SignatureSet), msg, nil) {
		t.Fatal("zero threshold rejected")
	}

	// A threshold above the number of sub conditions never passes.
	steep := NewThresholdCondition(3, a.Condition(), b.Condition())
	steepSigs := make(SignatureSet)
	for _, s := range []*KeySigner{a, b} {
		if err := steepSigs.Sign(s, &steep, msg); err != nil {
			t.Fatalf("Sign: %v", err)
		}
	}
	if Evaluate(&steep, steepSigs, msg, nil) {
		t.Fatal("3 of 2 threshold satisfied")
	}
}

// TestEvaluateNestedThreshold tests counting across nested threshold
// nodes.
func TestEvaluateNestedThreshold(t *testing.T) {
	a := mustSigner(t)
	b := mustSigner(t)
	c := mustSigner(t)
	msg := []byte("update digest")

	cond := NewThresholdCondition(2,
		a.Condition(),
		NewThresholdCondition(1, b.Condition(), c.Condition()))

	tests := []struct {
		name    string
		signers []*KeySigner
		want    bool
	}{
		{"a alone", []*KeySigner{a}, false},
		{"b and c alone", []*KeySigner{b, c}, false},
		{"a and c", []*KeySigner{a, c}, true},
		{"a and b", []*KeySigner{a, b}, true},
		{"all three", []*KeySigner{a, b, c}, true},
	}
	for _, test := range tests {
		set := make(SignatureSet)
		for _, s := range test.signers {
			if err := set.Sign(s, &cond, msg); err != nil {
				t.Fatalf("%s: Sign: %v", test.name, err)
			}
		}
		if got := Evaluate(&cond, set, msg, nil); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

// TestEvaluateBadge tests delegation to a badge held condition under the
// various version acceptance modes.
func TestEvaluateBadge(t *testing.T) {
	owner := mustSigner(t)
	badgeID := testID(0x42)
	badge := &Badge{
		ID:        badgeID,
		Version:   3,
		Condition: owner.Condition(),
	}
	resolve := func(ref BadgeRef) *Badge {
		if ref.ID == badgeID {
			return badge
		}
		return nil
	}
	msg := []byte("update digest")

	tests := []struct {
		name string
		ref  BadgeRef
		want bool
	}{{
		name: "exact match",
		ref:  BadgeRef{ID: badgeID, Version: 3, Mode: VersionExact},
		want: true,
	}, {
		name: "exact mismatch",
		ref:  BadgeRef{ID: badgeID, Version: 4, Mode: VersionExact},
		want: false,
	}, {
		name: "minimal accepts newer",
		ref:  BadgeRef{ID: badgeID, Version: 2, Mode: VersionMinimal},
		want: true,
	}, {
		name: "maximal rejects newer",
		ref:  BadgeRef{ID: badgeID, Version: 2, Mode: VersionMaximal},
		want: false,
	}, {
		name: "unknown badge",
		ref:  BadgeRef{ID: testID(0x43), Version: 3, Mode: VersionExact},
		want: false,
	}}
	for _, test := range tests {
		cond := NewBadgeCondition(test.ref)
		sigs := make(SignatureSet)
		signFor(t, sigs, owner, &cond, msg)
		if got := Evaluate(&cond, sigs, msg, resolve); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}

	// Without a resolver a delegation cannot be satisfied.
	cond := NewBadgeCondition(BadgeRef{ID: badgeID, Version: 3,
		Mode: VersionExact})
	sigs := make(SignatureSet)
	signFor(t, sigs, owner, &cond, msg)
	if Evaluate(&cond, sigs, msg, nil) {
		t.Fatal("delegation satisfied without a resolver")
	}

	// A resolver answering with a badge other than the referenced one is
	// ignored.
	lying := func(ref BadgeRef) *Badge {
		return &Badge{ID: testID(0x99), Version: 3,
			Condition: owner.Condition()}
	}
	if Evaluate(&cond, sigs, msg, lying) {
		t.Fatal("delegation satisfied by the wrong badge")
	}
}

// TestEvaluateBadgeCycle tests that delegation cycles terminate and that a
// badge satisfies at most one branch per evaluation.
func TestEvaluateBadgeCycle(t *testing.T) {
	owner := mustSigner(t)
	idA := testID(0xa0)
	idB := testID(0xb0)
	msg := []byte("update digest")

	refA := BadgeRef{ID: idA, Version: 1, Mode: VersionExact}
	refB := BadgeRef{ID: idB, Version: 1, Mode: VersionExact}

	// A and B delegate to each other.
	badges := map[flid.ID]*Badge{
		idA: {ID: idA, Version: 1, Condition: NewBadgeCondition(refB)},
		idB: {ID: idB, Version: 1, Condition: NewBadgeCondition(refA)},
	}
	resolve := func(ref BadgeRef) *Badge { return badges[ref.ID] }

	cond := NewBadgeCondition(refA)
	sigs := make(SignatureSet)
	signFor(t, sigs, owner, &cond, msg)
	if Evaluate(&cond, sigs, msg, resolve) {
		t.Fatal("mutual delegation cycle satisfied")
	}

	// A badge delegating to itself.
	badges[idA] = &Badge{ID: idA, Version: 1,
		Condition: NewBadgeCondition(refA)}
	if Evaluate(&cond, sigs, msg, resolve) {
		t.Fatal("self delegation cycle satisfied")
	}

	// A badge counts toward at most one branch, so naming it twice does
	// not double its vote.
	badges[idA] = &Badge{ID: idA, Version: 1, Condition: owner.Condition()}
	double := NewThresholdCondition(2, NewBadgeCondition(refA),
		NewBadgeCondition(refA))
	doubleSigs := make(SignatureSet)
	signFor(t, doubleSigs, owner, &double, msg)
	if Evaluate(&double, doubleSigs, msg, resolve) {
		t.Fatal("repeated badge satisfied a 2 of 2 threshold")
	}

	single := NewThresholdCondition(1, NewBadgeCondition(refA),
		NewBadgeCondition(refA))
	singleSigs := make(SignatureSet)
	signFor(t, singleSigs, owner, &single, msg)
	if !Evaluate(&single, singleSigs, msg, resolve) {
		t.Fatal("first badge visit rejected")
	}
}

// TestEvaluateConditionBinding tests that signatures collected for one
// condition tree never satisfy another.
func TestEvaluateConditionBinding(t *testing.T) {
	signer := mustSigner(t)
	msg := []byte("update digest")

	condA := signer.Condition()
	condB := NewThresholdCondition(1, signer.Condition())

	sigs := make(SignatureSet)
	if err := sigs.Sign(signer, &condA, msg); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Evaluate(&condA, sigs, msg, nil) {
		t.Fatal("signature rejected by its own condition")
	}
	if Evaluate(&condB, sigs, msg, nil) {
		t.Fatal("signature reused across condition trees")
	}
}

// TestContainsKey tests tree membership lookups.
func TestContainsKey(t *testing.T) {
	a := mustSigner(t)
	b := mustSigner(t)

	cond := NewThresholdCondition(1,
		a.Condition(),
		NewBadgeCondition(BadgeRef{ID: testID(0x42), Version: 1,
			Mode: VersionExact}))

	if !cond.ContainsKey(a.KeyID()) {
		t.Fatal("named key not found")
	}

	// Keys behind delegated badges are not part of the tree itself.
	if cond.ContainsKey(b.KeyID()) {
		t.Fatal("foreign key found")
	}
}

// TestSignatureSetUpdateSigs tests conversion between signature sets and
// history entry proofs.
func TestSignatureSetUpdateSigs(t *testing.T) {
	a := mustSigner(t)
	b := mustSigner(t)
	msg := []byte("update digest")
	cond := NewThresholdCondition(2, a.Condition(), b.Condition())

	set := make(SignatureSet)
	for _, s := range []*KeySigner{a, b} {
		if err := set.Sign(s, &cond, msg); err != nil {
			t.Fatalf("Sign: %v", err)
		}
	}

	sigs, err := set.ToUpdateSigs()
	if err != nil {
		t.Fatalf("ToUpdateSigs: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("got %d proof signatures, want 2", len(sigs))
	}
	first, second := sigs[0].KeyID(), sigs[1].KeyID()
	if bytes.Compare(first[:], second[:]) >= 0 {
		t.Fatal("proof signatures not ordered by key identifier")
	}

	restored := FromUpdateSigs(sigs)
	if !Evaluate(&cond, restored, msg, nil) {
		t.Fatal("restored signature set rejected")
	}

	// Malformed entries are refused rather than truncated.
	bad := SignatureSet{
		testID(0x01): {PubKey: []byte{0x02}, Sig: make([]byte, SignatureLen)},
	}
	if _, err := bad.ToUpdateSigs(); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("short public key: got %v, want %v", err, ErrBadSignature)
	}
	bad = SignatureSet{
		testID(0x01): {PubKey: make([]byte, PubKeyLen), Sig: []byte{0x01}},
	}
	if _, err := bad.ToUpdateSigs(); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("short signature: got %v, want %v", err, ErrBadSignature)
	}
}
