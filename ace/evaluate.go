// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ace

import (
	"github.com/ineiti/fledger/flid"
)

// Badge is a named access rule set held by an object on the network.  Other
// conditions may delegate to it, so that rotating the keys behind a badge
// updates every rule set referring to it without touching those rule sets.
type Badge struct {
	ID        flid.ID
	Version   uint32
	Condition Condition
}

// BadgeResolver looks up the badge a delegation refers to.  A nil result
// means the badge is unknown or no stored version satisfies the reference,
// and the delegating branch evaluates to false.
type BadgeResolver func(ref BadgeRef) *Badge

// ContainsKey reports whether the key identifier appears as a verifier leaf
// anywhere in the condition tree.  Delegated badges are not followed.
func (c *Condition) ContainsKey(keyID flid.ID) bool {
	switch c.Kind {
	case CondVerifier:
		return c.KeyID == keyID
	case CondThreshold:
		for i := range c.Subs {
			if c.Subs[i].ContainsKey(keyID) {
				return true
			}
		}
	}
	return false
}

// Evaluate reports whether the collected signatures over msgDigest satisfy
// the condition tree.  Delegated badges are resolved through resolve, which
// may be nil when the tree holds no badge conditions.
//
// Every signature is verified against the digest bound to the top level
// condition, including those reached through a delegated badge, so a proof
// collected for one rule set never satisfies another.  Each badge is
// followed at most once per evaluation and a repeat visit evaluates to
// false, which keeps delegation cycles from recursing and from passing
// vacuously.
func Evaluate(cond *Condition, sigs SignatureSet, msgDigest []byte, resolve BadgeResolver) bool {
	digest := cond.SignedDigest(msgDigest)
	visited := make(map[flid.ID]struct{})
	return evalCondition(cond, sigs, digest, resolve, visited, 0)
}

func evalCondition(c *Condition, sigs SignatureSet, digest flid.ID,
	resolve BadgeResolver, visited map[flid.ID]struct{}, depth int) bool {

	if depth >= MaxConditionDepth {
		return false
	}

	switch c.Kind {
	case CondVerifier:
		sig, ok := sigs[c.KeyID]
		if !ok {
			return false
		}
		v, err := ParseKeyVerifier(sig.PubKey)
		if err != nil || v.KeyID() != c.KeyID {
			return false
		}
		return v.Verify(digest, sig.Sig)

	case CondThreshold:
		if c.Threshold == 0 {
			return true
		}
		if uint64(len(c.Subs)) < uint64(c.Threshold) {
			return false
		}
		var satisfied uint32
		for i := range c.Subs {
			if evalCondition(&c.Subs[i], sigs, digest, resolve, visited,
				depth+1) {
				satisfied++
				if satisfied >= c.Threshold {
					return true
				}
			}
		}
		return false

	case CondBadge:
		if _, ok := visited[c.Badge.ID]; ok {
			return false
		}
		visited[c.Badge.ID] = struct{}{}
		if resolve == nil {
			return false
		}
		badge := resolve(c.Badge)
		if badge == nil || badge.ID != c.Badge.ID ||
			!c.Badge.Accepts(badge.Version) {
			return false
		}
		return evalCondition(&badge.Condition, sigs, digest, resolve,
			visited, depth+1)
	}

	return false
}
