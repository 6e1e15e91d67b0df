// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flo

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

// UpdateDigest returns the digest the proof signatures of a history entry
// cover.  The digest commits to the object identifier, so a signed entry
// cannot be replayed onto another object.
func UpdateDigest(id flid.ID, u *wire.Update) flid.ID {
	h := flid.New()
	u.WriteSignedData(h, id)
	var digest flid.ID
	copy(digest[:], h.Sum(nil))
	return digest
}

// NewDataUpdate returns an unsigned data entry at the given version.
func NewDataUpdate(version uint32, payload []byte, now time.Time) *wire.Update {
	return &wire.Update{
		Version:   version,
		Timestamp: now,
		Kind:      wire.UpdateData,
		Payload:   payload,
	}
}

// NewRulesUpdate returns an unsigned rule change entry at the given
// version.
func NewRulesUpdate(version uint32, rules *ace.Condition, now time.Time) (*wire.Update, error) {
	payload, err := rules.Serialize()
	if err != nil {
		return nil, err
	}
	return &wire.Update{
		Version:   version,
		Timestamp: now,
		Kind:      wire.UpdateRules,
		Payload:   payload,
	}, nil
}

// SignUpdate replaces the proof of the entry with signatures by the given
// signers.  Each signature covers the entry digest bound to cond, so it
// satisfies only that exact rule set.  Signers whose keys are reachable
// solely through a delegated badge must build the signature set by hand
// instead.
func SignUpdate(u *wire.Update, id flid.ID, cond *ace.Condition,
	signers ...*ace.KeySigner) error {

	digest := UpdateDigest(id, u)
	set := make(ace.SignatureSet, len(signers))
	for _, signer := range signers {
		err := set.Sign(signer, cond, digest[:])
		if err != nil {
			return err
		}
	}
	sigs, err := set.ToUpdateSigs()
	if err != nil {
		return err
	}
	u.Sigs = sigs
	return nil
}

// checkGenesis validates the two defining entries of the history.  They
// carry no proof requirement because the object identifier commits to
// them.
func checkGenesis(f *wire.Flo) error {
	if len(f.History) < 2 {
		msg := fmt.Sprintf("history has %d entries, need at least 2",
			len(f.History))
		return makeError(ErrBadGenesis, msg)
	}
	e0 := &f.History[0]
	if e0.Version != 0 || e0.Kind != wire.UpdateData {
		msg := fmt.Sprintf("first entry is %s version %d, not %s version 0",
			e0.Kind, e0.Version, wire.UpdateData)
		return makeError(ErrBadGenesis, msg)
	}
	e1 := &f.History[1]
	if e1.Version != 1 || e1.Kind != wire.UpdateRules {
		msg := fmt.Sprintf("second entry is %s version %d, not %s version 1",
			e1.Kind, e1.Version, wire.UpdateRules)
		return makeError(ErrBadGenesis, msg)
	}
	if e1.Timestamp.Before(e0.Timestamp) {
		msg := "second entry is older than the first"
		return makeError(ErrBadGenesis, msg)
	}
	_, err := ace.ParseCondition(e1.Payload)
	if err != nil {
		msg := fmt.Sprintf("defining rule set does not parse: %v", err)
		return makeError(ErrBadGenesis, msg)
	}
	return nil
}

// checkEntry validates history entry i structurally against its
// predecessor.  Proofs are not checked.
func checkEntry(f *wire.Flo, i int) error {
	u := &f.History[i]
	if u.Version != uint32(i) {
		msg := fmt.Sprintf("entry %d has version %d", i, u.Version)
		return makeError(ErrBadEntry, msg)
	}
	if u.Timestamp.Before(f.History[i-1].Timestamp) {
		msg := fmt.Sprintf("entry %d is older than its predecessor", i)
		return makeError(ErrBadEntry, msg)
	}
	switch u.Kind {
	case wire.UpdateData:
	case wire.UpdateRules:
		_, err := ace.ParseCondition(u.Payload)
		if err != nil {
			msg := fmt.Sprintf("rule set at entry %d does not parse: %v", i,
				err)
			return makeError(ErrBadRules, msg)
		}
	default:
		msg := fmt.Sprintf("entry %d has unknown kind %d", i, u.Kind)
		return makeError(ErrBadEntry, msg)
	}
	return nil
}

// rulesBefore returns the newest rule set with a version below the given
// one.  Every well-formed history has one since the second defining entry
// establishes the initial rule set.
func rulesBefore(f *wire.Flo, version uint32) (*ace.Condition, error) {
	last := len(f.History)
	if v := int(version); v < last {
		last = v
	}
	for i := last - 1; i >= 0; i-- {
		if f.History[i].Kind != wire.UpdateRules {
			continue
		}
		cond, err := ace.ParseCondition(f.History[i].Payload)
		if err != nil {
			msg := fmt.Sprintf("rule set at entry %d does not parse: %v", i,
				err)
			return nil, makeError(ErrBadRules, msg)
		}
		return cond, nil
	}
	msg := fmt.Sprintf("no rule set in force before version %d", version)
	return nil, makeError(ErrBadRules, msg)
}

// verifyEntry checks the proof of history entry i against the rule set in
// force before it.
func verifyEntry(f *wire.Flo, id flid.ID, i int, resolve ace.BadgeResolver) error {
	rules, err := rulesBefore(f, uint32(i))
	if err != nil {
		return err
	}
	u := &f.History[i]
	digest := UpdateDigest(id, u)
	sigs := ace.FromUpdateSigs(u.Sigs)
	if !ace.Evaluate(rules, sigs, digest[:], resolve) {
		msg := fmt.Sprintf("proof of entry %d does not satisfy the rule set",
			i)
		return makeError(ErrRuleRejected, msg)
	}
	return nil
}

// CheckStructure validates the shape of the whole history without checking
// any proofs.
func CheckStructure(f *wire.Flo) error {
	err := checkGenesis(f)
	if err != nil {
		return err
	}
	if len(f.History) > wire.MaxHistoryEntries {
		msg := fmt.Sprintf("history has %d entries, limit %d",
			len(f.History), wire.MaxHistoryEntries)
		return makeError(ErrBadEntry, msg)
	}
	for i := 2; i < len(f.History); i++ {
		err := checkEntry(f, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// VerifyAppend checks that the proposed entry may extend the object's
// history: it must carry the next version, must not be backdated, and its
// proof must satisfy the rule set currently in force.
func VerifyAppend(f *wire.Flo, id flid.ID, u *wire.Update, resolve ace.BadgeResolver) error {
	tip := f.Version()
	if u.Version <= tip {
		msg := fmt.Sprintf("proposed version %d is not newer than %d",
			u.Version, tip)
		return makeError(ErrStaleVersion, msg)
	}
	if u.Version != tip+1 {
		msg := fmt.Sprintf("proposed version %d skips over %d", u.Version,
			tip+1)
		return makeError(ErrBadEntry, msg)
	}
	if len(f.History) >= wire.MaxHistoryEntries {
		msg := fmt.Sprintf("history already has %d entries",
			wire.MaxHistoryEntries)
		return makeError(ErrBadEntry, msg)
	}
	if u.Timestamp.Before(f.History[len(f.History)-1].Timestamp) {
		msg := fmt.Sprintf("proposed entry %d is older than the newest "+
			"stored entry", u.Version)
		return makeError(ErrBadEntry, msg)
	}
	switch u.Kind {
	case wire.UpdateData:
	case wire.UpdateRules:
		_, err := ace.ParseCondition(u.Payload)
		if err != nil {
			msg := fmt.Sprintf("proposed rule set does not parse: %v", err)
			return makeError(ErrBadRules, msg)
		}
	default:
		msg := fmt.Sprintf("proposed entry has unknown kind %d", u.Kind)
		return makeError(ErrBadEntry, msg)
	}

	rules, err := rulesBefore(f, u.Version)
	if err != nil {
		return err
	}
	digest := UpdateDigest(id, u)
	sigs := ace.FromUpdateSigs(u.Sigs)
	if !ace.Evaluate(rules, sigs, digest[:], resolve) {
		msg := fmt.Sprintf("proof of proposed entry %d does not satisfy "+
			"the rule set", u.Version)
		return makeError(ErrRuleRejected, msg)
	}
	return nil
}

// VerifyHistory validates the whole history of the object including the
// proof of every entry past the definition.
func VerifyHistory(f *wire.Flo, resolve ace.BadgeResolver) error {
	err := CheckStructure(f)
	if err != nil {
		return err
	}
	id := f.CalcID()
	for i := 2; i < len(f.History); i++ {
		err := verifyEntry(f, id, i, resolve)
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidPrefixLen returns the length of the longest history prefix that
// verifies, or 0 when even the defining entries are invalid.
func ValidPrefixLen(f *wire.Flo, resolve ace.BadgeResolver) int {
	if checkGenesis(f) != nil {
		return 0
	}
	id := f.CalcID()
	n := len(f.History)
	if n > wire.MaxHistoryEntries {
		n = wire.MaxHistoryEntries
	}
	for i := 2; i < n; i++ {
		if checkEntry(f, i) != nil || verifyEntry(f, id, i, resolve) != nil {
			return i
		}
	}
	return n
}

// historyDigest hashes the first n history entries, proofs included, so
// diverged histories of equal length order deterministically.
func historyDigest(f *wire.Flo, id flid.ID, n int) flid.ID {
	h := flid.New()
	for i := 0; i < n; i++ {
		u := &f.History[i]
		u.WriteSignedData(h, id)
		for j := range u.Sigs {
			h.Write(u.Sigs[j].PubKey[:])
			h.Write(u.Sigs[j].Sig[:])
		}
	}
	var digest flid.ID
	copy(digest[:], h.Sum(nil))
	return digest
}

// Reconcile returns the copy of the object both sides of an exchange agree
// on, together with whether that copy differs from the local one.  Each
// copy counts only its longest verifiable prefix, the copy with the longer
// surviving history wins, and a tie between diverged histories of equal
// length goes to the smaller history digest.  Running the same exchange on
// both ends therefore converges in a single round.
func Reconcile(local, remote *wire.Flo, resolve ace.BadgeResolver) (*wire.Flo, bool) {
	id := local.CalcID()
	if remote.CalcID() != id {
		return local, false
	}
	nl := ValidPrefixLen(local, resolve)
	nr := ValidPrefixLen(remote, resolve)

	winner, n := local, nl
	if nr > nl {
		winner, n = remote, nr
	} else if nr == nl && nr > 0 {
		dl := historyDigest(local, id, nl)
		dr := historyDigest(remote, id, nr)
		if bytes.Compare(dr[:], dl[:]) < 0 {
			winner, n = remote, nr
		}
	}
	if winner == local && n == len(local.History) {
		return local, false
	}
	if n < 2 {
		return local, false
	}

	merged := *winner
	merged.History = winner.History[:n:n]
	return &merged, true
}
