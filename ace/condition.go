// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ace

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/decred/dcrd/crypto/blake256"

	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

const (
	// MaxConditionDepth is the maximum nesting depth accepted when
	// decoding a condition tree.
	MaxConditionDepth = 16

	// MaxConditionSubs is the maximum number of direct sub conditions a
	// threshold condition may carry.
	MaxConditionSubs = 64
)

// Tags describing the digests produced by this package.
//
// These strings must not contain the comma, which is reserved as a separator
// character.
const (
	condVerifierTag  = "fledger-cond-verifier"
	condThresholdTag = "fledger-cond-threshold"
	condBadgeTag     = "fledger-cond-badge"
	condInvalidTag   = "fledger-cond-invalid"
	signTag          = "fledger-cond-signature"
)

var sep = []byte{','}

// ConditionKind describes the kind of a condition tree node.
type ConditionKind uint8

const (
	// CondVerifier conditions are satisfied by a valid signature from a
	// single key.
	CondVerifier ConditionKind = 0

	// CondThreshold conditions are satisfied when at least the threshold
	// number of their sub conditions are satisfied.
	CondThreshold ConditionKind = 1

	// CondBadge conditions delegate to the condition held by another
	// badge.
	CondBadge ConditionKind = 2
)

// String returns the ConditionKind in human-readable form.
func (k ConditionKind) String() string {
	switch k {
	case CondVerifier:
		return "verifier"
	case CondThreshold:
		return "threshold"
	case CondBadge:
		return "badge"
	}
	return fmt.Sprintf("unknown ConditionKind (%d)", uint8(k))
}

// VersionMode describes which versions of a referenced badge a delegation
// accepts.
type VersionMode uint8

const (
	// VersionMinimal accepts the referenced version and anything newer.
	VersionMinimal VersionMode = 0

	// VersionExact accepts only the referenced version.
	VersionExact VersionMode = 1

	// VersionMaximal accepts the referenced version and anything older.
	VersionMaximal VersionMode = 2
)

// String returns the VersionMode in human-readable form.
func (m VersionMode) String() string {
	switch m {
	case VersionMinimal:
		return "minimal"
	case VersionExact:
		return "exact"
	case VersionMaximal:
		return "maximal"
	}
	return fmt.Sprintf("unknown VersionMode (%d)", uint8(m))
}

// BadgeRef identifies a badge and the versions of it the referrer trusts.
type BadgeRef struct {
	ID      flid.ID
	Version uint32
	Mode    VersionMode
}

// Accepts reports whether a badge at the given version satisfies the
// reference.
func (r *BadgeRef) Accepts(version uint32) bool {
	switch r.Mode {
	case VersionMinimal:
		return version >= r.Version
	case VersionExact:
		return version == r.Version
	case VersionMaximal:
		return version <= r.Version
	}
	return false
}

// Condition is one node of a boolean access rule tree.  Only the fields
// matching the Kind are meaningful.
//
// A verifier leaf names the key whose signature satisfies it.  A threshold
// node is satisfied when at least Threshold of its sub conditions are
// satisfied, which also expresses AND (N of N) and OR (1 of N).  A badge
// node delegates to the condition held by another badge, resolved at
// evaluation time.
type Condition struct {
	Kind ConditionKind

	// KeyID is the identifier of the signing key for CondVerifier.
	KeyID flid.ID

	// Threshold and Subs describe a CondThreshold node.
	Threshold uint32
	Subs      []Condition

	// Badge references the delegated badge for CondBadge.
	Badge BadgeRef
}

// NewVerifierCondition returns a condition satisfied by a signature from
// the key with the given identifier.
func NewVerifierCondition(keyID flid.ID) Condition {
	return Condition{Kind: CondVerifier, KeyID: keyID}
}

// NewThresholdCondition returns a condition satisfied when at least
// threshold of the sub conditions are satisfied.
func NewThresholdCondition(threshold uint32, subs ...Condition) Condition {
	return Condition{Kind: CondThreshold, Threshold: threshold, Subs: subs}
}

// NewBadgeCondition returns a condition that delegates to the condition
// held by the referenced badge.
func NewBadgeCondition(ref BadgeRef) Condition {
	return Condition{Kind: CondBadge, Badge: ref}
}

// Encode serializes the condition tree to w.
func (c *Condition) Encode(w io.Writer) error {
	return c.encodeDepth(w, 0)
}

func (c *Condition) encodeDepth(w io.Writer, depth int) error {
	const op = "Condition.Encode"
	if depth >= MaxConditionDepth {
		msg := fmt.Sprintf("condition tree deeper than %d levels",
			MaxConditionDepth)
		return makeError(ErrTreeTooDeep, msg)
	}

	switch c.Kind {
	case CondVerifier:
		if _, err := w.Write([]byte{byte(CondVerifier)}); err != nil {
			return err
		}
		_, err := w.Write(c.KeyID[:])
		return err

	case CondThreshold:
		if len(c.Subs) > MaxConditionSubs {
			msg := fmt.Sprintf("too many sub conditions [count %d, max %d]",
				len(c.Subs), MaxConditionSubs)
			return makeError(ErrTooManyConds, msg)
		}
		var buf [5]byte
		buf[0] = byte(CondThreshold)
		binary.LittleEndian.PutUint32(buf[1:], c.Threshold)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		if err := wire.WriteVarInt(w, 0, uint64(len(c.Subs))); err != nil {
			return err
		}
		for i := range c.Subs {
			if err := c.Subs[i].encodeDepth(w, depth+1); err != nil {
				return err
			}
		}
		return nil

	case CondBadge:
		if c.Badge.Mode > VersionMaximal {
			msg := fmt.Sprintf("unknown version mode %d", c.Badge.Mode)
			return makeError(ErrUnknownVersionMode, msg)
		}
		if _, err := w.Write([]byte{byte(CondBadge), byte(c.Badge.Mode)}); err != nil {
			return err
		}
		if _, err := w.Write(c.Badge.ID[:]); err != nil {
			return err
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], c.Badge.Version)
		_, err := w.Write(buf[:])
		return err
	}

	msg := fmt.Sprintf("%s: unknown condition kind %d", op, c.Kind)
	return makeError(ErrUnknownCondition, msg)
}

// Decode deserializes a condition tree from r.
func (c *Condition) Decode(r io.Reader) error {
	return c.decodeDepth(r, 0)
}

func (c *Condition) decodeDepth(r io.Reader, depth int) error {
	if depth >= MaxConditionDepth {
		msg := fmt.Sprintf("condition tree deeper than %d levels",
			MaxConditionDepth)
		return makeError(ErrTreeTooDeep, msg)
	}

	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return err
	}
	switch ConditionKind(kind[0]) {
	case CondVerifier:
		c.Kind = CondVerifier
		_, err := io.ReadFull(r, c.KeyID[:])
		return err

	case CondThreshold:
		c.Kind = CondThreshold
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		c.Threshold = binary.LittleEndian.Uint32(buf[:])
		count, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return err
		}
		if count > MaxConditionSubs {
			msg := fmt.Sprintf("too many sub conditions [count %d, max %d]",
				count, MaxConditionSubs)
			return makeError(ErrTooManyConds, msg)
		}
		c.Subs = make([]Condition, count)
		for i := uint64(0); i < count; i++ {
			if err := c.Subs[i].decodeDepth(r, depth+1); err != nil {
				return err
			}
		}
		return nil

	case CondBadge:
		c.Kind = CondBadge
		var mode [1]byte
		if _, err := io.ReadFull(r, mode[:]); err != nil {
			return err
		}
		if VersionMode(mode[0]) > VersionMaximal {
			msg := fmt.Sprintf("unknown version mode %d", mode[0])
			return makeError(ErrUnknownVersionMode, msg)
		}
		c.Badge.Mode = VersionMode(mode[0])
		if _, err := io.ReadFull(r, c.Badge.ID[:]); err != nil {
			return err
		}
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		c.Badge.Version = binary.LittleEndian.Uint32(buf[:])
		return nil
	}

	msg := fmt.Sprintf("unknown condition kind %d", kind[0])
	return makeError(ErrUnknownCondition, msg)
}

// Serialize returns the serialized condition tree.
func (c *Condition) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseCondition deserializes a condition tree from its serialization.  The
// whole input must be consumed.
func ParseCondition(b []byte) (*Condition, error) {
	r := bytes.NewReader(b)
	var c Condition
	if err := c.Decode(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		msg := fmt.Sprintf("%d trailing bytes after condition", r.Len())
		return nil, makeError(ErrMalformedCondition, msg)
	}
	return &c, nil
}

// Hash returns a digest committing to the condition tree.  Each node kind
// hashes under its own domain tag so structurally different trees can never
// collide.
func (c *Condition) Hash() flid.ID {
	h := blake256.New()
	switch c.Kind {
	case CondVerifier:
		h.Write([]byte(condVerifierTag))
		h.Write(sep)
		h.Write(c.KeyID[:])

	case CondThreshold:
		h.Write([]byte(condThresholdTag))
		h.Write(sep)
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], c.Threshold)
		h.Write(buf[:])
		for i := range c.Subs {
			subHash := c.Subs[i].Hash()
			h.Write(subHash[:])
		}

	case CondBadge:
		h.Write([]byte(condBadgeTag))
		h.Write(sep)
		h.Write([]byte{byte(c.Badge.Mode)})
		h.Write(c.Badge.ID[:])
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], c.Badge.Version)
		h.Write(buf[:])

	default:
		h.Write([]byte(condInvalidTag))
	}

	var id flid.ID
	copy(id[:], h.Sum(nil))
	return id
}

// SignedDigest returns the digest a proof signature must cover for this
// condition and message digest.  Binding the condition into the digest
// keeps a signature gathered for one rule set from satisfying another.
func (c *Condition) SignedDigest(msgDigest []byte) flid.ID {
	condHash := c.Hash()
	h := blake256.New()
	h.Write([]byte(signTag))
	h.Write(sep)
	h.Write(condHash[:])
	h.Write(msgDigest)

	var id flid.ID
	copy(id[:], h.Sum(nil))
	return id
}
