// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ace

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

const (
	// PubKeyLen is the length of a serialized compressed public key.
	PubKeyLen = 33

	// SignatureLen is the length of a serialized schnorr signature.
	SignatureLen = 64
)

// KeyID returns the identifier of a serialized compressed public key.
func KeyID(pubKey []byte) flid.ID {
	return flid.HashH(pubKey)
}

// KeySigner holds a private key together with the derived public key
// material needed to produce proof signatures.
type KeySigner struct {
	priv *secp256k1.PrivateKey
	pub  []byte
	id   flid.ID
}

// GenerateKeySigner returns a signer backed by a freshly generated key.
func GenerateKeySigner() (*KeySigner, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return NewKeySigner(priv), nil
}

// NewKeySigner returns a signer backed by the given private key.
func NewKeySigner(priv *secp256k1.PrivateKey) *KeySigner {
	pub := priv.PubKey().SerializeCompressed()
	return &KeySigner{priv: priv, pub: pub, id: KeyID(pub)}
}

// KeyID returns the identifier of the signer's public key.
func (s *KeySigner) KeyID() flid.ID {
	return s.id
}

// PubKey returns the serialized compressed public key.
func (s *KeySigner) PubKey() []byte {
	pub := make([]byte, len(s.pub))
	copy(pub, s.pub)
	return pub
}

// Verifier returns the verification half of the signer.
func (s *KeySigner) Verifier() *KeyVerifier {
	return &KeyVerifier{pub: s.PubKey(), id: s.id}
}

// Sign signs the 256-bit digest and returns the serialized signature.
func (s *KeySigner) Sign(digest flid.ID) ([]byte, error) {
	sig, err := schnorr.Sign(s.priv, digest[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Condition returns a verifier condition satisfied by this key.
func (s *KeySigner) Condition() Condition {
	return NewVerifierCondition(s.id)
}

// KeyVerifier holds a serialized public key and its identifier.
type KeyVerifier struct {
	pub []byte
	id  flid.ID
}

// ParseKeyVerifier returns a verifier for a serialized compressed public
// key after checking it describes a valid curve point.
func ParseKeyVerifier(pubKey []byte) (*KeyVerifier, error) {
	parsed, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		msg := fmt.Sprintf("invalid public key: %v", err)
		return nil, makeError(ErrBadSignature, msg)
	}
	pub := parsed.SerializeCompressed()
	return &KeyVerifier{pub: pub, id: KeyID(pub)}, nil
}

// KeyID returns the identifier of the public key.
func (v *KeyVerifier) KeyID() flid.ID {
	return v.id
}

// PubKey returns the serialized compressed public key.
func (v *KeyVerifier) PubKey() []byte {
	pub := make([]byte, len(v.pub))
	copy(pub, v.pub)
	return pub
}

// Verify reports whether sig is a valid signature over the digest by this
// key.
func (v *KeyVerifier) Verify(digest flid.ID, sig []byte) bool {
	parsedSig, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(v.pub)
	if err != nil {
		return false
	}
	return parsedSig.Verify(digest[:], pubKey)
}

// Signature is one collected proof signature together with the serialized
// public key that produced it.
type Signature struct {
	PubKey []byte
	Sig    []byte
}

// SignatureSet collects proof signatures keyed by signing key identifier.
type SignatureSet map[flid.ID]Signature

// Sign adds a signature by the given signer over the digest a condition
// requires for the message digest.  The signer's key must appear in the
// condition tree.  Keys reached through a delegated badge do not appear in
// the tree, so such signers sign the digest from SignedDigest directly.
func (set SignatureSet) Sign(signer *KeySigner, cond *Condition, msgDigest []byte) error {
	if !cond.ContainsKey(signer.KeyID()) {
		msg := fmt.Sprintf("key %s does not appear in the condition",
			signer.KeyID())
		return makeError(ErrNoSuchKey, msg)
	}
	digest := cond.SignedDigest(msgDigest)
	sig, err := signer.Sign(digest)
	if err != nil {
		return err
	}
	set[signer.KeyID()] = Signature{PubKey: signer.PubKey(), Sig: sig}
	return nil
}

// FromUpdateSigs converts the signatures of a history entry proof into a
// signature set.
func FromUpdateSigs(sigs []wire.UpdateSig) SignatureSet {
	set := make(SignatureSet, len(sigs))
	for i := range sigs {
		sig := &sigs[i]
		pub := make([]byte, PubKeyLen)
		copy(pub, sig.PubKey[:])
		raw := make([]byte, SignatureLen)
		copy(raw, sig.Sig[:])
		set[sig.KeyID()] = Signature{PubKey: pub, Sig: raw}
	}
	return set
}

// ToUpdateSigs converts the set into history entry proof signatures,
// ordered by key identifier so the serialization is stable.
func (set SignatureSet) ToUpdateSigs() ([]wire.UpdateSig, error) {
	ids := make([]flid.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	sigs := make([]wire.UpdateSig, 0, len(set))
	for _, id := range ids {
		sig := set[id]
		if len(sig.PubKey) != PubKeyLen {
			msg := fmt.Sprintf("public key for %s is %d bytes, not %d", id,
				len(sig.PubKey), PubKeyLen)
			return nil, makeError(ErrBadSignature, msg)
		}
		if len(sig.Sig) != SignatureLen {
			msg := fmt.Sprintf("signature for %s is %d bytes, not %d", id,
				len(sig.Sig), SignatureLen)
			return nil, makeError(ErrBadSignature, msg)
		}
		var us wire.UpdateSig
		copy(us.PubKey[:], sig.PubKey)
		copy(us.Sig[:], sig.Sig)
		sigs = append(sigs, us)
	}
	return sigs, nil
}
