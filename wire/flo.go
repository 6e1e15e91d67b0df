// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"hash"
	"io"
	"time"

	"lukechampine.com/blake3"

	"github.com/ineiti/fledger/flid"
)

const (
	// MaxFloSize is the absolute maximum serialized size of a stored
	// object regardless of the lower limits realms are free to configure.
	MaxFloSize = 1024 * 1024 // 1MB

	// MaxFloWireLength is the maximum number of bytes a serialized object
	// may occupy in a message once the envelope overhead next to the
	// payload itself is accounted for.
	MaxFloWireLength = MaxFloSize + 1024

	// MaxHistoryEntries is the maximum number of update entries an object
	// history may carry.
	MaxHistoryEntries = 4096

	// MaxSigsPerUpdate is the maximum number of signatures an update proof
	// may carry.
	MaxSigsPerUpdate = 32

	// MaxFloTypeLen is the maximum length of an object type string.
	MaxFloTypeLen = 64
)

// UpdateKind describes which half of an object an update entry replaces.
type UpdateKind uint8

const (
	// UpdateData entries replace the object's data payload.
	UpdateData UpdateKind = 0

	// UpdateRules entries replace the object's access rule set.
	UpdateRules UpdateKind = 1
)

// String returns the UpdateKind in human-readable form.
func (k UpdateKind) String() string {
	switch k {
	case UpdateData:
		return "data"
	case UpdateRules:
		return "rules"
	}
	return fmt.Sprintf("unknown UpdateKind (%d)", uint8(k))
}

// UpdateSig is a single signature of an update proof.  The signing key is
// carried in compressed form so holders can verify the proof without any
// side channel, and key identifiers are derived by hashing it.
type UpdateSig struct {
	PubKey [33]byte
	Sig    [64]byte
}

// KeyID returns the identifier of the signing key.
func (s *UpdateSig) KeyID() flid.ID {
	return flid.HashH(s.PubKey[:])
}

// Update is a single entry of an object history.  The first two entries of
// every history define the object's initial data payload and access rule set
// and carry no signatures since the object identifier commits to them.
// Every later entry must carry a proof satisfying the rule set that was in
// force before the entry was appended.
type Update struct {
	Version   uint32
	Timestamp time.Time
	Kind      UpdateKind
	Payload   []byte
	Sigs      []UpdateSig
}

// readUpdate reads an encoded history entry from r.
func readUpdate(r io.Reader, pver uint32, u *Update) error {
	const op = "readUpdate"
	var kind uint8
	err := readElements(r, &u.Version, (*int64Time)(&u.Timestamp), &kind)
	if err != nil {
		return err
	}
	if kind > uint8(UpdateRules) {
		msg := fmt.Sprintf("unknown update kind %d", kind)
		return messageError(op, ErrUnknownUpdateKind, msg)
	}
	u.Kind = UpdateKind(kind)

	u.Payload, err = ReadVarBytes(r, pver, MaxFloSize, "update payload")
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > MaxSigsPerUpdate {
		msg := fmt.Sprintf("too many update signatures [count %d, max %d]",
			count, MaxSigsPerUpdate)
		return messageError(op, ErrTooManySigs, msg)
	}
	u.Sigs = make([]UpdateSig, count)
	for i := uint64(0); i < count; i++ {
		err := readElements(r, &u.Sigs[i].PubKey, &u.Sigs[i].Sig)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeUpdate writes an encoded history entry to w.
func writeUpdate(w io.Writer, pver uint32, u *Update) error {
	const op = "writeUpdate"
	if u.Kind > UpdateRules {
		msg := fmt.Sprintf("unknown update kind %d", u.Kind)
		return messageError(op, ErrUnknownUpdateKind, msg)
	}
	if len(u.Sigs) > MaxSigsPerUpdate {
		msg := fmt.Sprintf("too many update signatures [count %d, max %d]",
			len(u.Sigs), MaxSigsPerUpdate)
		return messageError(op, ErrTooManySigs, msg)
	}

	kind := uint8(u.Kind)
	err := writeElements(w, &u.Version, (*int64Time)(&u.Timestamp), &kind)
	if err != nil {
		return err
	}
	err = WriteVarBytes(w, pver, u.Payload)
	if err != nil {
		return err
	}
	err = WriteVarInt(w, pver, uint64(len(u.Sigs)))
	if err != nil {
		return err
	}
	for i := range u.Sigs {
		err := writeElements(w, &u.Sigs[i].PubKey, &u.Sigs[i].Sig)
		if err != nil {
			return err
		}
	}
	return nil
}

// Decode decodes r using the fledger protocol encoding into the receiver.
func (u *Update) Decode(r io.Reader, pver uint32) error {
	return readUpdate(r, pver, u)
}

// Encode encodes the receiver to w using the fledger protocol encoding.
func (u *Update) Encode(w io.Writer, pver uint32) error {
	return writeUpdate(w, pver, u)
}

// updateMaxLength returns the maximum number of bytes a single encoded
// history entry can occupy.
func updateMaxLength() uint32 {
	// Version 4 bytes + timestamp 8 bytes + kind 1 byte + varint payload
	// length + max payload + varint signature count + max signatures.
	return 4 + 8 + 1 + uint32(VarIntSerializeSize(MaxFloSize)) + MaxFloSize +
		uint32(VarIntSerializeSize(MaxSigsPerUpdate)) +
		MaxSigsPerUpdate*(33+64)
}

// WriteSignedData writes the data of the update that is covered by its proof
// signatures to the provided writer, bound to the identifier of the object it
// extends.  The signatures themselves are not part of the signed data.
//
// Writes to hashers never error, so the errors are intentionally ignored.
func (u *Update) WriteSignedData(h hash.Hash, id flid.ID) {
	kind := uint8(u.Kind)
	writeElements(h, &id, &u.Version, (*int64Time)(&u.Timestamp), &kind)
	WriteVarBytes(h, ProtocolVersion, u.Payload)
}

// CuckooKind describes the weak attachment policy of an object.
type CuckooKind uint8

const (
	// CuckooNone objects neither attach to a parent nor expire on their
	// own.
	CuckooNone CuckooKind = 0

	// CuckooDuration objects expire after a holder-local duration.
	CuckooDuration CuckooKind = 1

	// CuckooParent objects attach themselves to a parent object for
	// discoverability.  The attachment does not affect the parent.
	CuckooParent CuckooKind = 2
)

// String returns the CuckooKind in human-readable form.
func (k CuckooKind) String() string {
	switch k {
	case CuckooNone:
		return "none"
	case CuckooDuration:
		return "duration"
	case CuckooParent:
		return "parent"
	}
	return fmt.Sprintf("unknown CuckooKind (%d)", uint8(k))
}

// Cuckoo is the weak attachment policy of an object.  Depending on the kind,
// either the duration or the parent field is meaningful.  The policy is not
// part of the object identifier, so it travels with the object on a
// best-effort basis only.
type Cuckoo struct {
	Kind     CuckooKind
	Duration uint64 // milliseconds
	Parent   flid.ID
}

// readCuckoo reads an encoded attachment policy from r.
func readCuckoo(r io.Reader, pver uint32, c *Cuckoo) error {
	const op = "readCuckoo"
	var kind uint8
	err := readElement(r, &kind)
	if err != nil {
		return err
	}
	switch CuckooKind(kind) {
	case CuckooNone:
		c.Kind = CuckooNone
		return nil
	case CuckooDuration:
		c.Kind = CuckooDuration
		return readElement(r, &c.Duration)
	case CuckooParent:
		c.Kind = CuckooParent
		return readElement(r, &c.Parent)
	}
	msg := fmt.Sprintf("unknown cuckoo kind %d", kind)
	return messageError(op, ErrUnknownCuckooKind, msg)
}

// writeCuckoo writes an encoded attachment policy to w.
func writeCuckoo(w io.Writer, pver uint32, c *Cuckoo) error {
	const op = "writeCuckoo"
	kind := uint8(c.Kind)
	switch c.Kind {
	case CuckooNone:
		return writeElement(w, &kind)
	case CuckooDuration:
		err := writeElement(w, &kind)
		if err != nil {
			return err
		}
		return writeElement(w, &c.Duration)
	case CuckooParent:
		err := writeElement(w, &kind)
		if err != nil {
			return err
		}
		return writeElement(w, &c.Parent)
	}
	msg := fmt.Sprintf("unknown cuckoo kind %d", c.Kind)
	return messageError(op, ErrUnknownCuckooKind, msg)
}

// Flo is the atomic storage unit of the overlay.  The first two history
// entries define the initial data payload and access rule set and, together
// with the type, derive the object identifier.  All remaining state is the
// ordered list of updates that were accepted on top of them.
//
// A Flo is a value that is replicated across nodes rather than owned by any
// single one.  Copies are reconciled by comparing histories, so the type
// intentionally carries no holder-local state.
type Flo struct {
	Realm   flid.ID
	Type    string
	Cuckoo  Cuckoo
	History []Update
}

// Decode decodes r using the fledger protocol encoding into the receiver.
func (f *Flo) Decode(r io.Reader, pver uint32) error {
	const op = "Flo.Decode"
	err := readElement(r, &f.Realm)
	if err != nil {
		return err
	}
	f.Type, err = ReadAsciiVarString(r, pver, MaxFloTypeLen)
	if err != nil {
		return err
	}
	err = readCuckoo(r, pver, &f.Cuckoo)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count < 2 {
		msg := fmt.Sprintf("object history has %d entries, need at least 2",
			count)
		return messageError(op, ErrEmptyHistory, msg)
	}
	if count > MaxHistoryEntries {
		msg := fmt.Sprintf("too many history entries [count %d, max %d]",
			count, MaxHistoryEntries)
		return messageError(op, ErrTooManyUpdates, msg)
	}
	f.History = make([]Update, count)
	for i := uint64(0); i < count; i++ {
		err := readUpdate(r, pver, &f.History[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Encode encodes the receiver to w using the fledger protocol encoding.
func (f *Flo) Encode(w io.Writer, pver uint32) error {
	const op = "Flo.Encode"
	if len(f.History) < 2 {
		msg := fmt.Sprintf("object history has %d entries, need at least 2",
			len(f.History))
		return messageError(op, ErrEmptyHistory, msg)
	}
	if len(f.History) > MaxHistoryEntries {
		msg := fmt.Sprintf("too many history entries [count %d, max %d]",
			len(f.History), MaxHistoryEntries)
		return messageError(op, ErrTooManyUpdates, msg)
	}

	err := writeElement(w, &f.Realm)
	if err != nil {
		return err
	}
	err = WriteVarString(w, pver, f.Type)
	if err != nil {
		return err
	}
	err = writeCuckoo(w, pver, &f.Cuckoo)
	if err != nil {
		return err
	}
	err = WriteVarInt(w, pver, uint64(len(f.History)))
	if err != nil {
		return err
	}
	for i := range f.History {
		err := writeUpdate(w, pver, &f.History[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Serialize encodes the object to w using a format that is suitable for
// long-term storage such as a database.  It uses the latest protocol version
// since the encoding contains no protocol-dependent fields.
func (f *Flo) Serialize(w io.Writer) error {
	return f.Encode(w, ProtocolVersion)
}

// Deserialize decodes an object from r into the receiver using a format that
// is suitable for long-term storage such as a database.
func (f *Flo) Deserialize(r io.Reader) error {
	return f.Decode(r, ProtocolVersion)
}

// CalcID calculates the content-derived identifier of the object by hashing
// its type together with the two defining history entries.  Later updates do
// not change the identifier, which makes the first two entries structurally
// immutable.
func (f *Flo) CalcID() flid.ID {
	h := blake3.New(flid.IDSize, nil)
	WriteVarString(h, ProtocolVersion, f.Type)
	for i := 0; i < 2 && i < len(f.History); i++ {
		writeUpdate(h, ProtocolVersion, &f.History[i])
	}

	var id flid.ID
	copy(id[:], h.Sum(nil))
	return id
}

// Version returns the version of the newest history entry.  It is only valid
// to call on objects with a non-empty history.
func (f *Flo) Version() uint32 {
	return f.History[len(f.History)-1].Version
}

// FloMeta is a compact description of a held object used by the neighbor
// synchronization gossip: the identifier, the newest version, and the
// serialized size.
type FloMeta struct {
	ID      flid.ID
	Version uint32
	Size    uint32
}

// readFloMeta reads an encoded object meta from r.
func readFloMeta(r io.Reader, pver uint32, m *FloMeta) error {
	return readElements(r, &m.ID, &m.Version, &m.Size)
}

// writeFloMeta writes an encoded object meta to w.
func writeFloMeta(w io.Writer, pver uint32, m *FloMeta) error {
	return writeElements(w, &m.ID, &m.Version, &m.Size)
}

// floMetaSerializeSize is the fixed serialized size of an object meta.
const floMetaSerializeSize = flid.IDSize + 4 + 4
