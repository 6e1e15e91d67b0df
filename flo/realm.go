// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

const (
	// MaxRealmNameLen is the maximum length of a realm name in bytes.
	MaxRealmNameLen = 64

	// MaxRealmMembers is the maximum number of entries in a realm's member
	// list.
	MaxRealmMembers = 1024

	// MaxRealmServices is the maximum number of named service objects a
	// realm may advertise.
	MaxRealmServices = 64

	// MaxServiceNameLen is the maximum length of a service name in bytes.
	MaxServiceNameLen = 64
)

// RealmConfig holds the storage policy of a realm.
type RealmConfig struct {
	// Spread is the number of copies the realm targets per object.
	Spread uint32

	// MaxSpace is the total number of bytes a holder budgets for the
	// realm's objects.
	MaxSpace uint64

	// MaxFloSize caps the serialized size of a single object in the
	// realm.  Zero means only the global limit applies.
	MaxFloSize uint32

	// Members lists the identities allowed to store and update objects in
	// the realm.  An empty list leaves the realm open to anyone.
	Members []flid.ID
}

// Realm is the decoded data payload of a realm-defining object.
type Realm struct {
	// Name is the human-readable realm name.
	Name string

	// Config is the storage policy holders enforce for the realm.
	Config RealmConfig

	// Services maps well-known service names to the objects providing
	// them.
	Services map[string]flid.ID
}

// Encode writes the realm definition to w.  Service names are written in
// sorted order so encoding the same realm always yields the same bytes.
func (r *Realm) Encode(w io.Writer) error {
	if len(r.Name) > MaxRealmNameLen {
		msg := fmt.Sprintf("realm name is %d bytes, limit %d", len(r.Name),
			MaxRealmNameLen)
		return makeError(ErrMalformedRealm, msg)
	}
	if len(r.Config.Members) > MaxRealmMembers {
		msg := fmt.Sprintf("realm has %d members, limit %d",
			len(r.Config.Members), MaxRealmMembers)
		return makeError(ErrMalformedRealm, msg)
	}
	if len(r.Services) > MaxRealmServices {
		msg := fmt.Sprintf("realm has %d services, limit %d",
			len(r.Services), MaxRealmServices)
		return makeError(ErrMalformedRealm, msg)
	}

	err := wire.WriteVarString(w, wire.ProtocolVersion, r.Name)
	if err != nil {
		return err
	}
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.Config.Spread)
	binary.LittleEndian.PutUint64(buf[4:12], r.Config.MaxSpace)
	binary.LittleEndian.PutUint32(buf[12:16], r.Config.MaxFloSize)
	_, err = w.Write(buf[:])
	if err != nil {
		return err
	}

	err = wire.WriteVarInt(w, wire.ProtocolVersion,
		uint64(len(r.Config.Members)))
	if err != nil {
		return err
	}
	for i := range r.Config.Members {
		_, err = w.Write(r.Config.Members[i][:])
		if err != nil {
			return err
		}
	}

	names := make([]string, 0, len(r.Services))
	for name := range r.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	err = wire.WriteVarInt(w, wire.ProtocolVersion, uint64(len(names)))
	if err != nil {
		return err
	}
	for _, name := range names {
		if len(name) > MaxServiceNameLen {
			msg := fmt.Sprintf("service name is %d bytes, limit %d",
				len(name), MaxServiceNameLen)
			return makeError(ErrMalformedRealm, msg)
		}
		err = wire.WriteVarString(w, wire.ProtocolVersion, name)
		if err != nil {
			return err
		}
		id := r.Services[name]
		_, err = w.Write(id[:])
		if err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a realm definition from r into the receiver.
func (r *Realm) Decode(rd io.Reader) error {
	name, err := wire.ReadVarString(rd, wire.ProtocolVersion)
	if err != nil {
		return err
	}
	if len(name) > MaxRealmNameLen {
		msg := fmt.Sprintf("realm name is %d bytes, limit %d", len(name),
			MaxRealmNameLen)
		return makeError(ErrMalformedRealm, msg)
	}
	r.Name = name

	var buf [16]byte
	_, err = io.ReadFull(rd, buf[:])
	if err != nil {
		return err
	}
	r.Config.Spread = binary.LittleEndian.Uint32(buf[0:4])
	r.Config.MaxSpace = binary.LittleEndian.Uint64(buf[4:12])
	r.Config.MaxFloSize = binary.LittleEndian.Uint32(buf[12:16])

	count, err := wire.ReadVarInt(rd, wire.ProtocolVersion)
	if err != nil {
		return err
	}
	if count > MaxRealmMembers {
		msg := fmt.Sprintf("realm has %d members, limit %d", count,
			MaxRealmMembers)
		return makeError(ErrMalformedRealm, msg)
	}
	r.Config.Members = nil
	if count > 0 {
		r.Config.Members = make([]flid.ID, count)
		for i := range r.Config.Members {
			_, err = io.ReadFull(rd, r.Config.Members[i][:])
			if err != nil {
				return err
			}
		}
	}

	count, err = wire.ReadVarInt(rd, wire.ProtocolVersion)
	if err != nil {
		return err
	}
	if count > MaxRealmServices {
		msg := fmt.Sprintf("realm has %d services, limit %d", count,
			MaxRealmServices)
		return makeError(ErrMalformedRealm, msg)
	}
	r.Services = nil
	if count > 0 {
		r.Services = make(map[string]flid.ID, count)
		for i := uint64(0); i < count; i++ {
			name, err := wire.ReadVarString(rd, wire.ProtocolVersion)
			if err != nil {
				return err
			}
			if len(name) > MaxServiceNameLen {
				msg := fmt.Sprintf("service name is %d bytes, limit %d",
					len(name), MaxServiceNameLen)
				return makeError(ErrMalformedRealm, msg)
			}
			var id flid.ID
			_, err = io.ReadFull(rd, id[:])
			if err != nil {
				return err
			}
			r.Services[name] = id
		}
	}
	return nil
}

// Serialize returns the realm definition serialized for use as an object
// data payload.
func (r *Realm) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	err := r.Encode(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseRealm decodes a realm definition from an object data payload.
// Trailing bytes past the definition are rejected.
func ParseRealm(payload []byte) (*Realm, error) {
	rd := bytes.NewReader(payload)
	var r Realm
	err := r.Decode(rd)
	if err != nil {
		return nil, err
	}
	if rd.Len() != 0 {
		msg := fmt.Sprintf("%d trailing bytes after realm definition",
			rd.Len())
		return nil, makeError(ErrMalformedRealm, msg)
	}
	return &r, nil
}

// AcceptsMember reports whether the given identity may store and update
// objects in the realm.  Realms without a member list accept anyone.
func (r *Realm) AcceptsMember(id flid.ID) bool {
	if len(r.Config.Members) == 0 {
		return true
	}
	for i := range r.Config.Members {
		if r.Config.Members[i] == id {
			return true
		}
	}
	return false
}

// CheckFloSize reports whether an object of the given serialized size fits
// the realm's per-object limit.
func (r *Realm) CheckFloSize(size int) error {
	limit := uint32(wire.MaxFloSize)
	if r.Config.MaxFloSize > 0 && r.Config.MaxFloSize < limit {
		limit = r.Config.MaxFloSize
	}
	if uint64(size) > uint64(limit) {
		msg := fmt.Sprintf("object is %d bytes, realm limit %d", size, limit)
		return makeError(ErrTooLarge, msg)
	}
	return nil
}

// CreateRealm returns a new realm-defining object.  The object declares
// itself as its own realm, which works because the identifier calculation
// does not cover the realm field.
func CreateRealm(realm *Realm, rules *ace.Condition, now time.Time) (*Flo, error) {
	payload, err := realm.Serialize()
	if err != nil {
		return nil, err
	}
	f, err := Create(flid.ID{}, TypeRealm, payload, rules, wire.Cuckoo{}, now)
	if err != nil {
		return nil, err
	}
	f.wireFlo.Realm = f.ID()
	return f, nil
}

// IsRealm reports whether the object defines a realm, which requires the
// realm type string and the object declaring itself as its own realm.
func (f *Flo) IsRealm() bool {
	return f.wireFlo.Type == TypeRealm && f.wireFlo.Realm == f.ID()
}

// ParseRealmFlo extracts the realm definition held by a realm-defining
// object.
func ParseRealmFlo(f *Flo) (*Realm, error) {
	if !f.IsRealm() {
		msg := fmt.Sprintf("object %s of type %q does not define a realm",
			f.ID(), f.wireFlo.Type)
		return nil, makeError(ErrNotRealm, msg)
	}
	return ParseRealm(f.Data())
}
