// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flo

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

// Well-known object type strings.  Other types are free-form and opaque to
// the store.
const (
	// TypeRealm marks an object whose data payload defines a realm.
	TypeRealm = "realm"

	// TypeBadge marks an object whose data payload holds a delegated
	// access condition.
	TypeBadge = "badge"
)

// GlobalID addresses an object within a realm.
type GlobalID struct {
	Realm  flid.ID
	Object flid.ID
}

// String returns the global identifier in realm/object form.
func (g GlobalID) String() string {
	return fmt.Sprintf("%s/%s", g.Realm, g.Object)
}

// RealmGlobalID returns the global identifier of a realm's own defining
// object, which lives at the realm identifier within its own realm.
func RealmGlobalID(realm flid.ID) GlobalID {
	return GlobalID{Realm: realm, Object: realm}
}

// Flo wraps a wire object to provide caching of its content-derived
// identifier and its serialization.  It is not safe for concurrent access.
type Flo struct {
	wireFlo    *wire.Flo
	serialized []byte
	id         *flid.ID
}

// NewFlo returns an object wrapping the passed wire object.  The wire
// object is retained, not copied.
func NewFlo(wireFlo *wire.Flo) *Flo {
	return &Flo{wireFlo: wireFlo}
}

// NewFloFromBytes returns an object by deserializing the passed bytes.  The
// serialization is retained for later calls to Bytes.
func NewFloFromBytes(serialized []byte) (*Flo, error) {
	var wireFlo wire.Flo
	err := wireFlo.Deserialize(bytes.NewReader(serialized))
	if err != nil {
		return nil, err
	}
	return &Flo{wireFlo: &wireFlo, serialized: serialized}, nil
}

// NewFloFromReader returns an object by deserializing from r.
func NewFloFromReader(r io.Reader) (*Flo, error) {
	var wireFlo wire.Flo
	err := wireFlo.Deserialize(r)
	if err != nil {
		return nil, err
	}
	return &Flo{wireFlo: &wireFlo}, nil
}

// WireFlo returns the underlying wire object.
func (f *Flo) WireFlo() *wire.Flo {
	return f.wireFlo
}

// ID returns the content-derived object identifier, computing it on the
// first call and caching it thereafter.
func (f *Flo) ID() flid.ID {
	if f.id != nil {
		return *f.id
	}
	id := f.wireFlo.CalcID()
	f.id = &id
	return id
}

// GlobalID returns the realm-qualified identifier of the object.
func (f *Flo) GlobalID() GlobalID {
	return GlobalID{Realm: f.wireFlo.Realm, Object: f.ID()}
}

// Bytes returns the serialized object, generating it on the first call and
// caching it thereafter.
func (f *Flo) Bytes() ([]byte, error) {
	if f.serialized != nil {
		return f.serialized, nil
	}
	var buf bytes.Buffer
	err := f.wireFlo.Serialize(&buf)
	if err != nil {
		return nil, err
	}
	f.serialized = buf.Bytes()
	return f.serialized, nil
}

// Size returns the serialized size of the object in bytes.
func (f *Flo) Size() (int, error) {
	serialized, err := f.Bytes()
	if err != nil {
		return 0, err
	}
	return len(serialized), nil
}

// Meta returns the compact description of the object used by the neighbor
// synchronization gossip.
func (f *Flo) Meta() (wire.FloMeta, error) {
	size, err := f.Size()
	if err != nil {
		return wire.FloMeta{}, err
	}
	return wire.FloMeta{
		ID:      f.ID(),
		Version: f.wireFlo.Version(),
		Size:    uint32(size),
	}, nil
}

// Data returns the payload of the newest data entry, or nil when the
// history holds no data entry.
func (f *Flo) Data() []byte {
	for i := len(f.wireFlo.History) - 1; i >= 0; i-- {
		if f.wireFlo.History[i].Kind == wire.UpdateData {
			return f.wireFlo.History[i].Payload
		}
	}
	return nil
}

// Rules returns the rule set currently in force, parsed from the newest
// rules entry.
func (f *Flo) Rules() (*ace.Condition, error) {
	for i := len(f.wireFlo.History) - 1; i >= 0; i-- {
		if f.wireFlo.History[i].Kind != wire.UpdateRules {
			continue
		}
		cond, err := ace.ParseCondition(f.wireFlo.History[i].Payload)
		if err != nil {
			msg := fmt.Sprintf("rule set of %s does not parse: %v", f.ID(),
				err)
			return nil, makeError(ErrBadRules, msg)
		}
		return cond, nil
	}
	msg := fmt.Sprintf("object %s has no rule set", f.ID())
	return nil, makeError(ErrBadRules, msg)
}

// AppendUpdate verifies the entry against the current history and rule set
// and appends it.  The serialized form is regenerated on the next call to
// Bytes.
func (f *Flo) AppendUpdate(u *wire.Update, resolve ace.BadgeResolver) error {
	err := VerifyAppend(f.wireFlo, f.ID(), u, resolve)
	if err != nil {
		return err
	}
	f.wireFlo.History = append(f.wireFlo.History, *u)
	f.serialized = nil
	return nil
}

// TTL returns the holder-local expiry duration of the object and whether
// the object carries one.
func (f *Flo) TTL() (time.Duration, bool) {
	if f.wireFlo.Cuckoo.Kind != wire.CuckooDuration {
		return 0, false
	}
	return time.Duration(f.wireFlo.Cuckoo.Duration) * time.Millisecond, true
}

// CuckooParent returns the identifier of the object this one weakly
// attaches to and whether such an attachment exists.
func (f *Flo) CuckooParent() (flid.ID, bool) {
	if f.wireFlo.Cuckoo.Kind != wire.CuckooParent {
		return flid.ID{}, false
	}
	return f.wireFlo.Cuckoo.Parent, true
}

// Create returns a new object with the given initial data payload and rule
// set.  The two defining entries carry the same timestamp and no proof
// since the object identifier commits to them.
func Create(realm flid.ID, typ string, data []byte, rules *ace.Condition,
	cuckoo wire.Cuckoo, now time.Time) (*Flo, error) {

	rulesPayload, err := rules.Serialize()
	if err != nil {
		return nil, err
	}
	wireFlo := &wire.Flo{
		Realm:  realm,
		Type:   typ,
		Cuckoo: cuckoo,
		History: []wire.Update{{
			Version:   0,
			Timestamp: now,
			Kind:      wire.UpdateData,
			Payload:   data,
		}, {
			Version:   1,
			Timestamp: now,
			Kind:      wire.UpdateRules,
			Payload:   rulesPayload,
		}},
	}
	return NewFlo(wireFlo), nil
}

// CreateBadge returns a new badge object holding the delegated condition as
// its data payload.  The rule set controls who may rotate the badge.
func CreateBadge(realm flid.ID, delegated, rules *ace.Condition,
	now time.Time) (*Flo, error) {

	payload, err := delegated.Serialize()
	if err != nil {
		return nil, err
	}
	return Create(realm, TypeBadge, payload, rules, wire.Cuckoo{}, now)
}

// ParseBadgeFlo extracts the delegated badge held by a badge object.  The
// badge version is the object's newest history version, so rotating the
// badge advances the versions referenced by delegating conditions.
func ParseBadgeFlo(f *Flo) (*ace.Badge, error) {
	if f.wireFlo.Type != TypeBadge {
		msg := fmt.Sprintf("object %s has type %q, not %q", f.ID(),
			f.wireFlo.Type, TypeBadge)
		return nil, makeError(ErrNotBadge, msg)
	}
	cond, err := ace.ParseCondition(f.Data())
	if err != nil {
		msg := fmt.Sprintf("badge condition of %s does not parse: %v",
			f.ID(), err)
		return nil, makeError(ErrNotBadge, msg)
	}
	return &ace.Badge{
		ID:        f.ID(),
		Version:   f.wireFlo.Version(),
		Condition: *cond,
	}, nil
}
