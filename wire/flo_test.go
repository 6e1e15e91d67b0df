// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ineiti/fledger/flid"
)

// makeTestFlo returns an object with the two defining history entries every
// object must carry: the initial data payload and the initial rule set.
func makeTestFlo() *Flo {
	return &Flo{
		Realm: testID(0x01),
		Type:  "kv",
		History: []Update{{
			Version:   0,
			Timestamp: time.Unix(1755856800, 0),
			Kind:      UpdateData,
			Payload:   []byte("genesis data"),
		}, {
			Version:   1,
			Timestamp: time.Unix(1755856800, 0),
			Kind:      UpdateRules,
			Payload:   []byte("genesis rules"),
		}},
	}
}

// TestFloSerialize tests that objects survive a trip through their storage
// serialization.
func TestFloSerialize(t *testing.T) {
	in := makeTestFlo()
	in.Cuckoo = Cuckoo{Kind: CuckooDuration, Duration: 60000}
	in.History = append(in.History, Update{
		Version:   2,
		Timestamp: time.Unix(1755856860, 0),
		Kind:      UpdateData,
		Payload:   []byte("second data"),
		Sigs: []UpdateSig{{
			PubKey: [33]byte{0x02, 0x8a},
			Sig:    [64]byte{0x01},
		}},
	})

	var buf bytes.Buffer
	err := in.Serialize(&buf)
	if err != nil {
		t.Fatalf("Serialize: unexpected error %v", err)
	}

	var out Flo
	err = out.Deserialize(bytes.NewBuffer(buf.Bytes()))
	if err != nil {
		t.Fatalf("Deserialize: unexpected error %v", err)
	}

	if out.Realm != in.Realm {
		t.Errorf("realm mismatch - got %v, want %v", out.Realm, in.Realm)
	}
	if out.Type != in.Type {
		t.Errorf("type mismatch - got %s, want %s", out.Type, in.Type)
	}
	if out.Cuckoo.Kind != CuckooDuration || out.Cuckoo.Duration != 60000 {
		t.Errorf("cuckoo mismatch - got %v/%d", out.Cuckoo.Kind,
			out.Cuckoo.Duration)
	}
	if len(out.History) != len(in.History) {
		t.Fatalf("history length mismatch - got %d, want %d",
			len(out.History), len(in.History))
	}
	for i := range in.History {
		want := &in.History[i]
		got := &out.History[i]
		if got.Version != want.Version {
			t.Errorf("entry #%d version mismatch - got %d, want %d", i,
				got.Version, want.Version)
		}
		if got.Timestamp.Unix() != want.Timestamp.Unix() {
			t.Errorf("entry #%d timestamp mismatch - got %d, want %d", i,
				got.Timestamp.Unix(), want.Timestamp.Unix())
		}
		if got.Kind != want.Kind {
			t.Errorf("entry #%d kind mismatch - got %v, want %v", i,
				got.Kind, want.Kind)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("entry #%d payload mismatch", i)
		}
		if len(got.Sigs) != len(want.Sigs) {
			t.Fatalf("entry #%d signature count mismatch - got %d, want %d",
				i, len(got.Sigs), len(want.Sigs))
		}
		for j := range want.Sigs {
			if got.Sigs[j] != want.Sigs[j] {
				t.Errorf("entry #%d signature #%d mismatch", i, j)
			}
		}
	}

	// The newest entry determines the object version.
	if out.Version() != 2 {
		t.Errorf("version mismatch - got %d, want 2", out.Version())
	}
}

// TestFloCalcID tests that the object identifier commits to the type and the
// two defining history entries and to nothing else.
func TestFloCalcID(t *testing.T) {
	flo := makeTestFlo()
	id := flo.CalcID()
	if id.IsZero() {
		t.Fatal("identifier is zero")
	}

	// Appending updates must not change the identifier since it only
	// commits to the first two entries.
	flo.History = append(flo.History, Update{
		Version:   2,
		Timestamp: time.Unix(1755856860, 0),
		Kind:      UpdateData,
		Payload:   []byte("second data"),
	})
	if got := flo.CalcID(); got != id {
		t.Errorf("identifier changed after append - got %v, want %v", got, id)
	}

	// The attachment policy travels outside of the identity.
	flo.Cuckoo = Cuckoo{Kind: CuckooParent, Parent: testID(0x77)}
	if got := flo.CalcID(); got != id {
		t.Errorf("identifier changed with cuckoo - got %v, want %v", got, id)
	}

	// Changing a defining entry changes the identifier.
	defer func(p []byte) { flo.History[0].Payload = p }(flo.History[0].Payload)
	flo.History[0].Payload = []byte("tampered")
	if got := flo.CalcID(); got == id {
		t.Error("identifier unchanged after tampering with first entry")
	}
	flo.History[0].Payload = []byte("genesis data")

	// Changing the type changes the identifier.
	flo.Type = "blob"
	if got := flo.CalcID(); got == id {
		t.Error("identifier unchanged after changing type")
	}
}

// TestFloWireErrors performs negative tests against encode and decode of
// objects to confirm the protocol limits are enforced.
func TestFloWireErrors(t *testing.T) {
	pver := ProtocolVersion

	// An object without its two defining entries cannot be encoded.
	short := makeTestFlo()
	short.History = short.History[:1]
	var buf bytes.Buffer
	err := short.Encode(&buf, pver)
	if !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("short history wrong error got: %v, want: %v", err,
			ErrEmptyHistory)
	}

	// Nor decoded.
	buf.Reset()
	realm := testID(0x01)
	err = writeElement(&buf, &realm)
	if err != nil {
		t.Fatalf("writeElement: unexpected error %v", err)
	}
	err = WriteVarString(&buf, pver, "kv")
	if err != nil {
		t.Fatalf("WriteVarString: unexpected error %v", err)
	}
	none := Cuckoo{Kind: CuckooNone}
	err = writeCuckoo(&buf, pver, &none)
	if err != nil {
		t.Fatalf("writeCuckoo: unexpected error %v", err)
	}
	err = WriteVarInt(&buf, pver, 1)
	if err != nil {
		t.Fatalf("WriteVarInt: unexpected error %v", err)
	}
	var out Flo
	err = out.Decode(bytes.NewBuffer(buf.Bytes()), pver)
	if !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("decode short history wrong error got: %v, want: %v", err,
			ErrEmptyHistory)
	}

	// A type string beyond the allowed length is rejected.
	long := makeTestFlo()
	long.Type = strings.Repeat("x", MaxFloTypeLen+1)
	buf.Reset()
	err = long.Encode(&buf, pver)
	if err != nil {
		t.Fatalf("Encode: unexpected error %v", err)
	}
	err = out.Decode(bytes.NewBuffer(buf.Bytes()), pver)
	if !errors.Is(err, ErrVarStringTooLong) {
		t.Errorf("long type wrong error got: %v, want: %v", err,
			ErrVarStringTooLong)
	}

	// A type string with non-ascii characters is rejected.
	long.Type = "kv\xff"
	buf.Reset()
	err = long.Encode(&buf, pver)
	if err != nil {
		t.Fatalf("Encode: unexpected error %v", err)
	}
	err = out.Decode(bytes.NewBuffer(buf.Bytes()), pver)
	if !errors.Is(err, ErrMalformedStrictString) {
		t.Errorf("non-ascii type wrong error got: %v, want: %v", err,
			ErrMalformedStrictString)
	}

	// An unknown update kind is rejected on both encode and decode.
	bad := makeTestFlo()
	bad.History[1].Kind = UpdateKind(5)
	buf.Reset()
	err = bad.Encode(&buf, pver)
	if !errors.Is(err, ErrUnknownUpdateKind) {
		t.Errorf("bad kind encode wrong error got: %v, want: %v", err,
			ErrUnknownUpdateKind)
	}

	// An unknown attachment policy is rejected on encode.
	badCuckoo := makeTestFlo()
	badCuckoo.Cuckoo.Kind = CuckooKind(9)
	buf.Reset()
	err = badCuckoo.Encode(&buf, pver)
	if !errors.Is(err, ErrUnknownCuckooKind) {
		t.Errorf("bad cuckoo encode wrong error got: %v, want: %v", err,
			ErrUnknownCuckooKind)
	}

	// An update with too many proof signatures is rejected.
	manySigs := makeTestFlo()
	manySigs.History[1].Sigs = make([]UpdateSig, MaxSigsPerUpdate+1)
	buf.Reset()
	err = manySigs.Encode(&buf, pver)
	if !errors.Is(err, ErrTooManySigs) {
		t.Errorf("many sigs encode wrong error got: %v, want: %v", err,
			ErrTooManySigs)
	}
}

// TestCuckooWire tests encode and decode of the three attachment policies.
func TestCuckooWire(t *testing.T) {
	pver := ProtocolVersion

	tests := []Cuckoo{
		{Kind: CuckooNone},
		{Kind: CuckooDuration, Duration: 3600000},
		{Kind: CuckooParent, Parent: testID(0x42)},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		var buf bytes.Buffer
		err := writeCuckoo(&buf, pver, &test)
		if err != nil {
			t.Errorf("writeCuckoo #%d error %v", i, err)
			continue
		}

		var out Cuckoo
		err = readCuckoo(bytes.NewBuffer(buf.Bytes()), pver, &out)
		if err != nil {
			t.Errorf("readCuckoo #%d error %v", i, err)
			continue
		}
		if out != test {
			t.Errorf("readCuckoo #%d\n got: %v want: %v", i, out, test)
			continue
		}
	}

	// An unknown policy discriminant is rejected.
	var out Cuckoo
	err := readCuckoo(bytes.NewBuffer([]byte{0x09}), pver, &out)
	if !errors.Is(err, ErrUnknownCuckooKind) {
		t.Errorf("unknown kind wrong error got: %v, want: %v", err,
			ErrUnknownCuckooKind)
	}
}

// TestUpdateSignedData tests that the data covered by an update proof
// excludes the proof signatures themselves and commits to the identifier of
// the object being extended.
func TestUpdateSignedData(t *testing.T) {
	id := testID(0x10)
	update := Update{
		Version:   2,
		Timestamp: time.Unix(1755856860, 0),
		Kind:      UpdateData,
		Payload:   []byte("second data"),
	}

	digest := func(u *Update, id flid.ID) flid.ID {
		h := flid.New()
		u.WriteSignedData(h, id)
		var out flid.ID
		copy(out[:], h.Sum(nil))
		return out
	}

	before := digest(&update, id)

	// Attaching signatures must not change the signed data.
	update.Sigs = []UpdateSig{{PubKey: [33]byte{0x02}, Sig: [64]byte{0x01}}}
	if digest(&update, id) != before {
		t.Error("signed data changed when signatures were attached")
	}

	// A different object identifier yields different signed data, so a
	// proof cannot be replayed against another object.
	if digest(&update, testID(0x11)) == before {
		t.Error("signed data identical for different object identifiers")
	}

	// Any change to the covered fields yields different signed data.
	update.Version = 3
	if digest(&update, id) == before {
		t.Error("signed data identical for different versions")
	}
}
