// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flid

import (
	"encoding/hex"
	"fmt"
)

const (
	// IDSize of the array used to store identifiers.
	IDSize = 32

	// IDBits is the number of bits in an identifier.
	IDBits = IDSize * 8

	// MaxIDStringSize is the maximum length of an ID string.
	MaxIDStringSize = IDSize * 2
)

// ErrIDStrSize describes an error that indicates the caller specified an ID
// string that has too many characters.
var ErrIDStrSize = fmt.Errorf("max ID string length is %v chars", MaxIDStringSize)

// ID is used in several of the fledger messages and common structures.  It
// identifies both nodes and stored objects and typically represents the
// BLAKE-256 hash of some canonical serialization.
type ID [IDSize]byte

// String returns the ID as the hexadecimal string of the identifier bytes.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns an abbreviated form of the ID suitable for log messages.
func (id ID) Short() string {
	return hex.EncodeToString(id[:4])
}

// CloneBytes returns a copy of the bytes which represent the ID as a byte
// slice.
//
// NOTE: It is generally cheaper to just slice the ID directly thereby reusing
// the same bytes rather than calling this method.
func (id *ID) CloneBytes() []byte {
	newID := make([]byte, IDSize)
	copy(newID, id[:])
	return newID
}

// SetBytes sets the bytes which represent the ID.  An error is returned if
// the number of bytes passed in is not IDSize.
func (id *ID) SetBytes(newID []byte) error {
	nhlen := len(newID)
	if nhlen != IDSize {
		return fmt.Errorf("invalid ID length of %v, want %v", nhlen, IDSize)
	}
	copy(id[:], newID)
	return nil
}

// IsEqual returns true if target is the same as the ID.
func (id *ID) IsEqual(target *ID) bool {
	if id == nil && target == nil {
		return true
	}
	if id == nil || target == nil {
		return false
	}
	return *id == *target
}

// IsZero returns true if the ID consists solely of zero bytes.
func (id *ID) IsZero() bool {
	return *id == ID{}
}

// NewID returns a new ID from a byte slice.  An error is returned if the
// number of bytes passed in is not IDSize.
func NewID(newID []byte) (*ID, error) {
	var id ID
	err := id.SetBytes(newID)
	if err != nil {
		return nil, err
	}
	return &id, err
}

// NewIDFromStr creates an ID from an identifier string.  The string should
// be the hexadecimal string of the identifier bytes.
func NewIDFromStr(src string) (*ID, error) {
	id := new(ID)
	err := Decode(id, src)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// Decode decodes the hexadecimal string encoding of an ID to a destination.
func Decode(dst *ID, src string) error {
	// Return error if ID string is too long.
	if len(src) > MaxIDStringSize {
		return ErrIDStrSize
	}

	// Hex decoder expects the ID to be a multiple of two.
	srcBytes := src
	if len(src)%2 != 0 {
		srcBytes = "0" + src
	}

	// Hex decode the source bytes into the most significant position so
	// short strings keep their leading bits.  This keeps the textual form
	// aligned with the bucket math which works on leading bits.
	var decoded [IDSize]byte
	n, err := hex.Decode(decoded[:], []byte(srcBytes))
	if err != nil {
		return err
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst[:n], decoded[:n])
	return nil
}
