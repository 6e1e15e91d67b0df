// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgStoreAck implements the Message interface and represents a fledger
// storeack message.  It is sent to the origin of a placement walk by a node
// that accepted a storeoffer and now holds a replica of the object at the
// given version.
type MsgStoreAck struct {
	ID      flid.ID
	Version uint32
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgStoreAck) FlDecode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.ID, &msg.Version)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgStoreAck) FlEncode(w io.Writer, pver uint32) error {
	return writeElements(w, &msg.ID, msg.Version)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgStoreAck) Command() string {
	return CmdStoreAck
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgStoreAck) MaxPayloadLength(pver uint32) uint32 {
	// Object id + version 4 bytes.
	return flid.IDSize + 4
}

// NewMsgStoreAck returns a new fledger storeack message that conforms to the
// Message interface using the passed parameters.
func NewMsgStoreAck(id *flid.ID, version uint32) *MsgStoreAck {
	return &MsgStoreAck{
		ID:      *id,
		Version: version,
	}
}
