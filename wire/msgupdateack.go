// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgUpdateAck implements the Message interface and represents a fledger
// updateack message.  It is sent by a holder that verified and appended a
// requested history entry and reports the new version of its stored copy.
type MsgUpdateAck struct {
	ID      flid.ID
	Version uint32
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgUpdateAck) FlDecode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.ID, &msg.Version)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgUpdateAck) FlEncode(w io.Writer, pver uint32) error {
	return writeElements(w, &msg.ID, msg.Version)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgUpdateAck) Command() string {
	return CmdUpdateAck
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgUpdateAck) MaxPayloadLength(pver uint32) uint32 {
	// Object id + version 4 bytes.
	return flid.IDSize + 4
}

// NewMsgUpdateAck returns a new fledger updateack message that conforms to
// the Message interface using the passed parameters.
func NewMsgUpdateAck(id *flid.ID, version uint32) *MsgUpdateAck {
	return &MsgUpdateAck{
		ID:      *id,
		Version: version,
	}
}
