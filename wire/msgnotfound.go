// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgNotFound implements the Message interface and represents a fledger
// notfound message.  It is sent by the terminal node of a fetch walk when
// neither it nor any node along the walk holds the requested object.  The
// origin distinguishes this definitive answer from a walk that simply ran
// out of hop budget.
type MsgNotFound struct {
	ID flid.ID
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgNotFound) FlDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.ID)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgNotFound) FlEncode(w io.Writer, pver uint32) error {
	return writeElement(w, &msg.ID)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgNotFound) Command() string {
	return CmdNotFound
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgNotFound) MaxPayloadLength(pver uint32) uint32 {
	return flid.IDSize
}

// NewMsgNotFound returns a new fledger notfound message that conforms to the
// Message interface using the passed parameters.
func NewMsgNotFound(id *flid.ID) *MsgNotFound {
	return &MsgNotFound{
		ID: *id,
	}
}
