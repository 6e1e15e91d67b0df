// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgFetchRequest implements the Message interface and represents a fledger
// fetchreq message.  It asks for a full copy of the object with the given
// identifier.  A node holding the object answers immediately with a
// fetchreply message sent directly to the origin, short-circuiting the rest
// of the walk.  The terminal node of the walk answers with a notfound
// message when it does not hold the object either.
type MsgFetchRequest struct {
	ID flid.ID
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgFetchRequest) FlDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.ID)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgFetchRequest) FlEncode(w io.Writer, pver uint32) error {
	return writeElement(w, &msg.ID)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgFetchRequest) Command() string {
	return CmdFetchRequest
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgFetchRequest) MaxPayloadLength(pver uint32) uint32 {
	return flid.IDSize
}

// NewMsgFetchRequest returns a new fledger fetchreq message that conforms to
// the Message interface using the passed parameters.
func NewMsgFetchRequest(id *flid.ID) *MsgFetchRequest {
	return &MsgFetchRequest{
		ID: *id,
	}
}
