// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgUpdateRequest implements the Message interface and represents a fledger
// updatereq message.  It carries a single new history entry for an existing
// object.  A holder verifies the entry against the rules established by the
// previous entry of its stored history before appending it.  Acceptance is
// answered with an updateack message and refusal with an updatereject
// message.
type MsgUpdateRequest struct {
	ID     flid.ID
	Update Update
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgUpdateRequest) FlDecode(r io.Reader, pver uint32) error {
	err := readElement(r, &msg.ID)
	if err != nil {
		return err
	}
	return readUpdate(r, pver, &msg.Update)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgUpdateRequest) FlEncode(w io.Writer, pver uint32) error {
	err := writeElement(w, &msg.ID)
	if err != nil {
		return err
	}
	return writeUpdate(w, pver, &msg.Update)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgUpdateRequest) Command() string {
	return CmdUpdateRequest
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgUpdateRequest) MaxPayloadLength(pver uint32) uint32 {
	// Object id + max encoded history entry.
	return flid.IDSize + updateMaxLength()
}

// NewMsgUpdateRequest returns a new fledger updatereq message that conforms
// to the Message interface using the passed parameters.
func NewMsgUpdateRequest(id *flid.ID, update *Update) *MsgUpdateRequest {
	return &MsgUpdateRequest{
		ID:     *id,
		Update: *update,
	}
}
