// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgFetchReply implements the Message interface and represents a fledger
// fetchreply message.  It carries a full copy of a requested object and is
// sent directly to the origin of the fetchreq that asked for it.
type MsgFetchReply struct {
	Flo Flo
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgFetchReply) FlDecode(r io.Reader, pver uint32) error {
	return msg.Flo.Decode(r, pver)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgFetchReply) FlEncode(w io.Writer, pver uint32) error {
	return msg.Flo.Encode(w, pver)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgFetchReply) Command() string {
	return CmdFetchReply
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgFetchReply) MaxPayloadLength(pver uint32) uint32 {
	return MaxFloWireLength
}

// NewMsgFetchReply returns a new fledger fetchreply message that conforms to
// the Message interface using the passed parameters.
func NewMsgFetchReply(flo *Flo) *MsgFetchReply {
	return &MsgFetchReply{
		Flo: *flo,
	}
}
