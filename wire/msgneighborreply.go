// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgNeighborReply implements the Message interface and represents a fledger
// nbreply message.  It is sent in answer to a nbbroadcast message and
// carries the replying node's identifier, the correlation identifier of the
// broadcast being answered, and the reply payload destined for the
// aggregating origin.
type MsgNeighborReply struct {
	Origin  flid.ID
	Corr    uint64
	Payload TaggedPayload
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgNeighborReply) FlDecode(r io.Reader, pver uint32) error {
	err := readElements(r, &msg.Origin, &msg.Corr)
	if err != nil {
		return err
	}
	return readTaggedPayload(r, pver, &msg.Payload)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgNeighborReply) FlEncode(w io.Writer, pver uint32) error {
	err := writeElements(w, &msg.Origin, &msg.Corr)
	if err != nil {
		return err
	}
	return writeTaggedPayload(w, pver, &msg.Payload)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgNeighborReply) Command() string {
	return CmdNeighborReply
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgNeighborReply) MaxPayloadLength(pver uint32) uint32 {
	// Origin + correlation + embedded payload.
	return flid.IDSize + 8 + taggedPayloadMaxLength()
}

// NewMsgNeighborReply returns a new fledger nbreply message that conforms to
// the Message interface using the passed parameters.
func NewMsgNeighborReply(origin *flid.ID, corr uint64,
	payload TaggedPayload) *MsgNeighborReply {

	return &MsgNeighborReply{
		Origin:  *origin,
		Corr:    corr,
		Payload: payload,
	}
}
