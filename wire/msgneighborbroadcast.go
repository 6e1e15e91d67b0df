// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgNeighborBroadcast implements the Message interface and represents a
// fledger nbbroadcast message.  Like a plain broadcast it delivers its
// embedded payload to every directly connected neighbor in a single hop, but
// each receiver is expected to answer with a nbreply message carrying the
// same correlation identifier so the sender can aggregate the replies.
type MsgNeighborBroadcast struct {
	Origin  flid.ID
	Corr    uint64
	Payload TaggedPayload
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgNeighborBroadcast) FlDecode(r io.Reader, pver uint32) error {
	err := readElements(r, &msg.Origin, &msg.Corr)
	if err != nil {
		return err
	}
	return readTaggedPayload(r, pver, &msg.Payload)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgNeighborBroadcast) FlEncode(w io.Writer, pver uint32) error {
	err := writeElements(w, &msg.Origin, &msg.Corr)
	if err != nil {
		return err
	}
	return writeTaggedPayload(w, pver, &msg.Payload)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgNeighborBroadcast) Command() string {
	return CmdNeighborBroadcast
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgNeighborBroadcast) MaxPayloadLength(pver uint32) uint32 {
	// Origin + correlation + embedded payload.
	return flid.IDSize + 8 + taggedPayloadMaxLength()
}

// NewMsgNeighborBroadcast returns a new fledger nbbroadcast message that
// conforms to the Message interface using the passed parameters.
func NewMsgNeighborBroadcast(origin *flid.ID, corr uint64,
	payload TaggedPayload) *MsgNeighborBroadcast {

	return &MsgNeighborBroadcast{
		Origin:  *origin,
		Corr:    corr,
		Payload: payload,
	}
}
