// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgStoreOffer implements the Message interface and represents a fledger
// storeoffer message.  It carries a full object offered for replication and
// the number of additional copies the placement walk still wants.  A node
// that accepts the offer stores the object, decrements the remaining count,
// and keeps the walk going while the count is positive.  Acceptance is
// acknowledged with a storeack message and refusal with a storedecline
// message, both sent directly to the origin of the walk.
type MsgStoreOffer struct {
	Flo       Flo
	Remaining uint8
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgStoreOffer) FlDecode(r io.Reader, pver uint32) error {
	err := msg.Flo.Decode(r, pver)
	if err != nil {
		return err
	}
	return readElement(r, &msg.Remaining)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgStoreOffer) FlEncode(w io.Writer, pver uint32) error {
	err := msg.Flo.Encode(w, pver)
	if err != nil {
		return err
	}
	return writeElement(w, msg.Remaining)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgStoreOffer) Command() string {
	return CmdStoreOffer
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgStoreOffer) MaxPayloadLength(pver uint32) uint32 {
	// Serialized object + remaining count 1 byte.
	return MaxFloWireLength + 1
}

// NewMsgStoreOffer returns a new fledger storeoffer message that conforms to
// the Message interface using the passed parameters.
func NewMsgStoreOffer(flo *Flo, remaining uint8) *MsgStoreOffer {
	return &MsgStoreOffer{
		Flo:       *flo,
		Remaining: remaining,
	}
}
