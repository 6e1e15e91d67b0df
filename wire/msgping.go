// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgPing implements the Message interface and represents a fledger ping
// message.  The routing table uses pings to confirm a peer is still live
// before evicting it in favor of a fresher candidate, so a ping is always
// answered with a pong carrying the same nonce.
type MsgPing struct {
	// Unique value associated with message that is used to identify
	// specific ping message.
	Nonce uint64
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPing) FlDecode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPing) FlEncode(w io.Writer, pver uint32) error {
	return writeElement(w, &msg.Nonce)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgPing) Command() string {
	return CmdPing
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPing) MaxPayloadLength(pver uint32) uint32 {
	// Nonce 8 bytes.
	return 8
}

// NewMsgPing returns a new fledger ping message that conforms to the Message
// interface.
func NewMsgPing(nonce uint64) *MsgPing {
	return &MsgPing{
		Nonce: nonce,
	}
}
