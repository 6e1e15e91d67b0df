// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgHelloAck defines a fledger helloack message which is used for a peer to
// acknowledge a hello message after it has been used to negotiate parameters.
// It implements the Message interface.
//
// This message has no payload.
type MsgHelloAck struct{}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgHelloAck) FlDecode(r io.Reader, pver uint32) error {
	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgHelloAck) FlEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgHelloAck) Command() string {
	return CmdHelloAck
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgHelloAck) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgHelloAck returns a new fledger helloack message that conforms to the
// Message interface.
func NewMsgHelloAck() *MsgHelloAck {
	return &MsgHelloAck{}
}
