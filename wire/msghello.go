// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/ineiti/fledger/flid"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field in a
// hello message.
const MaxUserAgentLen = 256

// DefaultUserAgent for wire in the stack.
const DefaultUserAgent = "/flwire:1.0.0/"

// MsgHello implements the Message interface and represents a fledger hello
// message.  It is used for a peer to advertise itself as soon as an outbound
// connection is established.  The remote peer then uses this information
// along with its own to negotiate.  The remote peer must then respond with a
// hello message of its own containing the negotiated values, after which both
// sides seal the exchange with helloack messages.  No further communication
// is allowed until a valid hello exchange completed.
type MsgHello struct {
	// Version of the protocol the node is using.
	ProtocolVersion uint32

	// Identifier of the node in the overlay, derived from its public key.
	NodeID flid.ID

	// Unique value associated with the message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated the message.  This is encoded as a
	// varString on the wire.  This has a max length of MaxUserAgentLen.
	UserAgent string
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgHello) FlDecode(r io.Reader, pver uint32) error {
	err := readElements(r, &msg.ProtocolVersion, &msg.NodeID, &msg.Nonce)
	if err != nil {
		return err
	}

	userAgent, err := ReadAsciiVarString(r, pver, MaxUserAgentLen)
	if err != nil {
		return err
	}
	msg.UserAgent = userAgent

	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgHello) FlEncode(w io.Writer, pver uint32) error {
	err := validateUserAgent(msg.UserAgent)
	if err != nil {
		return err
	}

	err = writeElements(w, &msg.ProtocolVersion, &msg.NodeID, &msg.Nonce)
	if err != nil {
		return err
	}

	return WriteVarString(w, pver, msg.UserAgent)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgHello) Command() string {
	return CmdHello
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgHello) MaxPayloadLength(pver uint32) uint32 {
	// Protocol version 4 bytes + node ID + nonce 8 bytes + max allowed
	// user agent.
	return 4 + flid.IDSize + 8 + MaxVarIntPayload + MaxUserAgentLen
}

// validateUserAgent checks the user agent length against MaxUserAgentLen.
func validateUserAgent(userAgent string) error {
	if len(userAgent) > MaxUserAgentLen {
		str := fmt.Sprintf("user agent too long [len %v, max %v]",
			len(userAgent), MaxUserAgentLen)
		return messageError("validateUserAgent", ErrUserAgentTooLong, str)
	}
	return nil
}

// AddUserAgent adds a user agent to the user agent string for the hello
// message.  The version string is not defined to any strict format, although
// it is recommended to use the form "major.minor.revision" e.g. "2.6.41".
func (msg *MsgHello) AddUserAgent(name string, version string,
	comments ...string) error {

	newUserAgent := fmt.Sprintf("%s:%s", name, version)
	if len(comments) != 0 {
		var s string
		for i, comment := range comments {
			if i > 0 {
				s += "; "
			}
			s += comment
		}
		newUserAgent = fmt.Sprintf("%s(%s)", newUserAgent, s)
	}
	newUserAgent = fmt.Sprintf("%s%s/", msg.UserAgent, newUserAgent)
	err := validateUserAgent(newUserAgent)
	if err != nil {
		return err
	}
	msg.UserAgent = newUserAgent
	return nil
}

// NewMsgHello returns a new fledger hello message that conforms to the
// Message interface using the passed parameters and defaults for the
// remaining fields.
func NewMsgHello(nodeID *flid.ID, nonce uint64) *MsgHello {
	return &MsgHello{
		ProtocolVersion: ProtocolVersion,
		NodeID:          *nodeID,
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
	}
}
