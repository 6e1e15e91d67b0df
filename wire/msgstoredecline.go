// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/ineiti/fledger/flid"
)

// DeclineCode identifies the reason a node refused a storeoffer.
type DeclineCode uint8

// These constants define the supported decline codes.
const (
	// DeclineBudget indicates the node has no storage budget left for the
	// object's realm.
	DeclineBudget DeclineCode = 0

	// DeclineUnknownRealm indicates the node does not serve the realm the
	// object belongs to.
	DeclineUnknownRealm DeclineCode = 1

	// DeclineTooLarge indicates the object exceeds the maximum size the
	// realm allows.
	DeclineTooLarge DeclineCode = 2

	// DeclineMembership indicates the object failed the realm's membership
	// verification.
	DeclineMembership DeclineCode = 3

	// DeclineInvalid indicates the object failed validation, for example a
	// broken history or an identifier mismatch.
	DeclineInvalid DeclineCode = 4
)

// String returns the DeclineCode as a human-readable name.
func (code DeclineCode) String() string {
	switch code {
	case DeclineBudget:
		return "budget"
	case DeclineUnknownRealm:
		return "unknownrealm"
	case DeclineTooLarge:
		return "toolarge"
	case DeclineMembership:
		return "membership"
	case DeclineInvalid:
		return "invalid"
	}
	return fmt.Sprintf("unknown DeclineCode (%d)", uint8(code))
}

// MsgStoreDecline implements the Message interface and represents a fledger
// storedecline message.  It is sent to the origin of a placement walk by a
// node that refused a storeoffer, together with the reason for the refusal.
type MsgStoreDecline struct {
	ID   flid.ID
	Code DeclineCode
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgStoreDecline) FlDecode(r io.Reader, pver uint32) error {
	err := readElement(r, &msg.ID)
	if err != nil {
		return err
	}

	var code uint8
	err = readElement(r, &code)
	if err != nil {
		return err
	}
	msg.Code = DeclineCode(code)
	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgStoreDecline) FlEncode(w io.Writer, pver uint32) error {
	err := writeElement(w, &msg.ID)
	if err != nil {
		return err
	}
	return writeElement(w, uint8(msg.Code))
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgStoreDecline) Command() string {
	return CmdStoreDecline
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgStoreDecline) MaxPayloadLength(pver uint32) uint32 {
	// Object id + decline code 1 byte.
	return flid.IDSize + 1
}

// NewMsgStoreDecline returns a new fledger storedecline message that
// conforms to the Message interface using the passed parameters.
func NewMsgStoreDecline(id *flid.ID, code DeclineCode) *MsgStoreDecline {
	return &MsgStoreDecline{
		ID:   *id,
		Code: code,
	}
}
