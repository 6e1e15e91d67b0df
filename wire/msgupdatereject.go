// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/ineiti/fledger/flid"
)

// MaxRejectReasonLen is the maximum length of the human-readable reason in
// an updatereject message.
const MaxRejectReasonLen = 256

// RejectCode identifies the reason a holder refused a requested history
// entry.
type RejectCode uint8

// These constants define the supported reject codes.
const (
	// RejectRules indicates the entry failed verification against the
	// rules established by the previous entry.
	RejectRules RejectCode = 0

	// RejectStale indicates the entry's version is not newer than the
	// version already stored.
	RejectStale RejectCode = 1

	// RejectNotHeld indicates the node does not hold the object the entry
	// refers to.
	RejectNotHeld RejectCode = 2

	// RejectInvalid indicates the entry is malformed, for example a
	// non-monotonic timestamp or an oversized payload.
	RejectInvalid RejectCode = 3
)

// String returns the RejectCode as a human-readable name.
func (code RejectCode) String() string {
	switch code {
	case RejectRules:
		return "rules"
	case RejectStale:
		return "stale"
	case RejectNotHeld:
		return "notheld"
	case RejectInvalid:
		return "invalid"
	}
	return fmt.Sprintf("unknown RejectCode (%d)", uint8(code))
}

// MsgUpdateReject implements the Message interface and represents a fledger
// updatereject message.  It is sent by a holder that refused a requested
// history entry, together with a machine-readable code and an optional
// human-readable reason.
type MsgUpdateReject struct {
	ID     flid.ID
	Code   RejectCode
	Reason string
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgUpdateReject) FlDecode(r io.Reader, pver uint32) error {
	err := readElement(r, &msg.ID)
	if err != nil {
		return err
	}

	var code uint8
	err = readElement(r, &code)
	if err != nil {
		return err
	}
	msg.Code = RejectCode(code)

	msg.Reason, err = ReadVarString(r, pver)
	if err != nil {
		return err
	}
	if len(msg.Reason) > MaxRejectReasonLen {
		const op = "MsgUpdateReject.FlDecode"
		str := fmt.Sprintf("reject reason too long [len %v, max %v]",
			len(msg.Reason), MaxRejectReasonLen)
		return messageError(op, ErrInvalidMsg, str)
	}
	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgUpdateReject) FlEncode(w io.Writer, pver uint32) error {
	if len(msg.Reason) > MaxRejectReasonLen {
		const op = "MsgUpdateReject.FlEncode"
		str := fmt.Sprintf("reject reason too long [len %v, max %v]",
			len(msg.Reason), MaxRejectReasonLen)
		return messageError(op, ErrInvalidMsg, str)
	}

	err := writeElement(w, &msg.ID)
	if err != nil {
		return err
	}
	err = writeElement(w, uint8(msg.Code))
	if err != nil {
		return err
	}
	return WriteVarString(w, pver, msg.Reason)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgUpdateReject) Command() string {
	return CmdUpdateReject
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgUpdateReject) MaxPayloadLength(pver uint32) uint32 {
	// Object id + reject code 1 byte + varint reason length + max reason.
	return flid.IDSize + 1 + uint32(VarIntSerializeSize(MaxRejectReasonLen)) +
		MaxRejectReasonLen
}

// NewMsgUpdateReject returns a new fledger updatereject message that
// conforms to the Message interface using the passed parameters.
func NewMsgUpdateReject(id *flid.ID, code RejectCode, reason string) *MsgUpdateReject {
	return &MsgUpdateReject{
		ID:     *id,
		Code:   code,
		Reason: reason,
	}
}
