// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/ineiti/fledger/flid"
)

// MaxSyncRequestIDs is the maximum number of object identifiers a single
// syncreq message may carry.
const MaxSyncRequestIDs = 500

// MsgSyncRequest implements the Message interface and represents a fledger
// syncreq message.  It asks a neighbor for full copies of the listed
// objects, typically after a syncmetas message revealed objects the sender
// is missing or holds at an older version.  The neighbor answers with one
// fetchreply message per object it still holds.
type MsgSyncRequest struct {
	Realm flid.ID
	IDs   []flid.ID
}

// AddID appends an object identifier to the request.  An error is returned
// when the message would exceed the maximum allowed number of entries.
func (msg *MsgSyncRequest) AddID(id *flid.ID) error {
	const op = "MsgSyncRequest.AddID"
	if len(msg.IDs)+1 > MaxSyncRequestIDs {
		str := fmt.Sprintf("too many identifiers in message [max %v]",
			MaxSyncRequestIDs)
		return messageError(op, ErrTooManyMetas, str)
	}

	msg.IDs = append(msg.IDs, *id)
	return nil
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgSyncRequest) FlDecode(r io.Reader, pver uint32) error {
	const op = "MsgSyncRequest.FlDecode"
	err := readElement(r, &msg.Realm)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > MaxSyncRequestIDs {
		str := fmt.Sprintf("too many identifiers in message [count %v, max %v]",
			count, MaxSyncRequestIDs)
		return messageError(op, ErrTooManyMetas, str)
	}

	msg.IDs = make([]flid.ID, count)
	for i := uint64(0); i < count; i++ {
		err = readElement(r, &msg.IDs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgSyncRequest) FlEncode(w io.Writer, pver uint32) error {
	const op = "MsgSyncRequest.FlEncode"
	count := len(msg.IDs)
	if count > MaxSyncRequestIDs {
		str := fmt.Sprintf("too many identifiers in message [count %v, max %v]",
			count, MaxSyncRequestIDs)
		return messageError(op, ErrTooManyMetas, str)
	}

	err := writeElement(w, &msg.Realm)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, pver, uint64(count))
	if err != nil {
		return err
	}
	for i := range msg.IDs {
		err = writeElement(w, &msg.IDs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgSyncRequest) Command() string {
	return CmdSyncRequest
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgSyncRequest) MaxPayloadLength(pver uint32) uint32 {
	// Realm + varint count + max identifiers.
	return flid.IDSize + uint32(VarIntSerializeSize(MaxSyncRequestIDs)) +
		MaxSyncRequestIDs*flid.IDSize
}

// NewMsgSyncRequest returns a new fledger syncreq message that conforms to
// the Message interface using the passed parameters.
func NewMsgSyncRequest(realm *flid.ID) *MsgSyncRequest {
	return &MsgSyncRequest{
		Realm: *realm,
		IDs:   make([]flid.ID, 0, 64),
	}
}
