// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/ineiti/fledger/flid"
)

// MaxSyncMetas is the maximum number of object summaries a single syncmetas
// message may carry.
const MaxSyncMetas = 2000

// MsgSyncMetas implements the Message interface and represents a fledger
// syncmetas message.  It advertises summaries of the objects a node holds
// for a realm so neighbors can detect missing objects or outdated versions
// and request the full copies with a syncreq message.
type MsgSyncMetas struct {
	Realm flid.ID
	Metas []FloMeta
}

// AddMeta appends an object summary to the message.  An error is returned
// when the message would exceed the maximum allowed number of entries.
func (msg *MsgSyncMetas) AddMeta(meta *FloMeta) error {
	const op = "MsgSyncMetas.AddMeta"
	if len(msg.Metas)+1 > MaxSyncMetas {
		str := fmt.Sprintf("too many summaries in message [max %v]",
			MaxSyncMetas)
		return messageError(op, ErrTooManyMetas, str)
	}

	msg.Metas = append(msg.Metas, *meta)
	return nil
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgSyncMetas) FlDecode(r io.Reader, pver uint32) error {
	const op = "MsgSyncMetas.FlDecode"
	err := readElement(r, &msg.Realm)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > MaxSyncMetas {
		str := fmt.Sprintf("too many summaries in message [count %v, max %v]",
			count, MaxSyncMetas)
		return messageError(op, ErrTooManyMetas, str)
	}

	msg.Metas = make([]FloMeta, count)
	for i := uint64(0); i < count; i++ {
		err = readFloMeta(r, pver, &msg.Metas[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgSyncMetas) FlEncode(w io.Writer, pver uint32) error {
	const op = "MsgSyncMetas.FlEncode"
	count := len(msg.Metas)
	if count > MaxSyncMetas {
		str := fmt.Sprintf("too many summaries in message [count %v, max %v]",
			count, MaxSyncMetas)
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
	for i := range msg.Metas {
		err = writeFloMeta(w, pver, &msg.Metas[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgSyncMetas) Command() string {
	return CmdSyncMetas
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgSyncMetas) MaxPayloadLength(pver uint32) uint32 {
	// Realm + varint count + max summaries.
	return flid.IDSize + uint32(VarIntSerializeSize(MaxSyncMetas)) +
		MaxSyncMetas*floMetaSerializeSize
}

// NewMsgSyncMetas returns a new fledger syncmetas message that conforms to
// the Message interface using the passed parameters.
func NewMsgSyncMetas(realm *flid.ID) *MsgSyncMetas {
	return &MsgSyncMetas{
		Realm: *realm,
		Metas: make([]FloMeta, 0, 64),
	}
}
