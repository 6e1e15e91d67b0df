// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/ineiti/fledger/flid"
)

// MaxClosestReplyNodes is the maximum number of node identifiers a single
// closestreply message may carry.
const MaxClosestReplyNodes = 64

// MsgClosestReply implements the Message interface and represents a fledger
// closestreply message.  It is sent by the terminal node of a findclosest
// walk and carries the identifiers of the nodes closest to the requested
// target known to that node, sorted nearest first.  The reply is routed back
// to the origin of the walk and matched to the outstanding request through
// the correlation identifier in the route info.
type MsgClosestReply struct {
	Route   RouteInfo
	Target  flid.ID
	Closest []flid.ID
}

// AddNode appends a node identifier to the reply.  An error is returned when
// the message would exceed the maximum allowed number of entries.
func (msg *MsgClosestReply) AddNode(id *flid.ID) error {
	const op = "MsgClosestReply.AddNode"
	if len(msg.Closest)+1 > MaxClosestReplyNodes {
		msg := fmt.Sprintf("too many nodes in message [max %v]",
			MaxClosestReplyNodes)
		return messageError(op, ErrTooManyNodes, msg)
	}

	msg.Closest = append(msg.Closest, *id)
	return nil
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgClosestReply) FlDecode(r io.Reader, pver uint32) error {
	const op = "MsgClosestReply.FlDecode"
	err := readRouteInfo(r, pver, &msg.Route)
	if err != nil {
		return err
	}
	err = readElement(r, &msg.Target)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > MaxClosestReplyNodes {
		msg := fmt.Sprintf("too many nodes in message [count %v, max %v]",
			count, MaxClosestReplyNodes)
		return messageError(op, ErrTooManyNodes, msg)
	}

	msg.Closest = make([]flid.ID, count)
	for i := uint64(0); i < count; i++ {
		err = readElement(r, &msg.Closest[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgClosestReply) FlEncode(w io.Writer, pver uint32) error {
	const op = "MsgClosestReply.FlEncode"
	count := len(msg.Closest)
	if count > MaxClosestReplyNodes {
		msg := fmt.Sprintf("too many nodes in message [count %v, max %v]",
			count, MaxClosestReplyNodes)
		return messageError(op, ErrTooManyNodes, msg)
	}

	err := writeRouteInfo(w, pver, &msg.Route)
	if err != nil {
		return err
	}
	err = writeElement(w, &msg.Target)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, pver, uint64(count))
	if err != nil {
		return err
	}
	for i := range msg.Closest {
		err = writeElement(w, &msg.Closest[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgClosestReply) Command() string {
	return CmdClosestReply
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgClosestReply) MaxPayloadLength(pver uint32) uint32 {
	// Route info + target + varint count + max nodes.
	return routeInfoMaxLength() + flid.IDSize + uint32(VarIntSerializeSize(
		MaxClosestReplyNodes)) + MaxClosestReplyNodes*flid.IDSize
}

// NewMsgClosestReply returns a new fledger closestreply message that
// conforms to the Message interface using the passed parameters.
func NewMsgClosestReply(origin *flid.ID, target *flid.ID, corr uint64) *MsgClosestReply {
	return &MsgClosestReply{
		Route: RouteInfo{
			Origin: *origin,
			Corr:   corr,
		},
		Target:  *target,
		Closest: make([]flid.ID, 0, MaxClosestReplyNodes),
	}
}
