// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgDirect implements the Message interface and represents a fledger direct
// message.  It is the routed envelope behind the exact-delivery primitive:
// each hop forwards the message toward the destination identifier until the
// destination itself is reached or the hop budget runs out.  Delivery is
// best effort.  A node that exhausts the budget without reaching the
// destination silently drops the message.
type MsgDirect struct {
	Route   RouteInfo
	Dest    flid.ID
	Payload TaggedPayload
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgDirect) FlDecode(r io.Reader, pver uint32) error {
	err := readRouteInfo(r, pver, &msg.Route)
	if err != nil {
		return err
	}
	err = readElement(r, &msg.Dest)
	if err != nil {
		return err
	}
	return readTaggedPayload(r, pver, &msg.Payload)
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgDirect) FlEncode(w io.Writer, pver uint32) error {
	err := writeRouteInfo(w, pver, &msg.Route)
	if err != nil {
		return err
	}
	err = writeElement(w, &msg.Dest)
	if err != nil {
		return err
	}
	return writeTaggedPayload(w, pver, &msg.Payload)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgDirect) Command() string {
	return CmdDirect
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgDirect) MaxPayloadLength(pver uint32) uint32 {
	// Route info + destination + embedded payload.
	return routeInfoMaxLength() + flid.IDSize + taggedPayloadMaxLength()
}

// NewMsgDirect returns a new fledger direct message that conforms to the
// Message interface using the passed parameters.
func NewMsgDirect(origin *flid.ID, dest *flid.ID, corr uint64, hopBudget uint8,
	payload TaggedPayload) *MsgDirect {

	return &MsgDirect{
		Route: RouteInfo{
			Origin:    *origin,
			Corr:      corr,
			HopBudget: hopBudget,
		},
		Dest:    *dest,
		Payload: payload,
	}
}
