// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ineiti/fledger/flid"
)

// MsgFindClosest implements the Message interface and represents a fledger
// findclosest message.  It is the routed envelope behind the closest-delivery
// primitive: every hop consults its own routing table for the nodes closest
// to the target and forwards to the closest one it has not tried yet, until
// it is itself among the closest nodes it knows of or the hop budget runs
// out.  The terminal node answers with a closestreply message routed back to
// the origin.
//
// The envelope optionally carries an embedded message which is delivered to
// the storage layer of every hop along the walk.
type MsgFindClosest struct {
	Route   RouteInfo
	Target  flid.ID
	K       uint8
	Payload TaggedPayload
}

// FlDecode decodes r using the fledger protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgFindClosest) FlDecode(r io.Reader, pver uint32) error {
	err := readRouteInfo(r, pver, &msg.Route)
	if err != nil {
		return err
	}
	err = readElements(r, &msg.Target, &msg.K)
	if err != nil {
		return err
	}

	var present bool
	err = readElement(r, &present)
	if err != nil {
		return err
	}
	if present {
		return readTaggedPayload(r, pver, &msg.Payload)
	}
	msg.Payload = TaggedPayload{}
	return nil
}

// FlEncode encodes the receiver to w using the fledger protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgFindClosest) FlEncode(w io.Writer, pver uint32) error {
	err := writeRouteInfo(w, pver, &msg.Route)
	if err != nil {
		return err
	}
	err = writeElements(w, &msg.Target, &msg.K)
	if err != nil {
		return err
	}

	present := !msg.Payload.IsEmpty()
	err = writeElement(w, &present)
	if err != nil {
		return err
	}
	if present {
		return writeTaggedPayload(w, pver, &msg.Payload)
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgFindClosest) Command() string {
	return CmdFindClosest
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgFindClosest) MaxPayloadLength(pver uint32) uint32 {
	// Route info + target + k 1 byte + payload presence 1 byte + embedded
	// payload.
	return routeInfoMaxLength() + flid.IDSize + 1 + 1 + taggedPayloadMaxLength()
}

// NewMsgFindClosest returns a new fledger findclosest message that conforms
// to the Message interface using the passed parameters.
func NewMsgFindClosest(origin *flid.ID, target *flid.ID, corr uint64,
	hopBudget uint8, k uint8) *MsgFindClosest {

	return &MsgFindClosest{
		Route: RouteInfo{
			Origin:    *origin,
			Corr:      corr,
			HopBudget: hopBudget,
		},
		Target: *target,
		K:      k,
	}
}
