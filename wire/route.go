// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ineiti/fledger/flid"
)

const (
	// MaxHopBudget is the absolute maximum number of hops a routed message
	// may take regardless of the budget requested by the originator.  It
	// also bounds the size of the visited list carried by routed messages.
	MaxHopBudget = 64

	// MaxEmbeddedPayload is the maximum size of a message embedded in a
	// routed envelope.  It is intentionally smaller than MaxMessagePayload
	// so an envelope with a full embedded payload still fits in a frame.
	MaxEmbeddedPayload = MaxMessagePayload / 2
)

// RouteInfo carries the forwarding state shared by all routed messages: the
// originating node, the correlation nonce used to match replies to requests,
// the remaining hop budget, and the nodes already tried for this request.
//
// The visited list never grows beyond the hop budget since every forward both
// consumes a hop and appends exactly one node.
type RouteInfo struct {
	Origin    flid.ID
	Corr      uint64
	HopBudget uint8
	Visited   []flid.ID
}

// HasVisited returns whether the provided node has already been tried for
// this request.
func (ri *RouteInfo) HasVisited(id flid.ID) bool {
	for i := range ri.Visited {
		if ri.Visited[i] == id {
			return true
		}
	}
	return false
}

// readRouteInfo reads the forwarding state of a routed message from r.
func readRouteInfo(r io.Reader, pver uint32, ri *RouteInfo) error {
	const op = "readRouteInfo"
	err := readElements(r, &ri.Origin, &ri.Corr, &ri.HopBudget)
	if err != nil {
		return err
	}
	if ri.HopBudget > MaxHopBudget {
		msg := fmt.Sprintf("hop budget too large [budget %d, max %d]",
			ri.HopBudget, MaxHopBudget)
		return messageError(op, ErrInvalidMsg, msg)
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > MaxHopBudget {
		msg := fmt.Sprintf("too many visited nodes [count %d, max %d]",
			count, MaxHopBudget)
		return messageError(op, ErrTooManyVisited, msg)
	}

	ri.Visited = make([]flid.ID, count)
	for i := uint64(0); i < count; i++ {
		err := readElement(r, &ri.Visited[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// writeRouteInfo writes the forwarding state of a routed message to w.
func writeRouteInfo(w io.Writer, pver uint32, ri *RouteInfo) error {
	const op = "writeRouteInfo"
	if len(ri.Visited) > MaxHopBudget {
		msg := fmt.Sprintf("too many visited nodes [count %d, max %d]",
			len(ri.Visited), MaxHopBudget)
		return messageError(op, ErrTooManyVisited, msg)
	}

	err := writeElements(w, &ri.Origin, &ri.Corr, &ri.HopBudget)
	if err != nil {
		return err
	}
	err = WriteVarInt(w, pver, uint64(len(ri.Visited)))
	if err != nil {
		return err
	}
	for i := range ri.Visited {
		err := writeElement(w, &ri.Visited[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// routeInfoMaxLength returns the maximum number of bytes the serialized
// forwarding state can occupy.
func routeInfoMaxLength() uint32 {
	// Origin 32 bytes + correlation nonce 8 bytes + hop budget 1 byte +
	// varint count + up to MaxHopBudget identifiers.
	return flid.IDSize + 8 + 1 + MaxVarIntPayload + MaxHopBudget*flid.IDSize
}

// TaggedPayload is a message embedded inside another message, serialized as
// its command string followed by its encoded body.  Routed envelopes use it
// to carry the storage layer's messages toward their destination without the
// routing layer knowing anything about their contents.
//
// An empty command denotes the absence of an embedded message.
type TaggedPayload struct {
	Cmd   string
	Bytes []byte
}

// IsEmpty returns whether the tagged payload holds no embedded message.
func (tp *TaggedPayload) IsEmpty() bool {
	return tp.Cmd == ""
}

// NewTaggedPayload encodes the passed message into a tagged payload suitable
// for embedding in a routed envelope.  Routed envelopes themselves must not
// be embedded.
func NewTaggedPayload(msg Message, pver uint32) (TaggedPayload, error) {
	const op = "NewTaggedPayload"
	if isEnvelopeCmd(msg.Command()) {
		str := fmt.Sprintf("command [%s] cannot be embedded", msg.Command())
		return TaggedPayload{}, messageError(op, ErrInvalidMsg, str)
	}

	var bw bytes.Buffer
	err := msg.FlEncode(&bw, pver)
	if err != nil {
		return TaggedPayload{}, err
	}
	body := bw.Bytes()
	if len(body) > MaxEmbeddedPayload {
		str := fmt.Sprintf("embedded payload too large [size %d, max %d]",
			len(body), MaxEmbeddedPayload)
		return TaggedPayload{}, messageError(op, ErrPayloadTooLarge, str)
	}
	return TaggedPayload{Cmd: msg.Command(), Bytes: body}, nil
}

// Decode parses the embedded message out of the tagged payload.  It enforces
// the embedded message's own payload limit and rejects routed envelopes so a
// malicious peer cannot nest forwarding state.
func (tp *TaggedPayload) Decode(pver uint32) (Message, error) {
	const op = "TaggedPayload.Decode"
	if tp.IsEmpty() {
		return nil, messageError(op, ErrInvalidMsg, "empty embedded payload")
	}
	if isEnvelopeCmd(tp.Cmd) {
		str := fmt.Sprintf("command [%s] cannot be embedded", tp.Cmd)
		return nil, messageError(op, ErrInvalidMsg, str)
	}

	msg, err := makeEmptyMessage(tp.Cmd)
	if err != nil {
		return nil, err
	}
	if uint32(len(tp.Bytes)) > msg.MaxPayloadLength(pver) {
		str := fmt.Sprintf("embedded payload exceeds max length [size %d, "+
			"max %d for %s]", len(tp.Bytes), msg.MaxPayloadLength(pver),
			tp.Cmd)
		return nil, messageError(op, ErrPayloadTooLarge, str)
	}

	br := bytes.NewBuffer(tp.Bytes)
	err = msg.FlDecode(br, pver)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// isEnvelopeCmd returns whether the command denotes a routed envelope or a
// one-hop carrier, neither of which may be embedded inside another message.
func isEnvelopeCmd(cmd string) bool {
	switch cmd {
	case CmdFindClosest, CmdDirect, CmdBroadcast, CmdNeighborBroadcast,
		CmdNeighborReply:

		return true
	}
	return false
}

// readTaggedPayload reads an embedded message from r.
func readTaggedPayload(r io.Reader, pver uint32, tp *TaggedPayload) error {
	cmd, err := ReadAsciiVarString(r, pver, CommandSize)
	if err != nil {
		return err
	}
	body, err := ReadVarBytes(r, pver, MaxEmbeddedPayload, "embedded payload")
	if err != nil {
		return err
	}
	tp.Cmd = cmd
	tp.Bytes = body
	return nil
}

// writeTaggedPayload writes an embedded message to w.
func writeTaggedPayload(w io.Writer, pver uint32, tp *TaggedPayload) error {
	const op = "writeTaggedPayload"
	if len(tp.Cmd) > CommandSize {
		str := fmt.Sprintf("command [%s] is too long [max %v]", tp.Cmd,
			CommandSize)
		return messageError(op, ErrCmdTooLong, str)
	}
	err := WriteVarString(w, pver, tp.Cmd)
	if err != nil {
		return err
	}
	return WriteVarBytes(w, pver, tp.Bytes)
}

// taggedPayloadMaxLength returns the maximum number of bytes a serialized
// tagged payload can occupy.
func taggedPayloadMaxLength() uint32 {
	return 1 + CommandSize + MaxVarIntPayload + MaxEmbeddedPayload
}
