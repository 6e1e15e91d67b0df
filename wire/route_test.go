// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ineiti/fledger/flid"
)

// testID returns an identifier with the first byte set to the provided value.
// It is a convenience for tests that only care about identifiers being
// distinct.
func testID(b byte) flid.ID {
	var id flid.ID
	id[0] = b
	return id
}

// TestRouteInfo tests encode and decode of the forwarding state carried by
// routed messages along with the visited list helper.
func TestRouteInfo(t *testing.T) {
	pver := ProtocolVersion

	in := RouteInfo{
		Origin:    testID(0x01),
		Corr:      0xCAFE,
		HopBudget: 20,
		Visited:   []flid.ID{testID(0x02), testID(0x03)},
	}

	// The visited list helper must find listed nodes and nothing else.
	if !in.HasVisited(testID(0x02)) {
		t.Fatal("HasVisited: listed node reported as not visited")
	}
	if in.HasVisited(testID(0x04)) {
		t.Fatal("HasVisited: unlisted node reported as visited")
	}

	var buf bytes.Buffer
	err := writeRouteInfo(&buf, pver, &in)
	if err != nil {
		t.Fatalf("writeRouteInfo: unexpected error %v", err)
	}
	if uint32(buf.Len()) > routeInfoMaxLength() {
		t.Fatalf("serialized size %d exceeds stated max %d", buf.Len(),
			routeInfoMaxLength())
	}

	var out RouteInfo
	err = readRouteInfo(bytes.NewBuffer(buf.Bytes()), pver, &out)
	if err != nil {
		t.Fatalf("readRouteInfo: unexpected error %v", err)
	}
	if out.Origin != in.Origin {
		t.Errorf("origin mismatch - got %v, want %v", out.Origin, in.Origin)
	}
	if out.Corr != in.Corr {
		t.Errorf("correlation mismatch - got %d, want %d", out.Corr, in.Corr)
	}
	if out.HopBudget != in.HopBudget {
		t.Errorf("hop budget mismatch - got %d, want %d", out.HopBudget,
			in.HopBudget)
	}
	if len(out.Visited) != len(in.Visited) {
		t.Fatalf("visited length mismatch - got %d, want %d",
			len(out.Visited), len(in.Visited))
	}
	for i := range in.Visited {
		if out.Visited[i] != in.Visited[i] {
			t.Errorf("visited #%d mismatch - got %v, want %v", i,
				out.Visited[i], in.Visited[i])
		}
	}
}

// TestRouteInfoErrors performs negative tests against decode of the
// forwarding state to confirm the protocol limits are enforced.
func TestRouteInfoErrors(t *testing.T) {
	pver := ProtocolVersion

	// A hop budget beyond the absolute maximum must be rejected.
	var overBudget bytes.Buffer
	origin := testID(0x01)
	corr := uint64(1)
	budget := uint8(MaxHopBudget + 1)
	err := writeElements(&overBudget, &origin, &corr, &budget)
	if err != nil {
		t.Fatalf("writeElements: unexpected error %v", err)
	}

	var ri RouteInfo
	err = readRouteInfo(bytes.NewBuffer(overBudget.Bytes()), pver, &ri)
	if !errors.Is(err, ErrInvalidMsg) {
		t.Errorf("over budget wrong error got: %v, want: %v", err,
			ErrInvalidMsg)
	}

	// A visited list longer than the hop budget allows must be rejected
	// before any identifiers are read.
	var overVisited bytes.Buffer
	budget = MaxHopBudget
	err = writeElements(&overVisited, &origin, &corr, &budget)
	if err != nil {
		t.Fatalf("writeElements: unexpected error %v", err)
	}
	err = WriteVarInt(&overVisited, pver, MaxHopBudget+1)
	if err != nil {
		t.Fatalf("WriteVarInt: unexpected error %v", err)
	}

	err = readRouteInfo(bytes.NewBuffer(overVisited.Bytes()), pver, &ri)
	if !errors.Is(err, ErrTooManyVisited) {
		t.Errorf("over visited wrong error got: %v, want: %v", err,
			ErrTooManyVisited)
	}

	// The encode side enforces the same limit on the visited list.
	long := RouteInfo{Visited: make([]flid.ID, MaxHopBudget+1)}
	var buf bytes.Buffer
	err = writeRouteInfo(&buf, pver, &long)
	if !errors.Is(err, ErrTooManyVisited) {
		t.Errorf("encode over visited wrong error got: %v, want: %v", err,
			ErrTooManyVisited)
	}
}

// TestTaggedPayload tests embedding messages in routed envelopes along with
// the restrictions on what may be embedded.
func TestTaggedPayload(t *testing.T) {
	pver := ProtocolVersion

	// A storage layer message embeds and decodes back to itself.
	objectID := testID(0xab)
	tp, err := NewTaggedPayload(NewMsgFetchRequest(&objectID), pver)
	if err != nil {
		t.Fatalf("NewTaggedPayload: unexpected error %v", err)
	}
	if tp.Cmd != CmdFetchRequest {
		t.Fatalf("embedded command mismatch - got %s, want %s", tp.Cmd,
			CmdFetchRequest)
	}
	if tp.IsEmpty() {
		t.Fatal("embedded payload reported empty")
	}

	msg, err := tp.Decode(pver)
	if err != nil {
		t.Fatalf("Decode: unexpected error %v", err)
	}
	fetchReq, ok := msg.(*MsgFetchRequest)
	if !ok {
		t.Fatalf("Decode: wrong message type %T", msg)
	}
	if fetchReq.ID != objectID {
		t.Fatalf("decoded id mismatch - got %v, want %v", fetchReq.ID,
			objectID)
	}

	// The embedded message survives a trip through its wire serialization.
	var buf bytes.Buffer
	err = writeTaggedPayload(&buf, pver, &tp)
	if err != nil {
		t.Fatalf("writeTaggedPayload: unexpected error %v", err)
	}
	var tp2 TaggedPayload
	err = readTaggedPayload(bytes.NewBuffer(buf.Bytes()), pver, &tp2)
	if err != nil {
		t.Fatalf("readTaggedPayload: unexpected error %v", err)
	}
	if tp2.Cmd != tp.Cmd || !bytes.Equal(tp2.Bytes, tp.Bytes) {
		t.Fatal("tagged payload did not survive serialization")
	}

	// Envelopes must not nest.
	nodeID := testID(0x01)
	target := testID(0x02)
	_, err = NewTaggedPayload(NewMsgFindClosest(&nodeID, &target, 1, 20, 3),
		pver)
	if !errors.Is(err, ErrInvalidMsg) {
		t.Errorf("nested envelope wrong error got: %v, want: %v", err,
			ErrInvalidMsg)
	}
	nested := TaggedPayload{Cmd: CmdDirect, Bytes: []byte{0x00}}
	_, err = nested.Decode(pver)
	if !errors.Is(err, ErrInvalidMsg) {
		t.Errorf("nested decode wrong error got: %v, want: %v", err,
			ErrInvalidMsg)
	}

	// An empty payload cannot be decoded.
	empty := TaggedPayload{}
	_, err = empty.Decode(pver)
	if !errors.Is(err, ErrInvalidMsg) {
		t.Errorf("empty decode wrong error got: %v, want: %v", err,
			ErrInvalidMsg)
	}

	// An unknown embedded command is rejected.
	bogus := TaggedPayload{Cmd: "bogus", Bytes: []byte{0x00}}
	_, err = bogus.Decode(pver)
	if !errors.Is(err, ErrUnknownCmd) {
		t.Errorf("bogus decode wrong error got: %v, want: %v", err,
			ErrUnknownCmd)
	}

	// An embedded body beyond the embedded message's own limit is rejected.
	big := TaggedPayload{Cmd: CmdPing, Bytes: make([]byte, 9)}
	_, err = big.Decode(pver)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized decode wrong error got: %v, want: %v", err,
			ErrPayloadTooLarge)
	}
}

// TestEnvelopeRoundTrip tests that the routed envelopes survive a trip
// through the full message framing with their forwarding state and embedded
// payloads intact.
func TestEnvelopeRoundTrip(t *testing.T) {
	pver := ProtocolVersion
	flnet := SimNet

	nodeID := testID(0x11)
	target := testID(0x22)
	objectID := testID(0x33)

	// A findclosest walk in progress, two hops in, carrying a fetch
	// request toward the target neighborhood.
	payload, err := NewTaggedPayload(NewMsgFetchRequest(&objectID), pver)
	if err != nil {
		t.Fatalf("NewTaggedPayload: unexpected error %v", err)
	}
	fc := NewMsgFindClosest(&nodeID, &target, 77, 18, 3)
	fc.Route.Visited = []flid.ID{testID(0x44), testID(0x55)}
	fc.Payload = payload

	var buf bytes.Buffer
	err = WriteMessage(&buf, fc, pver, flnet)
	if err != nil {
		t.Fatalf("WriteMessage: unexpected error %v", err)
	}
	msg, _, err := ReadMessage(bytes.NewReader(buf.Bytes()), pver, flnet)
	if err != nil {
		t.Fatalf("ReadMessage: unexpected error %v", err)
	}
	fc2, ok := msg.(*MsgFindClosest)
	if !ok {
		t.Fatalf("ReadMessage: wrong message type %T", msg)
	}
	if fc2.Route.Origin != fc.Route.Origin || fc2.Route.Corr != fc.Route.Corr ||
		fc2.Route.HopBudget != fc.Route.HopBudget {

		t.Fatal("findclosest forwarding state did not survive round trip")
	}
	if len(fc2.Route.Visited) != 2 || fc2.Route.Visited[0] != testID(0x44) ||
		fc2.Route.Visited[1] != testID(0x55) {

		t.Fatal("findclosest visited list did not survive round trip")
	}
	if fc2.Target != target || fc2.K != 3 {
		t.Fatal("findclosest target did not survive round trip")
	}
	if fc2.Payload.Cmd != CmdFetchRequest ||
		!bytes.Equal(fc2.Payload.Bytes, payload.Bytes) {

		t.Fatal("findclosest payload did not survive round trip")
	}

	// The same walk without an embedded payload.
	bare := NewMsgFindClosest(&nodeID, &target, 78, 20, 3)
	buf.Reset()
	err = WriteMessage(&buf, bare, pver, flnet)
	if err != nil {
		t.Fatalf("WriteMessage: unexpected error %v", err)
	}
	msg, _, err = ReadMessage(bytes.NewReader(buf.Bytes()), pver, flnet)
	if err != nil {
		t.Fatalf("ReadMessage: unexpected error %v", err)
	}
	bare2 := msg.(*MsgFindClosest)
	if !bare2.Payload.IsEmpty() {
		t.Fatal("expected empty payload after round trip")
	}

	// An exact delivery carrying a store acknowledgement back to a walk
	// origin.
	ackPayload, err := NewTaggedPayload(NewMsgStoreAck(&objectID, 4), pver)
	if err != nil {
		t.Fatalf("NewTaggedPayload: unexpected error %v", err)
	}
	direct := NewMsgDirect(&nodeID, &target, 79, 20, ackPayload)
	buf.Reset()
	err = WriteMessage(&buf, direct, pver, flnet)
	if err != nil {
		t.Fatalf("WriteMessage: unexpected error %v", err)
	}
	msg, _, err = ReadMessage(bytes.NewReader(buf.Bytes()), pver, flnet)
	if err != nil {
		t.Fatalf("ReadMessage: unexpected error %v", err)
	}
	direct2, ok := msg.(*MsgDirect)
	if !ok {
		t.Fatalf("ReadMessage: wrong message type %T", msg)
	}
	if direct2.Dest != target {
		t.Fatal("direct destination did not survive round trip")
	}
	inner, err := direct2.Payload.Decode(pver)
	if err != nil {
		t.Fatalf("Decode: unexpected error %v", err)
	}
	ack, ok := inner.(*MsgStoreAck)
	if !ok {
		t.Fatalf("Decode: wrong message type %T", inner)
	}
	if ack.ID != objectID || ack.Version != 4 {
		t.Fatal("store acknowledgement did not survive round trip")
	}

	// A neighbor broadcast and its reply share the correlation that lets
	// the origin aggregate answers.
	nb := NewMsgNeighborBroadcast(&nodeID, 80, payload)
	buf.Reset()
	err = WriteMessage(&buf, nb, pver, flnet)
	if err != nil {
		t.Fatalf("WriteMessage: unexpected error %v", err)
	}
	msg, _, err = ReadMessage(bytes.NewReader(buf.Bytes()), pver, flnet)
	if err != nil {
		t.Fatalf("ReadMessage: unexpected error %v", err)
	}
	nb2, ok := msg.(*MsgNeighborBroadcast)
	if !ok {
		t.Fatalf("ReadMessage: wrong message type %T", msg)
	}
	if nb2.Origin != nodeID || nb2.Corr != 80 {
		t.Fatal("neighbor broadcast did not survive round trip")
	}

	reply := NewMsgNeighborReply(&target, nb2.Corr, ackPayload)
	buf.Reset()
	err = WriteMessage(&buf, reply, pver, flnet)
	if err != nil {
		t.Fatalf("WriteMessage: unexpected error %v", err)
	}
	msg, _, err = ReadMessage(bytes.NewReader(buf.Bytes()), pver, flnet)
	if err != nil {
		t.Fatalf("ReadMessage: unexpected error %v", err)
	}
	reply2, ok := msg.(*MsgNeighborReply)
	if !ok {
		t.Fatalf("ReadMessage: wrong message type %T", msg)
	}
	if reply2.Corr != nb2.Corr {
		t.Fatal("neighbor reply correlation did not survive round trip")
	}
}
