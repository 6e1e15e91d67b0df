// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

// recentKey builds the duplicate suppression key of a routed message from
// the fields every copy of it shares.
func recentKey(origin *flid.ID, corr uint64, cmd string) []byte {
	key := make([]byte, 0, flid.IDSize+8+len(cmd))
	key = append(key, origin[:]...)
	key = binary.LittleEndian.AppendUint64(key, corr)
	key = append(key, cmd...)
	return key
}

// alreadyRouted checks the duplicate suppression filter for the routed
// message and records it when it is new.  It returns true when the same
// origin, correlation nonce, and command were handled before.
func (r *Router) alreadyRouted(origin *flid.ID, corr uint64, cmd string) bool {
	key := recentKey(origin, corr, cmd)
	if r.seen.Contains(key) {
		return true
	}
	r.seen.Add(key)
	return false
}

// noteSeen refreshes the routing table record of a node there is direct
// evidence of.  When the table wants an existing record checked before
// admitting the node, a liveness probe is started.
func (r *Router) noteSeen(id flid.ID) {
	if id == r.cfg.Self {
		return
	}
	if cand := r.table.Seen(id); cand != nil {
		r.startProbe(*cand)
	}
}

// startProbe sends a liveness check to the given node unless one is
// already in flight.  A send failure counts as an immediate probe failure.
func (r *Router) startProbe(id flid.ID) {
	for _, rec := range r.probes {
		if rec.id == id {
			return
		}
	}
	// The record is registered before the ping goes out since the pong can
	// arrive while the send is still running.
	nonce := rand.Uint64()
	r.probes[nonce] = proberec{id: id, deadline: r.cfg.Now().Add(r.cfg.ProbeTimeout)}
	err := r.cfg.Send(id, wire.NewMsgPing(nonce))
	if err != nil {
		log.Debugf("Probe send to %s failed: %v", id.Short(), err)
		delete(r.probes, nonce)
		r.table.ProbeFailed(id)
	}
}

// closestKnown returns up to n known nodes closest to the target, counting
// the local node itself.
func (r *Router) closestKnown(target flid.ID, n int) []flid.ID {
	nodes := r.table.Closest(target, n)
	nodes = append(nodes, r.cfg.Self)
	flid.SortByDistance(nodes, target)
	if len(nodes) > n {
		nodes = nodes[:n]
	}
	return nodes
}

// walkCandidates returns the nodes a closest walk may advance to, nearest
// to the target first.  A candidate must be strictly closer to the target
// than the local node and must not appear in the routing state the walk
// already carries.
func (r *Router) walkCandidates(route *wire.RouteInfo, target flid.ID, from *flid.ID) []flid.ID {
	closest := r.table.Closest(target, r.cfg.K)
	cands := make([]flid.ID, 0, len(closest))
	for _, id := range closest {
		if id == route.Origin || route.HasVisited(id) {
			continue
		}
		if from != nil && id == *from {
			continue
		}
		if flid.CmpDistance(id, r.cfg.Self, target) != -1 {
			continue
		}
		cands = append(cands, id)
	}
	return cands
}

// forwardRouted hands the routed message to the first candidate that
// accepts it.  The taken hop consumes one unit of budget and is recorded
// in the visited set; failed attempts leave no trace.  It reports whether
// any candidate accepted the message.
func (r *Router) forwardRouted(cands []flid.ID, route *wire.RouteInfo, msg wire.Message) bool {
	base := route.Visited
	budget := route.HopBudget
	for _, id := range cands {
		route.Visited = append(base, id)
		route.HopBudget = budget - 1
		err := r.cfg.Send(id, msg)
		if err == nil {
			return true
		}
		log.Debugf("Forward of %s to %s failed: %v", msg.Command(), id.Short(), err)
	}
	route.Visited = base
	route.HopBudget = budget
	return false
}

// forwardToward advances a routed message addressed to dest by one hop.
// Unlike walk forwarding there is no progress requirement, so a node with
// a sparser view of the target's surroundings can still move the message
// along.  It reports whether a next hop accepted it.
func (r *Router) forwardToward(dest flid.ID, route *wire.RouteInfo, from *flid.ID, msg wire.Message) bool {
	if route.HopBudget == 0 {
		return false
	}
	closest := r.table.Closest(dest, r.cfg.K)
	cands := make([]flid.ID, 0, len(closest))
	for _, id := range closest {
		if route.HasVisited(id) {
			continue
		}
		if from != nil && id == *from {
			continue
		}
		cands = append(cands, id)
	}
	return r.forwardRouted(cands, route, msg)
}

// eventHandler is the main handler for the router.  It must be run as a
// goroutine.  It processes peer events, inbound messages, and locally
// originated sends so the routing state can be accessed without locks.
func (r *Router) eventHandler(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

out:
	for {
		select {
		case data := <-r.msgChan:
			switch msg := data.(type) {
			case *peerConnectedMsg:
				r.noteSeen(msg.id)

			case *peerDisconnectedMsg:
				r.handlePeerDisconnected(msg.id)

			case *inboundMsg:
				r.handleInbound(msg.from, msg.msg)

			case *lookupMsg:
				r.handleLookup(msg.target, msg.corr)

			case *sendClosestMsg:
				r.handleSendClosest(msg.target, msg.corr, msg.payload)

			case *continueClosestMsg:
				r.handleContinueClosest(msg.env, msg.payload)

			case *sendDirectMsg:
				r.handleSendDirect(msg.dest, msg.corr, msg.payload)

			case *broadcastMsg:
				r.handleBroadcastOut(msg.corr, msg.payload)

			case *neighborQueryMsg:
				r.handleNeighborQuery(msg.corr, msg.payload)

			case *replyNeighborMsg:
				r.handleReplyNeighbor(msg.to, msg.corr, msg.payload)

			case *knownNodesMsg:
				msg.reply <- r.table.Nodes()

			case tickMsg:
				r.handleTick()

			default:
				log.Warnf("Invalid message type in router event handler: %T", msg)
			}

		case <-ticker.C:
			r.handleTick()

		case <-ctx.Done():
			break out
		}
	}

	if r.cfg.SnapshotPath != "" {
		err := r.table.SaveSnapshot(r.cfg.SnapshotPath)
		if err != nil {
			log.Errorf("Failed to save routing table snapshot: %v", err)
		}
	}
	log.Trace("Router event handler done")
}

// handleInbound refreshes the sender's routing table record and dispatches
// the message to its handler.
func (r *Router) handleInbound(from flid.ID, msg wire.Message) {
	r.noteSeen(from)

	switch m := msg.(type) {
	case *wire.MsgPing:
		r.handlePing(from, m)

	case *wire.MsgPong:
		r.handlePong(from, m)

	case *wire.MsgFindClosest:
		r.handleFindClosest(from, m)

	case *wire.MsgClosestReply:
		r.handleClosestReply(from, m)

	case *wire.MsgDirect:
		r.handleDirect(from, m)

	case *wire.MsgBroadcast:
		r.handleBroadcast(from, m)

	case *wire.MsgNeighborBroadcast:
		r.handleNeighborBroadcast(from, m)

	case *wire.MsgNeighborReply:
		r.handleNeighborReply(from, m)

	default:
		log.Warnf("Unroutable message %s from %s", msg.Command(), from.Short())
	}
}

// handlePeerDisconnected drops the peer from the routing table and cancels
// any liveness check that was waiting on it.
func (r *Router) handlePeerDisconnected(id flid.ID) {
	r.table.Lost(id)
	for nonce, rec := range r.probes {
		if rec.id == id {
			delete(r.probes, nonce)
		}
	}
}

func (r *Router) handlePing(from flid.ID, msg *wire.MsgPing) {
	err := r.cfg.Send(from, wire.NewMsgPong(msg.Nonce))
	if err != nil {
		log.Debugf("Pong send to %s failed: %v", from.Short(), err)
	}
}

func (r *Router) handlePong(from flid.ID, msg *wire.MsgPong) {
	rec, ok := r.probes[msg.Nonce]
	if !ok || rec.id != from {
		return
	}
	delete(r.probes, msg.Nonce)
	r.table.ProbeSucceeded(from)
}

// handleFindClosest advances a closest walk.  The walk is terminal at this
// node when no known unvisited node is strictly closer to the target or
// the hop budget ran out.  Payload-free walks are answered with a closest
// reply at the terminal node; walks carrying a payload are handed up so
// the receiver decides whether and how the walk continues.
func (r *Router) handleFindClosest(from flid.ID, msg *wire.MsgFindClosest) {
	if r.alreadyRouted(&msg.Route.Origin, msg.Route.Corr, wire.CmdFindClosest) {
		log.Debugf("Dropping duplicate findclosest %016x from %s",
			msg.Route.Corr, from.Short())
		return
	}

	cands := r.walkCandidates(&msg.Route, msg.Target, &from)
	terminal := msg.Route.HopBudget == 0 || len(cands) == 0

	if msg.Payload.IsEmpty() {
		if terminal || !r.forwardRouted(cands, &msg.Route, msg) {
			r.sendClosestReply(&msg.Route, msg.Target, msg.K)
		}
		return
	}

	payload, err := msg.Payload.Decode(wire.ProtocolVersion)
	if err != nil {
		log.Debugf("Dropping findclosest with malformed %s payload from %s: %v",
			msg.Payload.Cmd, from.Short(), err)
		return
	}

	if r.cfg.Deliver == nil {
		if !terminal {
			r.forwardRouted(cands, &msg.Route, msg)
		}
		return
	}

	r.cfg.Deliver(Delivery{
		Kind:     DeliverClosest,
		From:     from,
		Origin:   msg.Route.Origin,
		Corr:     msg.Route.Corr,
		Msg:      payload,
		Env:      Envelope{Route: msg.Route, Target: msg.Target, K: msg.K},
		Terminal: terminal,
	})
}

// sendClosestReply answers a payload-free walk ending at this node.  The
// reply is routed back to the walk origin with a fresh hop budget and
// carries the closest nodes known here, the local node included.
func (r *Router) sendClosestReply(route *wire.RouteInfo, target flid.ID, k uint8) {
	n := int(k)
	if n <= 0 || n > wire.MaxClosestReplyNodes {
		n = r.cfg.K
	}
	reply := wire.NewMsgClosestReply(&route.Origin, &target, route.Corr)
	reply.Route.HopBudget = r.cfg.HopBudget
	for _, id := range r.closestKnown(target, n) {
		if err := reply.AddNode(&id); err != nil {
			break
		}
	}

	if route.Origin == r.cfg.Self {
		r.completeLookup(route.Corr, target, reply.Closest, "local")
		return
	}
	r.alreadyRouted(&route.Origin, route.Corr, wire.CmdClosestReply)
	if !r.forwardToward(route.Origin, &reply.Route, nil, reply) {
		log.Debugf("No route back to %s for closestreply %016x",
			route.Origin.Short(), route.Corr)
	}
}

// handleClosestReply consumes the reply when it is addressed to the local
// node and routes it onward otherwise.
func (r *Router) handleClosestReply(from flid.ID, msg *wire.MsgClosestReply) {
	if r.alreadyRouted(&msg.Route.Origin, msg.Route.Corr, wire.CmdClosestReply) {
		log.Debugf("Dropping duplicate closestreply %016x from %s",
			msg.Route.Corr, from.Short())
		return
	}

	if msg.Route.Origin == r.cfg.Self {
		r.completeLookup(msg.Route.Corr, msg.Target, msg.Closest, from.Short())
		return
	}
	if !r.forwardToward(msg.Route.Origin, &msg.Route, &from, msg) {
		log.Debugf("No route toward %s for closestreply %016x",
			msg.Route.Origin.Short(), msg.Route.Corr)
	}
}

// completeLookup settles the pending lookup the reply answers.  Replies
// with no matching pending entry were already answered or timed out.
func (r *Router) completeLookup(corr uint64, target flid.ID, closest []flid.ID, source string) {
	req, ok := r.pending[corr]
	if !ok || req.kind != pendingLookup {
		log.Debugf("No pending lookup for closestreply %016x via %s", corr, source)
		return
	}
	delete(r.pending, corr)
	if r.cfg.LookupDone != nil {
		r.cfg.LookupDone(corr, target, closest)
	}
}

// handleDirect delivers the message when it is addressed to the local node
// and routes it onward otherwise.  Delivery is best effort, so a message
// that cannot be moved closer to its destination is dropped quietly.
func (r *Router) handleDirect(from flid.ID, msg *wire.MsgDirect) {
	if r.alreadyRouted(&msg.Route.Origin, msg.Route.Corr, wire.CmdDirect) {
		log.Debugf("Dropping duplicate direct %016x from %s",
			msg.Route.Corr, from.Short())
		return
	}

	if msg.Dest == r.cfg.Self {
		r.deliverDirect(from, msg)
		return
	}
	if !r.forwardToward(msg.Dest, &msg.Route, &from, msg) {
		log.Debugf("No route toward %s for direct %016x",
			msg.Dest.Short(), msg.Route.Corr)
	}
}

func (r *Router) deliverDirect(from flid.ID, msg *wire.MsgDirect) {
	payload, err := msg.Payload.Decode(wire.ProtocolVersion)
	if err != nil {
		log.Debugf("Dropping direct with malformed %s payload from %s: %v",
			msg.Payload.Cmd, from.Short(), err)
		return
	}
	if r.cfg.Deliver == nil {
		return
	}
	r.cfg.Deliver(Delivery{
		Kind:   DeliverDirect,
		From:   from,
		Origin: msg.Route.Origin,
		Corr:   msg.Route.Corr,
		Msg:    payload,
	})
}

func (r *Router) handleBroadcast(from flid.ID, msg *wire.MsgBroadcast) {
	if r.alreadyRouted(&msg.Origin, msg.Corr, wire.CmdBroadcast) {
		log.Debugf("Dropping duplicate broadcast %016x from %s",
			msg.Corr, from.Short())
		return
	}

	payload, err := msg.Payload.Decode(wire.ProtocolVersion)
	if err != nil {
		log.Debugf("Dropping broadcast with malformed %s payload from %s: %v",
			msg.Payload.Cmd, from.Short(), err)
		return
	}
	if r.cfg.Deliver == nil {
		return
	}
	r.cfg.Deliver(Delivery{
		Kind:   DeliverBroadcast,
		From:   from,
		Origin: msg.Origin,
		Corr:   msg.Corr,
		Msg:    payload,
	})
}

func (r *Router) handleNeighborBroadcast(from flid.ID, msg *wire.MsgNeighborBroadcast) {
	if r.alreadyRouted(&msg.Origin, msg.Corr, wire.CmdNeighborBroadcast) {
		log.Debugf("Dropping duplicate nbbroadcast %016x from %s",
			msg.Corr, from.Short())
		return
	}

	payload, err := msg.Payload.Decode(wire.ProtocolVersion)
	if err != nil {
		log.Debugf("Dropping nbbroadcast with malformed %s payload from %s: %v",
			msg.Payload.Cmd, from.Short(), err)
		return
	}
	if r.cfg.Deliver == nil {
		return
	}
	r.cfg.Deliver(Delivery{
		Kind:   DeliverNeighborQuery,
		From:   from,
		Origin: msg.Origin,
		Corr:   msg.Corr,
		Msg:    payload,
	})
}

// handleNeighborReply records one neighbor's answer to an outstanding
// query and reports the aggregate once every queried neighbor answered.
func (r *Router) handleNeighborReply(from flid.ID, msg *wire.MsgNeighborReply) {
	req, ok := r.pending[msg.Corr]
	if !ok || req.kind != pendingNeighbor {
		log.Debugf("Ignoring unsolicited nbreply %016x from %s",
			msg.Corr, from.Short())
		return
	}
	for _, pr := range req.replies {
		if pr.From == msg.Origin {
			return
		}
	}
	payload, err := msg.Payload.Decode(wire.ProtocolVersion)
	if err != nil {
		log.Debugf("Dropping nbreply with malformed %s payload from %s: %v",
			msg.Payload.Cmd, from.Short(), err)
		return
	}

	req.replies = append(req.replies, PeerReply{From: msg.Origin, Msg: payload})
	if len(req.replies) < req.want {
		return
	}
	delete(r.pending, msg.Corr)
	if r.cfg.NeighborReplies != nil {
		r.cfg.NeighborReplies(msg.Corr, req.replies)
	}
}

// handleLookup starts a payload-free closest walk.  A walk that cannot
// leave the local node completes immediately with the local view.
func (r *Router) handleLookup(target flid.ID, corr uint64) {
	r.alreadyRouted(&r.cfg.Self, corr, wire.CmdFindClosest)

	// The pending entry is registered before the first hop goes out since
	// the reply can arrive while the send is still running.
	r.pending[corr] = &pendingReq{
		kind:     pendingLookup,
		target:   target,
		deadline: r.cfg.Now().Add(r.cfg.PendingTimeout),
	}

	msg := wire.NewMsgFindClosest(&r.cfg.Self, &target, corr,
		r.cfg.HopBudget, uint8(r.cfg.K))
	cands := r.walkCandidates(&msg.Route, target, nil)
	if len(cands) == 0 || !r.forwardRouted(cands, &msg.Route, msg) {
		r.completeLookup(corr, target, r.closestKnown(target, r.cfg.K), "local")
	}
}

// handleSendClosest starts a closest walk carrying a payload.  The local
// node already had its look at the payload before originating the walk,
// so a walk that cannot leave ends quietly.
func (r *Router) handleSendClosest(target flid.ID, corr uint64, payload wire.TaggedPayload) {
	r.alreadyRouted(&r.cfg.Self, corr, wire.CmdFindClosest)

	msg := wire.NewMsgFindClosest(&r.cfg.Self, &target, corr,
		r.cfg.HopBudget, uint8(r.cfg.K))
	msg.Payload = payload
	cands := r.walkCandidates(&msg.Route, target, nil)
	if len(cands) == 0 || !r.forwardRouted(cands, &msg.Route, msg) {
		log.Debugf("Walk %016x with %s payload ends at origin", corr, payload.Cmd)
	}
}

// handleContinueClosest resumes a walk handed up in a delivery, with the
// remaining budget and visited set the walk arrived under.
func (r *Router) handleContinueClosest(env Envelope, payload wire.TaggedPayload) {
	msg := &wire.MsgFindClosest{
		Route:   env.Route,
		Target:  env.Target,
		K:       env.K,
		Payload: payload,
	}
	if msg.Route.HopBudget == 0 {
		return
	}
	cands := r.walkCandidates(&msg.Route, env.Target, nil)
	if len(cands) == 0 || !r.forwardRouted(cands, &msg.Route, msg) {
		log.Debugf("Walk %016x with %s payload ends here",
			env.Route.Corr, payload.Cmd)
	}
}

func (r *Router) handleSendDirect(dest flid.ID, corr uint64, payload wire.TaggedPayload) {
	r.alreadyRouted(&r.cfg.Self, corr, wire.CmdDirect)

	msg := wire.NewMsgDirect(&r.cfg.Self, &dest, corr, r.cfg.HopBudget, payload)
	if dest == r.cfg.Self {
		r.deliverDirect(r.cfg.Self, msg)
		return
	}
	if !r.forwardToward(dest, &msg.Route, nil, msg) {
		log.Debugf("No route toward %s for direct %016x", dest.Short(), corr)
	}
}

func (r *Router) handleBroadcastOut(corr uint64, payload wire.TaggedPayload) {
	if r.cfg.Neighbors == nil {
		return
	}
	r.alreadyRouted(&r.cfg.Self, corr, wire.CmdBroadcast)

	msg := wire.NewMsgBroadcast(&r.cfg.Self, corr, payload)
	for _, id := range r.cfg.Neighbors() {
		err := r.cfg.Send(id, msg)
		if err != nil {
			log.Debugf("Broadcast send to %s failed: %v", id.Short(), err)
		}
	}
}

// handleNeighborQuery sends the query to every connected neighbor and
// waits for as many replies as sends went through.  With nobody to ask the
// query completes empty right away.
func (r *Router) handleNeighborQuery(corr uint64, payload wire.TaggedPayload) {
	r.alreadyRouted(&r.cfg.Self, corr, wire.CmdNeighborBroadcast)

	// The entry starts with an unreachable reply count since replies can
	// arrive while the sends are still running.  The real count is set
	// once the sends are done.
	req := &pendingReq{
		kind:     pendingNeighbor,
		deadline: r.cfg.Now().Add(r.cfg.PendingTimeout),
		want:     math.MaxInt,
	}
	r.pending[corr] = req

	var want int
	if r.cfg.Neighbors != nil {
		msg := wire.NewMsgNeighborBroadcast(&r.cfg.Self, corr, payload)
		for _, id := range r.cfg.Neighbors() {
			err := r.cfg.Send(id, msg)
			if err != nil {
				log.Debugf("Neighbor query send to %s failed: %v", id.Short(), err)
				continue
			}
			want++
		}
	}
	if want == 0 {
		delete(r.pending, corr)
		if r.cfg.NeighborReplies != nil {
			r.cfg.NeighborReplies(corr, nil)
		}
		return
	}
	req.want = want
	if len(req.replies) >= want {
		delete(r.pending, corr)
		if r.cfg.NeighborReplies != nil {
			r.cfg.NeighborReplies(corr, req.replies)
		}
	}
}

func (r *Router) handleReplyNeighbor(to flid.ID, corr uint64, payload wire.TaggedPayload) {
	msg := wire.NewMsgNeighborReply(&r.cfg.Self, corr, payload)
	err := r.cfg.Send(to, msg)
	if err != nil {
		log.Debugf("Neighbor reply send to %s failed: %v", to.Short(), err)
	}
}

// handleTick expires overdue probes and pending requests and, once per
// maintenance interval, runs a routing table maintenance pass and writes
// the snapshot.
func (r *Router) handleTick() {
	now := r.cfg.Now()

	for nonce, rec := range r.probes {
		if now.Before(rec.deadline) {
			continue
		}
		delete(r.probes, nonce)
		r.table.ProbeFailed(rec.id)
	}

	for corr, req := range r.pending {
		if now.Before(req.deadline) {
			continue
		}
		delete(r.pending, corr)
		switch req.kind {
		case pendingLookup:
			log.Debugf("Lookup %016x for %s timed out", corr, req.target.Short())
			if r.cfg.LookupDone != nil {
				r.cfg.LookupDone(corr, req.target, nil)
			}
		case pendingNeighbor:
			log.Debugf("Neighbor query %016x timed out with %d of %d replies",
				corr, len(req.replies), req.want)
			if r.cfg.NeighborReplies != nil {
				r.cfg.NeighborReplies(corr, req.replies)
			}
		}
	}

	if now.Sub(r.lastMaintenance) < r.cfg.MaintenanceInterval {
		return
	}
	r.lastMaintenance = now

	m := r.table.TickMaintenance()
	for _, id := range m.PingWants {
		err := r.cfg.Send(id, wire.NewMsgPing(rand.Uint64()))
		if err != nil {
			log.Debugf("Maintenance ping to %s failed: %v", id.Short(), err)
		}
	}
	for _, id := range m.Evicted {
		log.Debugf("Dropped unresponsive node %s", id.Short())
	}

	if r.cfg.SnapshotPath != "" {
		err := r.table.SaveSnapshot(r.cfg.SnapshotPath)
		if err != nil {
			log.Errorf("Failed to save routing table snapshot: %v", err)
		}
	}
}
