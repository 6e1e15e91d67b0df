// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"sync"
	"time"

	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/kademlia"
	"github.com/ineiti/fledger/wire"
)

const (
	// DefaultHopBudget is the default number of hops a routed message may
	// take before it is dropped.
	DefaultHopBudget = 20

	// DefaultK is the default number of closest nodes consulted per hop of
	// a walk and returned by lookups.
	DefaultK = 20

	// DefaultProbeTimeout is the default duration after which an
	// unanswered liveness check counts as failed.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultPendingTimeout is the default duration after which an
	// outstanding lookup or neighbor query completes with whatever replies
	// arrived.
	DefaultPendingTimeout = 10 * time.Second

	// DefaultSweepInterval is the default interval between timeout sweeps
	// of the pending request and probe tables.
	DefaultSweepInterval = time.Second

	// DefaultMaintenanceInterval is the default interval between routing
	// table maintenance passes and snapshot writes.
	DefaultMaintenanceInterval = time.Minute

	// maxRecentRequests specifies the maximum number of recently routed
	// request keys to track, and recentRequestsFPRate is the false
	// positive rate for the APBF tracking them.  A routed message whose
	// origin, correlation nonce, and command were already seen is dropped
	// as a duplicate, so the rate is set low enough that dropping a
	// legitimate request is vanishingly unlikely.
	maxRecentRequests    = 10000
	recentRequestsFPRate = 0.000001

	// msgChanBufferSize is the buffer size of the event channel.
	msgChanBufferSize = 512
)

// DeliveryKind identifies which delivery primitive handed an embedded
// payload up to the storage layer.
type DeliveryKind uint8

const (
	// DeliverClosest is a hop of a closest walk.  The delivery carries the
	// walk envelope so the receiver can resume the walk.
	DeliverClosest DeliveryKind = iota

	// DeliverDirect is an exact-destination delivery addressed to the
	// local node.
	DeliverDirect

	// DeliverBroadcast is a one-hop broadcast from a directly connected
	// neighbor.  No reply is expected.
	DeliverBroadcast

	// DeliverNeighborQuery is a one-hop broadcast from a directly
	// connected neighbor that expects a reply through ReplyNeighbor.
	DeliverNeighborQuery
)

// String returns the delivery kind as a human-readable string.
func (k DeliveryKind) String() string {
	switch k {
	case DeliverClosest:
		return "closest"
	case DeliverDirect:
		return "direct"
	case DeliverBroadcast:
		return "broadcast"
	case DeliverNeighborQuery:
		return "neighborquery"
	}
	return "unknown"
}

// Envelope carries the forwarding state of an in-flight closest walk so the
// receiver of a delivery can resume the walk through ContinueClosest after
// inspecting the payload.
type Envelope struct {
	Route  wire.RouteInfo
	Target flid.ID
	K      uint8
}

// Delivery is an embedded payload handed up by the router together with the
// routing context it arrived under.
type Delivery struct {
	// Kind identifies the primitive that delivered the payload.
	Kind DeliveryKind

	// From is the directly connected peer the message arrived from.
	From flid.ID

	// Origin is the node the request originated at and Corr is the
	// correlation nonce it chose, echoed in replies so the origin can
	// match them to the request.
	Origin flid.ID
	Corr   uint64

	// Msg is the decoded embedded message.
	Msg wire.Message

	// Env is the walk state for DeliverClosest deliveries and Terminal
	// reports whether the walk ends at the local node, either because no
	// known unvisited node is closer to the target or because the hop
	// budget ran out.
	Env      Envelope
	Terminal bool
}

// PeerReply is one neighbor's answer collected by a neighbor query.
type PeerReply struct {
	From flid.ID
	Msg  wire.Message
}

// Config is the configuration for the message router.
//
// The Deliver, LookupDone, and NeighborReplies callbacks are invoked from
// the router's event goroutine and must not block.  Receivers that do real
// work should hand the value off to their own goroutine.
type Config struct {
	// Self is the local node identifier.
	Self flid.ID

	// Send delivers a message to a directly connected peer.  An error
	// means the peer is not reachable right now.
	Send func(to flid.ID, msg wire.Message) error

	// Neighbors returns the identifiers of the currently connected peers.
	// Broadcasts go to exactly this set.
	Neighbors func() []flid.ID

	// Deliver hands an embedded payload up to the storage layer.  When nil
	// the router forwards closest walk payloads on its own and drops the
	// other delivery kinds.
	Deliver func(d Delivery)

	// LookupDone reports the outcome of a lookup started through Lookup.
	// The closest list is nil when the lookup timed out without any reply.
	LookupDone func(corr uint64, target flid.ID, closest []flid.ID)

	// NeighborReplies reports the aggregated replies of a neighbor query
	// once every queried neighbor answered or the query timed out.
	NeighborReplies func(corr uint64, replies []PeerReply)

	// K is the number of closest nodes consulted per hop and returned by
	// lookups.  It defaults to DefaultK when zero and is capped at the
	// wire limit for closest replies.
	K int

	// HopBudget is the hop budget given to routed messages originated by
	// this node.  It defaults to DefaultHopBudget when zero.
	HopBudget uint8

	// TableK, PingInterval, and StaleTimeout configure the owned routing
	// table, with the kademlia package defaults applying when zero.
	TableK       int
	PingInterval time.Duration
	StaleTimeout time.Duration

	// ProbeTimeout is the duration after which an unanswered liveness
	// check counts as failed.  It defaults to DefaultProbeTimeout when
	// zero.
	ProbeTimeout time.Duration

	// PendingTimeout is the duration after which an outstanding lookup or
	// neighbor query completes with what it has.  It defaults to
	// DefaultPendingTimeout when zero.
	PendingTimeout time.Duration

	// SweepInterval is the interval between timeout sweeps.  It defaults
	// to DefaultSweepInterval when zero.
	SweepInterval time.Duration

	// MaintenanceInterval is the interval between routing table
	// maintenance passes and snapshot writes.  It defaults to
	// DefaultMaintenanceInterval when zero.
	MaintenanceInterval time.Duration

	// SnapshotPath is the file the routing table is persisted to.  An
	// empty path disables persistence.
	SnapshotPath string

	// Now returns the current time.  It defaults to time.Now when nil.
	Now func() time.Time
}

// pendingKind identifies what an entry of the pending request table is
// waiting for.
type pendingKind uint8

const (
	pendingLookup pendingKind = iota
	pendingNeighbor
)

// pendingReq is one outstanding request originated by the local node.
type pendingReq struct {
	kind     pendingKind
	target   flid.ID
	deadline time.Time
	want     int
	replies  []PeerReply
}

// proberec is one outstanding liveness check issued for the routing table's
// probe before evict policy.
type proberec struct {
	id       flid.ID
	deadline time.Time
}

// Router implements the three delivery primitives over the routing table
// and a one-hop send capability.  All state is owned by the event goroutine
// started by Run; the exported methods hand work to it and are safe for
// concurrent use.
type Router struct {
	cfg   Config
	table *kademlia.Table

	// seen tracks recently routed request keys so duplicated or looped
	// envelopes are dropped.
	seen *apbf.Filter

	// pending tracks lookups and neighbor queries originated by the local
	// node, keyed by correlation nonce.
	pending map[uint64]*pendingReq

	// probes tracks outstanding liveness checks keyed by ping nonce.
	probes map[uint64]proberec

	lastMaintenance time.Time

	msgChan chan interface{}
	quit    chan struct{}
}

// Message types posted to the event channel.
type (
	peerConnectedMsg    struct{ id flid.ID }
	peerDisconnectedMsg struct{ id flid.ID }
	inboundMsg          struct {
		from flid.ID
		msg  wire.Message
	}
	lookupMsg struct {
		target flid.ID
		corr   uint64
	}
	sendClosestMsg struct {
		target  flid.ID
		corr    uint64
		payload wire.TaggedPayload
	}
	continueClosestMsg struct {
		env     Envelope
		payload wire.TaggedPayload
	}
	sendDirectMsg struct {
		dest    flid.ID
		corr    uint64
		payload wire.TaggedPayload
	}
	broadcastMsg struct {
		corr    uint64
		payload wire.TaggedPayload
	}
	neighborQueryMsg struct {
		corr    uint64
		payload wire.TaggedPayload
	}
	replyNeighborMsg struct {
		to      flid.ID
		corr    uint64
		payload wire.TaggedPayload
	}
	knownNodesMsg struct{ reply chan []flid.ID }
	tickMsg       struct{}
)

// New returns a message router for the provided configuration.  The routing
// table snapshot is loaded right away when a snapshot path is configured so
// the node does not come up with an empty view.
func New(cfg *Config) *Router {
	c := *cfg
	if c.K <= 0 {
		c.K = DefaultK
	}
	if c.K > wire.MaxClosestReplyNodes {
		c.K = wire.MaxClosestReplyNodes
	}
	if c.HopBudget == 0 {
		c.HopBudget = DefaultHopBudget
	}
	if c.HopBudget > wire.MaxHopBudget {
		c.HopBudget = wire.MaxHopBudget
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = DefaultPendingTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	table := kademlia.New(kademlia.Config{
		Self:         c.Self,
		K:            c.TableK,
		PingInterval: c.PingInterval,
		StaleTimeout: c.StaleTimeout,
		Now:          c.Now,
	})
	if c.SnapshotPath != "" {
		err := table.LoadSnapshot(c.SnapshotPath)
		if err != nil {
			log.Errorf("Failed to load routing table snapshot: %v", err)
		}
	}

	return &Router{
		cfg:             c,
		table:           table,
		seen:            apbf.NewFilter(maxRecentRequests, recentRequestsFPRate),
		pending:         make(map[uint64]*pendingReq),
		probes:          make(map[uint64]proberec),
		lastMaintenance: c.Now(),
		msgChan:         make(chan interface{}, msgChanBufferSize),
		quit:            make(chan struct{}),
	}
}

// Run starts the event goroutine and blocks until the passed context is
// cancelled.  The routing table snapshot is written on the way out.
func (r *Router) Run(ctx context.Context) {
	log.Trace("Starting message router")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		r.eventHandler(ctx)
		wg.Done()
	}()

	<-ctx.Done()
	close(r.quit)
	wg.Wait()
	log.Trace("Message router stopped")
}

// post hands an event to the event goroutine unless the router has shut
// down.
func (r *Router) post(m interface{}) {
	select {
	case r.msgChan <- m:
	case <-r.quit:
	}
}

// PeerConnected informs the router of a newly established connection.  The
// peer is recorded in the routing table.
func (r *Router) PeerConnected(id flid.ID) {
	r.post(&peerConnectedMsg{id: id})
}

// PeerDisconnected informs the router of a hard disconnect.  The peer is
// removed from the routing table without a liveness check.
func (r *Router) PeerDisconnected(id flid.ID) {
	r.post(&peerDisconnectedMsg{id: id})
}

// Message hands an inbound wire message from a directly connected peer to
// the router.
func (r *Router) Message(from flid.ID, msg wire.Message) {
	r.post(&inboundMsg{from: from, msg: msg})
}

// Lookup starts a closest walk for the target without a payload and returns
// the correlation nonce identifying it.  The outcome arrives through the
// LookupDone callback: the closest nodes known to the terminal node of the
// walk, or nil after the pending timeout.
func (r *Router) Lookup(target flid.ID) uint64 {
	corr := rand.Uint64()
	r.post(&lookupMsg{target: target, corr: corr})
	return corr
}

// SendClosest starts a closest walk toward the target carrying the passed
// message and returns the correlation nonce the walk runs under.  The
// payload is handed to the storage layer of every node along the walk.
// Replies, if the payload calls for any, arrive as direct deliveries
// matched by the returned nonce.
func (r *Router) SendClosest(target flid.ID, payload wire.Message) (uint64, error) {
	tp, err := wire.NewTaggedPayload(payload, wire.ProtocolVersion)
	if err != nil {
		return 0, err
	}
	corr := rand.Uint64()
	r.post(&sendClosestMsg{target: target, corr: corr, payload: tp})
	return corr, nil
}

// ContinueClosest resumes a closest walk previously handed up in a
// delivery, carrying the passed message from here on.  The walk ends
// quietly when no further progress is possible.
func (r *Router) ContinueClosest(env Envelope, payload wire.Message) error {
	tp, err := wire.NewTaggedPayload(payload, wire.ProtocolVersion)
	if err != nil {
		return err
	}
	r.post(&continueClosestMsg{env: env, payload: tp})
	return nil
}

// SendDirect routes the passed message to the given destination node.
// Delivery is best effort: the message is silently dropped when the
// destination cannot be reached.  The correlation nonce is chosen by the
// caller so replies can echo the nonce of the request they answer.
func (r *Router) SendDirect(dest flid.ID, corr uint64, payload wire.Message) error {
	tp, err := wire.NewTaggedPayload(payload, wire.ProtocolVersion)
	if err != nil {
		return err
	}
	r.post(&sendDirectMsg{dest: dest, corr: corr, payload: tp})
	return nil
}

// Broadcast delivers the passed message to every directly connected
// neighbor in a single hop.  Receivers do not forward it further and send
// no replies.
func (r *Router) Broadcast(payload wire.Message) error {
	tp, err := wire.NewTaggedPayload(payload, wire.ProtocolVersion)
	if err != nil {
		return err
	}
	r.post(&broadcastMsg{corr: rand.Uint64(), payload: tp})
	return nil
}

// NeighborQuery delivers the passed message to every directly connected
// neighbor and collects their replies.  The aggregated replies arrive
// through the NeighborReplies callback once every queried neighbor answered
// or the pending timeout passed.
func (r *Router) NeighborQuery(payload wire.Message) (uint64, error) {
	tp, err := wire.NewTaggedPayload(payload, wire.ProtocolVersion)
	if err != nil {
		return 0, err
	}
	corr := rand.Uint64()
	r.post(&neighborQueryMsg{corr: corr, payload: tp})
	return corr, nil
}

// ReplyNeighbor answers a neighbor query delivered with kind
// DeliverNeighborQuery.  The reply goes one hop back to the querying peer
// under the query's correlation nonce.
func (r *Router) ReplyNeighbor(to flid.ID, corr uint64, payload wire.Message) error {
	tp, err := wire.NewTaggedPayload(payload, wire.ProtocolVersion)
	if err != nil {
		return err
	}
	r.post(&replyNeighborMsg{to: to, corr: corr, payload: tp})
	return nil
}

// KnownNodes returns the identifiers of all confirmed routing table
// records.
func (r *Router) KnownNodes() []flid.ID {
	reply := make(chan []flid.ID, 1)
	r.post(&knownNodesMsg{reply: reply})
	select {
	case nodes := <-reply:
		return nodes
	case <-r.quit:
		return nil
	}
}

// TickMaintenance triggers a timeout sweep and, when one is due, a routing
// table maintenance pass.  The event goroutine runs the same tick on its
// own at the sweep interval.
func (r *Router) TickMaintenance() {
	r.post(tickMsg{})
}
