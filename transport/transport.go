// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

const (
	// maxRetryDuration is the max duration of time retrying of a permanent
	// connection request is allowed to grow to.  This is necessary since
	// the retry logic uses a backoff mechanism which increases the
	// interval base times the number of retries that have been done.
	maxRetryDuration = time.Minute * 5

	// defaultRetryDuration is the default duration of time for retrying
	// permanent connection requests.
	defaultRetryDuration = time.Second * 5
)

// ConnState represents the state of the requested connection.
type ConnState uint8

// ConnState can be either pending, established, disconnected or failing.
// When a new connection is requested, it is attempted and categorized as
// established or failed depending on the connection result.  An established
// connection which was disconnected is categorized as disconnected.
const (
	ConnPending ConnState = iota
	ConnFailing
	ConnCanceled
	ConnEstablished
	ConnDisconnected
)

// ConnReq is the connection request to an address.  If permanent, the
// connection will be retried on disconnection with a backoff that grows with
// the number of retries.
type ConnReq struct {
	// The following variables must only be used atomically.
	id uint64

	// Addr is the address to connect to.
	Addr string

	// Permanent indicates the connection should be retried with a growing
	// backoff when it fails or disconnects.
	Permanent bool

	stateMtx   sync.RWMutex
	state      ConnState
	retryCount uint32
}

// updateState updates the state of the connection request.
func (c *ConnReq) updateState(state ConnState) {
	c.stateMtx.Lock()
	c.state = state
	c.stateMtx.Unlock()
}

// ID returns a unique identifier for this connection request.
func (c *ConnReq) ID() uint64 {
	return atomic.LoadUint64(&c.id)
}

// State is the connection state of the requested connection.
func (c *ConnReq) State() ConnState {
	c.stateMtx.RLock()
	state := c.state
	c.stateMtx.RUnlock()
	return state
}

// String returns a human-readable string for the connection request.
func (c *ConnReq) String() string {
	if c.Addr == "" {
		return fmt.Sprintf("reqid %d", atomic.LoadUint64(&c.id))
	}
	return fmt.Sprintf("%s (reqid %d)", c.Addr, atomic.LoadUint64(&c.id))
}

// Config holds the configuration options related to the transport.
type Config struct {
	// Self is the identifier this node advertises during the hello
	// exchange.
	Self flid.ID

	// Net is the overlay network all connections must speak.
	Net wire.OverlayNet

	// UserAgentName and UserAgentVersion identify the node software in
	// hello messages, with UserAgentComments appended in parentheses.
	UserAgentName     string
	UserAgentVersion  string
	UserAgentComments []string

	// Listeners defines a slice of listeners for which the transport owns
	// the responsibility of accepting inbound connections and running the
	// hello exchange on them.  The transport closes them on shutdown.
	Listeners []net.Listener

	// Dial connects to the address on the named network.  It cannot be
	// nil and allows the caller to route connections through a proxy.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// DialTimeout is the maximum amount of time a dial is allowed to
	// take before it is considered failed.  No timeout is applied when
	// zero.
	DialTimeout time.Duration

	// RetryDuration is the base duration between retries of permanent
	// connection requests.  Defaults to defaultRetryDuration when zero.
	RetryDuration time.Duration

	// MaxInbound is the number of inbound peers allowed at once.  Zero
	// means no limit.
	MaxInbound int

	// OnConnected is invoked when a peer completes the hello exchange and
	// is registered under its node identifier.
	OnConnected func(p *Peer)

	// OnDisconnected is invoked when a registered peer disconnects.  It
	// is invoked after the peer was removed from the registry, so sends
	// to its node fail by then.
	OnDisconnected func(p *Peer)

	// OnMessage is invoked for every message received from a registered
	// peer after the hello exchange.  It cannot be nil.
	OnMessage func(p *Peer, msg wire.Message)
}

// registerPending is used to register a pending connection attempt so that
// it can be canceled later.
type registerPending struct {
	c    *ConnReq
	done chan struct{}
}

// handleConnected is used to queue a successful connection whose hello
// exchange completed.
type handleConnected struct {
	c    *ConnReq
	peer *Peer
}

// handleDisconnected is used to remove a connection.
type handleDisconnected struct {
	id    uint64
	retry bool
}

// handleFailed is used to remove a pending connection attempt that failed.
type handleFailed struct {
	c   *ConnReq
	err error
}

// Transport maintains the set of identified connections of the local node.
// It dials outbound connection requests, accepts inbound connections from
// its listeners, runs the hello exchange on every connection, and registers
// the resulting peers by their node identifier.
type Transport struct {
	// The following variables must only be used atomically.
	connReqCount uint64
	inboundCount int32

	cfg      Config
	wg       sync.WaitGroup
	requests chan interface{}
	quit     chan struct{}

	peersMtx sync.RWMutex
	peers    map[flid.ID]*Peer
}

// handleFailedConn handles a connection failed due to a disconnect or any
// other failure.  If permanent, it retries the connection after a backoff
// duration that grows with the number of retries up to a maximum.
func (t *Transport) handleFailedConn(ctx context.Context, c *ConnReq) {
	// Ignore during shutdown.
	if ctx.Err() != nil {
		return
	}
	if !c.Permanent {
		return
	}

	c.retryCount++
	d := time.Duration(c.retryCount) * t.cfg.RetryDuration
	if d > maxRetryDuration {
		d = maxRetryDuration
	}
	log.Debugf("Retrying connection to %v in %v", c, d)
	time.AfterFunc(d, func() {
		t.connect(ctx, c)
	})
}

// connHandler handles all connection related requests.  It must be run as a
// goroutine.
//
// Connection requests are processed and mapped by their assigned ids.
func (t *Transport) connHandler(ctx context.Context) {
	var (
		// pending holds all registered conn requests that have yet to
		// succeed.
		pending = make(map[uint64]*ConnReq)

		// conns represents the set of all established outbound
		// connections.
		conns = make(map[uint64]*ConnReq)
	)

out:
	for {
		select {
		case req := <-t.requests:
			switch msg := req.(type) {
			case registerPending:
				connReq := msg.c
				connReq.updateState(ConnPending)
				pending[connReq.id] = connReq
				close(msg.done)

			case handleConnected:
				connReq := msg.c
				if _, ok := pending[connReq.id]; !ok {
					if msg.peer != nil {
						msg.peer.Disconnect()
					}
					log.Debugf("Ignoring connection for "+
						"canceled connreq=%v", connReq)
					continue
				}

				// Register the identified peer, treating a node
				// the transport is already connected to as a
				// failed attempt so the request backs off while
				// the existing connection lives.
				msg.peer.connReq = connReq
				if !t.registerPeer(msg.peer) {
					msg.peer.Disconnect()
					connReq.updateState(ConnFailing)
					log.Debugf("Already connected to node %s "+
						"via %v", msg.peer.ID(), connReq)
					if !connReq.Permanent {
						delete(pending, connReq.id)
						continue
					}
					t.handleFailedConn(ctx, connReq)
					continue
				}

				connReq.updateState(ConnEstablished)
				conns[connReq.id] = connReq
				log.Debugf("Connected to %v", connReq)
				connReq.retryCount = 0
				delete(pending, connReq.id)

				t.wg.Add(1)
				go func(p *Peer) {
					defer t.wg.Done()
					if t.cfg.OnConnected != nil {
						t.cfg.OnConnected(p)
					}
					t.monitorPeer(p)
				}(msg.peer)

			case handleDisconnected:
				connReq, ok := conns[msg.id]
				if !ok {
					connReq, ok = pending[msg.id]
					if !ok {
						log.Errorf("Unknown connid=%d", msg.id)
						continue
					}

					// Pending connection was found, remove it
					// from the pending map so a later,
					// successful connection is ignored.
					connReq.updateState(ConnCanceled)
					log.Debugf("Canceling: %v", connReq)
					delete(pending, msg.id)
					continue
				}

				// The peer registry entry and the disconnection
				// callback were already handled by the peer
				// monitor by the time this arrives.
				log.Debugf("Disconnected from %v", connReq)
				delete(conns, msg.id)

				// Attempt a reconnection when the request is
				// permanent and was not canceled by a drop.
				if msg.retry && connReq.Permanent &&
					connReq.State() != ConnCanceled {

					connReq.updateState(ConnPending)
					log.Debugf("Reconnecting to %v", connReq)
					pending[msg.id] = connReq
					t.handleFailedConn(ctx, connReq)
				} else {
					connReq.updateState(ConnDisconnected)
				}

			case handleFailed:
				connReq := msg.c
				if _, ok := pending[connReq.id]; !ok {
					log.Debugf("Ignoring connection for "+
						"canceled conn req: %v", connReq)
					continue
				}

				connReq.updateState(ConnFailing)
				log.Debugf("Failed to connect to %v: %v",
					connReq, msg.err)

				// A connection of the node to itself can never
				// succeed, so drop the request rather than
				// retrying it.
				if errors.Is(msg.err, ErrSelfConnection) {
					log.Infof("Refusing to retry connection "+
						"to self at %v", connReq.Addr)
					connReq.updateState(ConnCanceled)
					delete(pending, connReq.id)
					continue
				}

				if !connReq.Permanent {
					delete(pending, connReq.id)
					continue
				}
				t.handleFailedConn(ctx, connReq)
			}

		case <-ctx.Done():
			break out
		}
	}

	t.wg.Done()
	log.Trace("Connection handler done")
}

// registerPeer adds a peer that completed the hello exchange to the peer
// registry.  It returns false when another connection to the same node is
// already registered.
func (t *Transport) registerPeer(p *Peer) bool {
	id := p.ID()
	t.peersMtx.Lock()
	defer t.peersMtx.Unlock()
	if _, ok := t.peers[id]; ok {
		return false
	}
	t.peers[id] = p
	return true
}

// unregisterPeer removes the peer from the registry if it still is the
// registered connection for its node.
func (t *Transport) unregisterPeer(p *Peer) {
	id := p.ID()
	t.peersMtx.Lock()
	if t.peers[id] == p {
		delete(t.peers, id)
	}
	t.peersMtx.Unlock()
}

// monitorPeer waits for the peer to disconnect, removes it from the
// registry, invokes the disconnection callback, and notifies the connection
// handler so permanent connection requests are retried.
func (t *Transport) monitorPeer(p *Peer) {
	p.WaitForDisconnect()
	t.unregisterPeer(p)
	if p.inbound {
		atomic.AddInt32(&t.inboundCount, -1)
	}
	log.Debugf("Lost peer %s (%s)", p.ID(), p)

	if t.cfg.OnDisconnected != nil {
		t.cfg.OnDisconnected(p)
	}

	if c := p.connReq; c != nil {
		select {
		case t.requests <- handleDisconnected{c.ID(), true}:
		case <-t.quit:
		}
	}
}

// connect attempts the given connection request, running the hello exchange
// on top of a successful dial.
//
// The connection attempt runs in the calling goroutine, so run it as its own
// goroutine unless blocking until the attempt resolved is wanted.
func (t *Transport) connect(ctx context.Context, c *ConnReq) {
	// Ignore during shutdown.
	select {
	case <-t.quit:
		return
	default:
	}
	if ctx.Err() != nil {
		return
	}

	// During the time spent waiting for a retry the request may have been
	// canceled.
	if c.State() == ConnCanceled {
		log.Debugf("Ignoring connect for canceled connreq=%v", c)
		return
	}

	if atomic.LoadUint64(&c.id) == 0 {
		atomic.StoreUint64(&c.id, atomic.AddUint64(&t.connReqCount, 1))

		// Submit a request of a pending connection attempt to the
		// connection handler.  By registering the id before the
		// connection is even established, it can be canceled later.
		done := make(chan struct{})
		select {
		case t.requests <- registerPending{c, done}:
		case <-t.quit:
			return
		}

		// Wait for the registration to successfully add the pending
		// conn req to the connection handler's internal state.
		select {
		case <-done:
		case <-t.quit:
			return
		}
	}

	log.Debugf("Attempting to connect to %v", c)

	dialCtx := ctx
	if t.cfg.DialTimeout != 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := t.cfg.Dial(dialCtx, "tcp", c.Addr)
	if err != nil {
		select {
		case t.requests <- handleFailed{c, err}:
		case <-t.quit:
		}
		return
	}

	// Run the hello exchange before the connection counts.
	peer := newPeer(t, conn, c.Addr, false)
	if err := peer.start(); err != nil {
		log.Debugf("Hello exchange with %v failed: %v", c, err)
		select {
		case t.requests <- handleFailed{c, err}:
		case <-t.quit:
		}
		return
	}

	select {
	case t.requests <- handleConnected{c, peer}:
	case <-t.quit:
		peer.Disconnect()
	}
}

// Connect establishes an outbound connection to the given address.  The
// dial and hello exchange happen asynchronously with failures logged, and
// permanent connection requests are retried with a growing backoff.
func (t *Transport) Connect(ctx context.Context, addr string, permanent bool) error {
	select {
	case <-t.quit:
		return transportError(ErrStopped, "transport is stopped")
	default:
	}

	c := &ConnReq{Addr: addr, Permanent: permanent}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.connect(ctx, c)
	}()
	return nil
}

// DropPeer disconnects the identified peer and cancels any further retries
// of the connection request that produced it.
func (t *Transport) DropPeer(id flid.ID) error {
	t.peersMtx.RLock()
	p := t.peers[id]
	t.peersMtx.RUnlock()
	if p == nil {
		str := fmt.Sprintf("no connected peer %s", id)
		return transportError(ErrPeerNotFound, str)
	}

	if c := p.connReq; c != nil {
		c.updateState(ConnCanceled)
	}
	p.Disconnect()
	return nil
}

// Send delivers the given message to the identified node over its registered
// connection.  An error means the node is not connected right now or its
// connection is being dropped.
func (t *Transport) Send(to flid.ID, msg wire.Message) error {
	t.peersMtx.RLock()
	p := t.peers[to]
	t.peersMtx.RUnlock()
	if p == nil {
		str := fmt.Sprintf("no connected peer %s", to)
		return transportError(ErrPeerNotFound, str)
	}
	return p.queueMessage(msg)
}

// Neighbors returns the node identifiers of all registered peers.
func (t *Transport) Neighbors() []flid.ID {
	t.peersMtx.RLock()
	defer t.peersMtx.RUnlock()
	ids := make([]flid.ID, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	return ids
}

// Peers returns a snapshot of all registered peers.
func (t *Transport) Peers() []*Peer {
	t.peersMtx.RLock()
	defer t.peersMtx.RUnlock()
	peers := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	return peers
}

// PeerCount returns the number of registered peers.
func (t *Transport) PeerCount() int {
	t.peersMtx.RLock()
	defer t.peersMtx.RUnlock()
	return len(t.peers)
}

// handleInbound enforces the inbound limit on an accepted connection, runs
// the hello exchange on it, and registers the resulting peer.  It must be
// run as a goroutine.
func (t *Transport) handleInbound(conn net.Conn) {
	defer t.wg.Done()

	if t.cfg.MaxInbound > 0 &&
		atomic.LoadInt32(&t.inboundCount) >= int32(t.cfg.MaxInbound) {

		log.Infof("Max inbound peers reached [%d] - disconnecting %s",
			t.cfg.MaxInbound, conn.RemoteAddr())
		conn.Close()
		return
	}
	atomic.AddInt32(&t.inboundCount, 1)

	p := newPeer(t, conn, conn.RemoteAddr().String(), true)
	if err := p.start(); err != nil {
		log.Debugf("Hello exchange with inbound peer %s failed: %v",
			conn.RemoteAddr(), err)
		atomic.AddInt32(&t.inboundCount, -1)
		return
	}

	if !t.registerPeer(p) {
		log.Debugf("Disconnecting inbound peer %s - already connected "+
			"to node %s", p, p.ID())
		p.Disconnect()
		p.WaitForDisconnect()
		atomic.AddInt32(&t.inboundCount, -1)
		return
	}

	log.Infof("New peer %s (%s)", p.ID(), p)
	if t.cfg.OnConnected != nil {
		t.cfg.OnConnected(p)
	}
	t.monitorPeer(p)
}

// listenHandler accepts incoming connections on a given listener.  It must
// be run as a goroutine.
func (t *Transport) listenHandler(ctx context.Context, listener net.Listener) {
	log.Infof("Node listening on %s", listener.Addr())
	for ctx.Err() == nil {
		conn, err := listener.Accept()
		if err != nil {
			// Only log the error if not forcibly shutting down.
			if ctx.Err() == nil {
				log.Errorf("Can't accept connection: %v", err)
			}
			continue
		}
		t.wg.Add(1)
		go t.handleInbound(conn)
	}

	t.wg.Done()
	log.Tracef("Listener handler done for %s", listener.Addr())
}

// Run starts the transport along with its configured listeners.  It blocks
// until the provided context is canceled, at which point it closes the
// listeners, disconnects all peers, and waits for the handlers to finish.
func (t *Transport) Run(ctx context.Context) {
	log.Trace("Starting transport")

	// Start the connection handler goroutine.
	t.wg.Add(1)
	go t.connHandler(ctx)

	for _, listener := range t.cfg.Listeners {
		t.wg.Add(1)
		go t.listenHandler(ctx, listener)
	}

	// Shutdown the transport when the context is canceled.
	t.wg.Add(1)
	go func() {
		<-ctx.Done()
		close(t.quit)

		// Stop all the listeners.  There will not be any listeners if
		// listening is disabled.
		for _, listener := range t.cfg.Listeners {
			// Ignore the error since this is shutdown and there is
			// no way to recover anyways.
			_ = listener.Close()
		}

		for _, p := range t.Peers() {
			p.Disconnect()
		}

		t.wg.Done()
	}()

	t.wg.Wait()
	log.Trace("Transport stopped")
}

// New returns a new transport for the given configuration.
//
// Use Run to start listening and connecting to the network.
func New(cfg *Config) (*Transport, error) {
	if cfg.Dial == nil {
		return nil, transportError(ErrDialNil, "a dial function is required")
	}

	// Default to sane values.
	finalCfg := *cfg // Copy so caller can't mutate
	if finalCfg.RetryDuration <= 0 {
		finalCfg.RetryDuration = defaultRetryDuration
	}

	t := Transport{
		cfg:      finalCfg,
		requests: make(chan interface{}),
		quit:     make(chan struct{}),
		peers:    make(map[flid.ID]*Peer),
	}
	return &t, nil
}
