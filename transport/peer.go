// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/wire"
)

const (
	// outputBufferSize is the number of elements the outgoing message
	// queue of a peer can hold before sends to it start failing.
	outputBufferSize = 50

	// idleTimeout is the duration of inactivity on the read side before
	// the peer is timed out.  The ping handler keeps a healthy link from
	// ever staying quiet this long.
	idleTimeout = 5 * time.Minute

	// pingInterval is the interval of time to wait in between sending ping
	// messages.
	pingInterval = 2 * time.Minute

	// negotiateTimeout is the duration of inactivity before a peer that
	// has not completed the hello exchange is timed out.
	negotiateTimeout = 30 * time.Second
)

// sentNonces keeps the nonces of recently sent hello messages so inbound
// connections that carry one of them back are recognized as connections of
// the node to itself.
var sentNonces = lru.NewSet[uint64](50)

// directionString is a helper function that returns a string that represents
// the direction of a connection (inbound or outbound).
func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}

// Peer is one identified connection of the transport.  After the hello
// exchange completes it provides the node identifier, user agent, and
// negotiated protocol version of the remote node along with send capability
// and connection statistics.
type Peer struct {
	// The following variables must only be used atomically.
	bytesReceived uint64
	bytesSent     uint64
	lastRecv      int64
	lastSend      int64
	disconnect    int32

	conn          net.Conn
	addr          string
	inbound       bool
	timeConnected time.Time
	t             *Transport
	connReq       *ConnReq

	// These fields are set during the hello exchange and protected by
	// flagsMtx afterwards.
	flagsMtx        sync.Mutex
	id              flid.ID
	userAgent       string
	protocolVersion uint32

	outQueue chan wire.Message
	quit     chan struct{}
	wg       sync.WaitGroup
}

// newPeer returns a new peer for the given connection in the given
// direction.  The addr is the dialed address for outbound connections, which
// can differ from the connection's remote address when dialing through a
// proxy.
func newPeer(t *Transport, conn net.Conn, addr string, inbound bool) *Peer {
	return &Peer{
		conn:            conn,
		addr:            addr,
		inbound:         inbound,
		timeConnected:   time.Now(),
		t:               t,
		protocolVersion: wire.ProtocolVersion,
		outQueue:        make(chan wire.Message, outputBufferSize),
		quit:            make(chan struct{}),
	}
}

// String returns the peer's address and directionality as a human-readable
// string.
func (p *Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.addr, directionString(p.inbound))
}

// ID returns the node identifier the remote node advertised during the hello
// exchange.
func (p *Peer) ID() flid.ID {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.id
}

// Addr returns the peer address.
func (p *Peer) Addr() string {
	return p.addr
}

// Inbound returns whether the peer is inbound.
func (p *Peer) Inbound() bool {
	return p.inbound
}

// Permanent returns whether the connection to the peer is retried when it is
// lost.  Inbound peers are never permanent.
func (p *Peer) Permanent() bool {
	return p.connReq != nil && p.connReq.Permanent
}

// UserAgent returns the user agent of the remote peer.
func (p *Peer) UserAgent() string {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.userAgent
}

// ProtocolVersion returns the negotiated protocol version of the peer.
func (p *Peer) ProtocolVersion() uint32 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.protocolVersion
}

// TimeConnected returns the time at which the peer connected.
func (p *Peer) TimeConnected() time.Time {
	return p.timeConnected
}

// LastSend returns the last send time of the peer.
func (p *Peer) LastSend() time.Time {
	return time.Unix(atomic.LoadInt64(&p.lastSend), 0)
}

// LastRecv returns the last recv time of the peer.
func (p *Peer) LastRecv() time.Time {
	return time.Unix(atomic.LoadInt64(&p.lastRecv), 0)
}

// BytesSent returns the total number of bytes sent by the peer.
func (p *Peer) BytesSent() uint64 {
	return atomic.LoadUint64(&p.bytesSent)
}

// BytesReceived returns the total number of bytes received by the peer.
func (p *Peer) BytesReceived() uint64 {
	return atomic.LoadUint64(&p.bytesReceived)
}

// readMessage reads the next wire message from the peer while keeping track
// of the receive statistics.
func (p *Peer) readMessage() (wire.Message, error) {
	n, msg, _, err := wire.ReadMessageN(p.conn, p.ProtocolVersion(), p.t.cfg.Net)
	atomic.AddUint64(&p.bytesReceived, uint64(n))
	if err != nil {
		return nil, err
	}
	atomic.StoreInt64(&p.lastRecv, time.Now().Unix())

	log.Tracef("Received %v from %s", msg.Command(), p)
	return msg, nil
}

// writeMessage sends a wire message to the peer while keeping track of the
// send statistics.
func (p *Peer) writeMessage(msg wire.Message) error {
	log.Tracef("Sending %v to %s", msg.Command(), p)

	n, err := wire.WriteMessageN(p.conn, msg, p.ProtocolVersion(), p.t.cfg.Net)
	atomic.AddUint64(&p.bytesSent, uint64(n))
	if err != nil {
		return err
	}
	atomic.StoreInt64(&p.lastSend, time.Now().Unix())
	return nil
}

// localHelloMsg creates a hello message that can be used to advertise the
// local node to the remote peer.
func (p *Peer) localHelloMsg() (*wire.MsgHello, error) {
	// Generate a unique nonce for this peer so connections of the node to
	// itself can be detected.  This is accomplished by adding it to a
	// size-limited set of recently seen nonces.
	nonce := rand.Uint64()
	sentNonces.Put(nonce)

	msg := wire.NewMsgHello(&p.t.cfg.Self, nonce)
	err := msg.AddUserAgent(p.t.cfg.UserAgentName, p.t.cfg.UserAgentVersion,
		p.t.cfg.UserAgentComments...)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// readRemoteHelloMsg waits for the next message to arrive from the remote
// peer.  If the next message is not a hello message or the hello is not
// acceptable, an error is returned.
func (p *Peer) readRemoteHelloMsg() error {
	msg, err := p.readMessage()
	if err != nil {
		return err
	}

	helloMsg, ok := msg.(*wire.MsgHello)
	if !ok {
		return transportError(ErrInvalidHandshake,
			"a hello message must precede all others")
	}

	// Detect connections of the node to itself, either through the nonce
	// of a hello this node sent recently or through the remote node
	// claiming the local identifier outright.
	if sentNonces.Contains(helloMsg.Nonce) || helloMsg.NodeID == p.t.cfg.Self {
		return transportError(ErrSelfConnection,
			"disconnecting peer connected to self")
	}

	if helloMsg.ProtocolVersion < wire.InitialProtocolVersion {
		str := fmt.Sprintf("protocol version must be %d or greater",
			wire.InitialProtocolVersion)
		return transportError(ErrProtocolVersion, str)
	}

	// Negotiate the protocol version down to whatever both sides support
	// and remember who the remote node is.
	p.flagsMtx.Lock()
	p.id = helloMsg.NodeID
	p.userAgent = helloMsg.UserAgent
	if helloMsg.ProtocolVersion < p.protocolVersion {
		p.protocolVersion = helloMsg.ProtocolVersion
	}
	pver := p.protocolVersion
	p.flagsMtx.Unlock()

	log.Debugf("Negotiated protocol version %d for peer %s", pver, p)
	return nil
}

// readRemoteHelloAckMsg waits for the next message to arrive from the remote
// peer.  If the next message is not a helloack message, an error is
// returned.
func (p *Peer) readRemoteHelloAckMsg() error {
	msg, err := p.readMessage()
	if err != nil {
		return err
	}
	if _, ok := msg.(*wire.MsgHelloAck); !ok {
		return transportError(ErrInvalidHandshake,
			"did not receive helloack as the second message")
	}
	return nil
}

// negotiateOutbound performs the hello exchange from the point of view of
// the node that initiated the connection.  The initiating node opens with
// its hello, the accepting node answers with a hello of its own, and both
// sides seal the exchange with a helloack.
func (p *Peer) negotiateOutbound() error {
	hello, err := p.localHelloMsg()
	if err != nil {
		return err
	}
	if err := p.writeMessage(hello); err != nil {
		return err
	}
	if err := p.readRemoteHelloMsg(); err != nil {
		return err
	}
	if err := p.writeMessage(wire.NewMsgHelloAck()); err != nil {
		return err
	}
	return p.readRemoteHelloAckMsg()
}

// negotiateInbound performs the hello exchange from the point of view of
// the node that accepted the connection.
func (p *Peer) negotiateInbound() error {
	if err := p.readRemoteHelloMsg(); err != nil {
		return err
	}
	hello, err := p.localHelloMsg()
	if err != nil {
		return err
	}
	if err := p.writeMessage(hello); err != nil {
		return err
	}
	if err := p.readRemoteHelloAckMsg(); err != nil {
		return err
	}
	return p.writeMessage(wire.NewMsgHelloAck())
}

// start runs the hello exchange and, on success, launches the input, output,
// and ping handlers of the peer.  The exchange as a whole is bounded by the
// negotiation timeout.
func (p *Peer) start() error {
	p.conn.SetDeadline(time.Now().Add(negotiateTimeout))

	var err error
	if p.inbound {
		err = p.negotiateInbound()
	} else {
		err = p.negotiateOutbound()
	}
	if err != nil {
		p.Disconnect()
		return err
	}
	p.conn.SetDeadline(time.Time{})

	p.wg.Add(3)
	go p.inHandler()
	go p.outHandler()
	go p.pingHandler()
	return nil
}

// inHandler handles all incoming messages for the peer.  It must be run as a
// goroutine.
func (p *Peer) inHandler() {
out:
	for atomic.LoadInt32(&p.disconnect) == 0 {
		// A healthy link carries at least the periodic pings, so going
		// idle past the timeout means the connection is dead.
		p.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		msg, err := p.readMessage()
		if err != nil {
			// Only log the error if the local node has not been
			// forcibly disconnecting the peer.
			if atomic.LoadInt32(&p.disconnect) == 0 {
				log.Debugf("Can't read message from %s: %v", p, err)
			}
			break out
		}

		switch msg.(type) {
		case *wire.MsgHello:
			// The hello exchange already completed, so a second
			// hello is a protocol violation.
			log.Debugf("Already received hello from peer %s -- "+
				"disconnecting", p)
			break out

		case *wire.MsgHelloAck:
			log.Debugf("Already received helloack from peer %s -- "+
				"disconnecting", p)
			break out

		default:
			p.t.cfg.OnMessage(p, msg)
		}
	}

	p.Disconnect()
	p.wg.Done()
	log.Tracef("Peer input handler done for %s", p)
}

// outHandler handles all outgoing messages for the peer.  It must be run as
// a goroutine.
func (p *Peer) outHandler() {
out:
	for {
		select {
		case msg := <-p.outQueue:
			err := p.writeMessage(msg)
			if err != nil {
				if atomic.LoadInt32(&p.disconnect) == 0 {
					log.Debugf("Failed to send message to %s: %v",
						p, err)
				}
				break out
			}

		case <-p.quit:
			break out
		}
	}

	p.Disconnect()
	p.wg.Done()
	log.Tracef("Peer output handler done for %s", p)
}

// pingHandler periodically pings the peer.  It must be run as a goroutine.
func (p *Peer) pingHandler() {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

out:
	for {
		select {
		case <-pingTicker.C:
			err := p.queueMessage(wire.NewMsgPing(rand.Uint64()))
			if err != nil {
				break out
			}

		case <-p.quit:
			break out
		}
	}

	p.wg.Done()
}

// queueMessage adds the passed message to the peer send queue.  The queue is
// drained by the output handler, so a full queue means the peer stopped
// reading and it is dropped rather than allowed to stall the sender.
func (p *Peer) queueMessage(msg wire.Message) error {
	if atomic.LoadInt32(&p.disconnect) != 0 {
		str := fmt.Sprintf("peer %s is disconnecting", p)
		return transportError(ErrPeerNotFound, str)
	}

	select {
	case p.outQueue <- msg:
		return nil
	default:
		p.Disconnect()
		str := fmt.Sprintf("peer %s is not draining its send queue", p)
		return transportError(ErrPeerStalled, str)
	}
}

// Disconnect disconnects the peer by closing the connection.  Calling this
// function when the peer is already disconnected or in the process of
// disconnecting will have no effect.
func (p *Peer) Disconnect() {
	if atomic.AddInt32(&p.disconnect, 1) != 1 {
		return
	}

	log.Tracef("Disconnecting %s", p)
	close(p.quit)
	p.conn.Close()
}

// WaitForDisconnect waits until the peer has completely disconnected and all
// of its handlers have exited.
func (p *Peer) WaitForDisconnect() {
	p.wg.Wait()
}
