// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/internal/rpcserver"
)

// rpcConnManager provides a connection manager for use with the RPC server
// and implements the rpcserver.ConnManager interface.
type rpcConnManager struct {
	server *server
}

// Ensure rpcConnManager implements the rpcserver.ConnManager interface.
var _ rpcserver.ConnManager = (*rpcConnManager)(nil)

// Connect adds the provided address as a new outbound peer.  The permanent
// flag indicates whether or not to make the peer persistent and reconnect if
// the connection is lost.  Attempting to connect to an already existing peer
// will return an error.
//
// This function is safe for concurrent access and is part of the
// rpcserver.ConnManager interface implementation.
func (cm *rpcConnManager) Connect(addr string, permanent bool) error {
	return cm.server.transport.Connect(cm.server.ctx, addr, permanent)
}

// DisconnectByID disconnects the peer associated with the provided node
// identifier.  This applies to both inbound and outbound peers.  Attempting
// to remove an identifier that does not exist will return an error.
//
// This function is safe for concurrent access and is part of the
// rpcserver.ConnManager interface implementation.
func (cm *rpcConnManager) DisconnectByID(id flid.ID) error {
	return cm.server.transport.DropPeer(id)
}

// ConnectedCount returns the number of currently connected peers.
//
// This function is safe for concurrent access and is part of the
// rpcserver.ConnManager interface implementation.
func (cm *rpcConnManager) ConnectedCount() int32 {
	return int32(cm.server.transport.PeerCount())
}

// ConnectedPeers returns an array consisting of all connected peers.
//
// This function is safe for concurrent access and is part of the
// rpcserver.ConnManager interface implementation.
func (cm *rpcConnManager) ConnectedPeers() []rpcserver.Peer {
	tpeers := cm.server.transport.Peers()
	peers := make([]rpcserver.Peer, 0, len(tpeers))
	for _, p := range tpeers {
		peers = append(peers, p)
	}
	return peers
}

// rpcOverlay provides a routing layer for use with the RPC server and
// implements the rpcserver.Overlay interface.
type rpcOverlay struct {
	server *server
}

// Ensure rpcOverlay implements the rpcserver.Overlay interface.
var _ rpcserver.Overlay = (*rpcOverlay)(nil)

// KnownNodes returns the identifiers of every node in the routing table.
//
// This function is safe for concurrent access and is part of the
// rpcserver.Overlay interface implementation.
func (o *rpcOverlay) KnownNodes() []flid.ID {
	return o.server.router.KnownNodes()
}

// Lookup runs an iterative lookup for the given target and returns the
// closest nodes found.  It blocks until the lookup converges or the context
// is cancelled.
//
// This function is safe for concurrent access and is part of the
// rpcserver.Overlay interface implementation.
func (o *rpcOverlay) Lookup(ctx context.Context, target flid.ID) ([]flid.ID, error) {
	return o.server.lookup(ctx, target)
}

// rpcLogManager provides a log manager for use with the RPC server and
// implements the rpcserver.LogManager interface.
type rpcLogManager struct{}

// Ensure rpcLogManager implements the rpcserver.LogManager interface.
var _ rpcserver.LogManager = rpcLogManager{}

// SupportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
//
// This function is safe for concurrent access and is part of the
// rpcserver.LogManager interface implementation.
func (rpcLogManager) SupportedSubsystems() []string {
	return supportedSubsystems()
}

// ParseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
//
// This function is safe for concurrent access and is part of the
// rpcserver.LogManager interface implementation.
func (rpcLogManager) ParseAndSetDebugLevels(debugLevel string) error {
	return parseAndSetDebugLevels(debugLevel)
}
