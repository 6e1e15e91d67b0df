// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"context"
	"time"

	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/flo"
	"github.com/ineiti/fledger/flostore"
	"github.com/ineiti/fledger/wire"
)

// Peer represents a peer for use with the RPC server.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type Peer interface {
	// ID returns the node identifier the remote node advertised during the
	// hello exchange.
	ID() flid.ID

	// Addr returns the peer address.
	Addr() string

	// Inbound returns whether the peer is inbound.
	Inbound() bool

	// Permanent returns whether the connection to the peer is retried when
	// it is lost.
	Permanent() bool

	// UserAgent returns the user agent of the remote peer.
	UserAgent() string

	// ProtocolVersion returns the negotiated protocol version of the peer.
	ProtocolVersion() uint32

	// TimeConnected returns the time at which the peer connected.
	TimeConnected() time.Time

	// LastSend returns the last send time of the peer.
	LastSend() time.Time

	// LastRecv returns the last recv time of the peer.
	LastRecv() time.Time

	// BytesSent returns the total number of bytes sent by the peer.
	BytesSent() uint64

	// BytesReceived returns the total number of bytes received by the peer.
	BytesReceived() uint64
}

// ConnManager represents a connection manager for use with the RPC server.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type ConnManager interface {
	// Connect adds the provided address as a new outbound peer.  The
	// permanent flag indicates whether or not to make the peer persistent
	// and reconnect if the connection is lost.  Attempting to connect to an
	// already existing peer will return an error.
	Connect(addr string, permanent bool) error

	// DisconnectByID disconnects the peer associated with the provided node
	// identifier.  This applies to both inbound and outbound peers.
	// Attempting to remove an identifier that does not exist will return an
	// error.
	DisconnectByID(id flid.ID) error

	// ConnectedCount returns the number of currently connected peers.
	ConnectedCount() int32

	// ConnectedPeers returns an array consisting of all connected peers.
	ConnectedPeers() []Peer
}

// Overlay represents the message routing layer for use with the RPC server.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type Overlay interface {
	// KnownNodes returns the identifiers of every node in the routing
	// table.
	KnownNodes() []flid.ID

	// Lookup runs an iterative lookup for the given target and returns the
	// closest nodes found.  It blocks until the lookup converges or the
	// context is cancelled.
	Lookup(ctx context.Context, target flid.ID) ([]flid.ID, error)
}

// FloStore represents the replicated object store for use with the RPC
// server.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type FloStore interface {
	// Put stores the object locally and offers it to the closest holders
	// on the overlay.  It returns the number of remote placements.
	Put(ctx context.Context, f *flo.Flo) (int, error)

	// Get returns the object with the given identifier, fetching it from
	// the overlay when it is not held locally.
	Get(ctx context.Context, id flid.ID) (*flo.Flo, error)

	// Update appends the update to the identified object and distributes
	// it to the other holders.  It returns the number of acknowledging
	// holders.
	Update(ctx context.Context, id flid.ID, u *wire.Update) (int, error)

	// HeldMetas returns descriptions of every object held locally.
	HeldMetas() []wire.FloMeta

	// Realms returns the realms whose definitions are held locally.
	Realms() []flostore.RealmInfo

	// CuckooIDs returns the identifiers of held objects attached to the
	// given parent.
	CuckooIDs(parent flid.ID) []flid.ID
}

// LogManager represents the log manager for use with the RPC server.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type LogManager interface {
	// SupportedSubsystems returns a sorted slice of the supported
	// subsystems for logging purposes.
	SupportedSubsystems() []string

	// ParseAndSetDebugLevels attempts to parse the specified debug level
	// and set the levels accordingly.  An appropriate error must be
	// returned if anything is invalid.
	ParseAndSetDebugLevels(debugLevel string) error
}
