// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/elliptic"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/decred/dcrd/certgen"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/flostore"
	"github.com/ineiti/fledger/internal/rpcserver"
	"github.com/ineiti/fledger/internal/version"
	"github.com/ineiti/fledger/router"
	"github.com/ineiti/fledger/transport"
	"github.com/ineiti/fledger/wire"
)

// routingTableFilename is the name of the file the routing table snapshot is
// saved to under the data directory.
const routingTableFilename = "routingtable.json"

// simpleAddr implements the net.Addr interface with two struct fields.
type simpleAddr struct {
	net, addr string
}

// String returns the address.
//
// This is part of the net.Addr interface.
func (a simpleAddr) String() string {
	return a.addr
}

// Network returns the network.
//
// This is part of the net.Addr interface.
func (a simpleAddr) Network() string {
	return a.net
}

// Ensure simpleAddr implements the net.Addr interface.
var _ net.Addr = simpleAddr{}

// parseListeners determines whether each listen address is IPv4 and IPv6 and
// returns a slice of appropriate net.Addrs to listen on with TCP.  It also
// properly detects addresses which apply to "all interfaces" and adds the
// address as both IPv4 and IPv6.
func parseListeners(addrs []string) ([]net.Addr, error) {
	netAddrs := make([]net.Addr, 0, len(addrs)*2)
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			// Shouldn't happen due to already being normalized.
			return nil, err
		}

		// Empty host or host of * on plan9 is both IPv4 and IPv6.
		if host == "" || (host == "*" && runtime.GOOS == "plan9") {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
			continue
		}

		// Strip IPv6 zone id if present since net.ParseIP does not
		// handle it.
		zoneIndex := strings.LastIndex(host, "%")
		if zoneIndex > 0 {
			host = host[:zoneIndex]
		}

		// Parse the IP.
		ip := net.ParseIP(host)
		if ip == nil {
			hostAddrs, err := net.LookupHost(host)
			if err != nil {
				return nil, err
			}
			ip = net.ParseIP(hostAddrs[0])
			if ip == nil {
				return nil, fmt.Errorf("cannot resolve IP address for host "+
					"'%s'", host)
			}
		}

		// To4 returns nil when the IP is not an IPv4 address, so use
		// this determine the address type.
		if ip.To4() == nil {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
		} else {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
		}
	}
	return netAddrs, nil
}

// initListeners binds TCP listeners to the provided addresses.  Failures to
// listen on an individual address are only logged so a single unavailable
// interface does not prevent startup, but at least one bind must succeed.
func initListeners(listenAddrs []string) ([]net.Listener, error) {
	netAddrs, err := parseListeners(listenAddrs)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(netAddrs))
	for _, addr := range netAddrs {
		listener, err := net.Listen(addr.Network(), addr.String())
		if err != nil {
			srvrLog.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}
	if len(listeners) == 0 {
		return nil, errors.New("no valid listen address")
	}

	return listeners, nil
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// genCertPair generates a key/cert pair to the paths provided.
func genCertPair(certFile, keyFile string) error {
	rpcsLog.Infof("Generating TLS certificates...")

	org := "fledgerd autogenerated cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := certgen.NewTLSCertPair(elliptic.P256(), org,
		validUntil, nil)
	if err != nil {
		return err
	}

	// Write cert and key files.
	if err = os.WriteFile(certFile, cert, 0644); err != nil {
		return err
	}
	if err = os.WriteFile(keyFile, key, 0600); err != nil {
		os.Remove(certFile)
		return err
	}

	rpcsLog.Infof("Done generating TLS certificates")
	return nil
}

// setupRPCListeners returns a slice of listeners that are configured for use
// with the RPC server depending on the configuration settings for listen
// addresses and TLS.
func setupRPCListeners() ([]net.Listener, error) {
	// Setup TLS if not disabled.
	listenFunc := net.Listen
	if !cfg.DisableTLS {
		// Generate the TLS cert and key file if both don't already
		// exist.
		if !fileExists(cfg.RPCKey) && !fileExists(cfg.RPCCert) {
			err := genCertPair(cfg.RPCCert, cfg.RPCKey)
			if err != nil {
				return nil, err
			}
		}
		keypair, err := tls.LoadX509KeyPair(cfg.RPCCert, cfg.RPCKey)
		if err != nil {
			return nil, err
		}

		tlsConfig := tls.Config{
			Certificates: []tls.Certificate{keypair},
			MinVersion:   tls.VersionTLS12,
		}

		// Change the standard net.Listen function to the tls one.
		listenFunc = func(net string, laddr string) (net.Listener, error) {
			return tls.Listen(net, laddr, &tlsConfig)
		}
	}

	netAddrs, err := parseListeners(cfg.RPCListeners)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(netAddrs))
	for _, addr := range netAddrs {
		listener, err := listenFunc(addr.Network(), addr.String())
		if err != nil {
			rpcsLog.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}

	return listeners, nil
}

// loadIdentity returns the node identity signer loaded from the serialized
// private key at the given path.  A fresh identity is generated and saved
// there on the first run.
func loadIdentity(path string) (*ace.KeySigner, error) {
	serialized, err := os.ReadFile(path)
	if err == nil {
		if len(serialized) != 32 {
			return nil, fmt.Errorf("malformed identity key file %s", path)
		}
		priv := secp256k1.PrivKeyFromBytes(serialized)
		return ace.NewKeySigner(priv), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return nil, err
	}
	err = os.WriteFile(path, priv.Serialize(), 0600)
	if err != nil {
		return nil, err
	}

	signer := ace.NewKeySigner(priv)
	srvrLog.Infof("Generated node identity %s", signer.KeyID())
	return signer, nil
}

// server provides a fledger node server for handling communications to and
// from fledger peers as well as the replicated object store those peers sync
// against.
type server struct {
	// ctx is the lifetime context of the running server.  It bounds dials
	// that are initiated after startup, such as by RPC connect requests.
	ctx context.Context

	cfg      *config
	identity *ace.KeySigner

	transport *transport.Transport
	router    *router.Router
	store     *flostore.Store
	rpcServer *rpcserver.Server

	// lookupWaiters tracks blocked lookup requests by the correlation
	// identifier the router assigned them.
	lookupMtx     sync.Mutex
	lookupWaiters map[uint64]chan []flid.ID
}

// lookupDone is called by the router when an iterative lookup completes.  The
// result is handed to the waiting request, if any, on a separate goroutine so
// the router event loop is never blocked.
func (s *server) lookupDone(corr uint64, target flid.ID, closest []flid.ID) {
	go func() {
		s.lookupMtx.Lock()
		ch, ok := s.lookupWaiters[corr]
		delete(s.lookupWaiters, corr)
		s.lookupMtx.Unlock()
		if ok {
			ch <- closest
		}
	}()
}

// lookup runs an iterative lookup for the given target and blocks until it
// converges or the passed context is cancelled.
func (s *server) lookup(ctx context.Context, target flid.ID) ([]flid.ID, error) {
	ch := make(chan []flid.ID, 1)

	// The waiter is registered under the same lock the completion handler
	// takes, so a lookup that finishes immediately cannot slip past the
	// registration.
	s.lookupMtx.Lock()
	corr := s.router.Lookup(target)
	s.lookupWaiters[corr] = ch
	s.lookupMtx.Unlock()

	select {
	case closest := <-ch:
		// A nil list means the lookup expired without any reply.
		if closest == nil {
			return nil, errors.New("lookup expired without any reply")
		}
		return closest, nil
	case <-ctx.Done():
		s.lookupMtx.Lock()
		delete(s.lookupWaiters, corr)
		s.lookupMtx.Unlock()
		return nil, ctx.Err()
	}
}

// newServer returns a new fledger node server configured to listen on the
// given addresses using the provided open object database.  Use Run to start
// it.
func newServer(ctx context.Context, listenAddrs []string, db *leveldb.DB) (*server, error) {
	// Load or generate the long term node identity.  Everything the node
	// stores or signs on the overlay is attributable to this key.
	identity, err := loadIdentity(cfg.IdentityFile)
	if err != nil {
		return nil, err
	}
	self := identity.KeyID()
	srvrLog.Infof("Node identity %s", self)

	s := &server{
		ctx:           ctx,
		cfg:           cfg,
		identity:      identity,
		lookupWaiters: make(map[uint64]chan []flid.ID),
	}

	// The router owns the routing table and the delivery primitives.  Its
	// callbacks indirect through the server fields since the transport and
	// store are created afterwards.
	s.router = router.New(&router.Config{
		Self: self,
		Send: func(to flid.ID, msg wire.Message) error {
			return s.transport.Send(to, msg)
		},
		Neighbors: func() []flid.ID {
			return s.transport.Neighbors()
		},
		Deliver: func(d router.Delivery) {
			s.store.Deliver(d)
		},
		LookupDone: s.lookupDone,
		NeighborReplies: func(corr uint64, replies []router.PeerReply) {
			s.store.NeighborReplies(corr, replies)
		},
		SnapshotPath: filepath.Join(cfg.DataDir, routingTableFilename),
	})

	s.store, err = flostore.New(&flostore.Config{
		Self:        self,
		DB:          db,
		Overlay:     s.router,
		Realms:      cfg.realms,
		OwnedRealms: cfg.ownedRealms,
	})
	if err != nil {
		return nil, err
	}

	var listeners []net.Listener
	if !cfg.DisableListen {
		listeners, err = initListeners(listenAddrs)
		if err != nil {
			return nil, err
		}
	}

	s.transport, err = transport.New(&transport.Config{
		Self:          self,
		Net:           activeNetParams.Net,
		UserAgentName: "fledgerd",
		UserAgentVersion: fmt.Sprintf("%d.%d.%d", version.Major,
			version.Minor, version.Patch),
		Listeners:  listeners,
		Dial:       cfg.dial,
		MaxInbound: cfg.MaxPeers,
		OnConnected: func(p *transport.Peer) {
			s.router.PeerConnected(p.ID())
		},
		OnDisconnected: func(p *transport.Peer) {
			s.router.PeerDisconnected(p.ID())
		},
		OnMessage: func(p *transport.Peer, msg wire.Message) {
			s.router.Message(p.ID(), msg)
		},
	})
	if err != nil {
		return nil, err
	}

	if !cfg.DisableRPC {
		rpcListeners, err := setupRPCListeners()
		if err != nil {
			return nil, err
		}
		if len(rpcListeners) == 0 {
			return nil, errors.New("no usable RPC listen addresses")
		}
		s.rpcServer, err = rpcserver.New(&rpcserver.Config{
			Listeners:          rpcListeners,
			ConnMgr:            &rpcConnManager{s},
			Overlay:            &rpcOverlay{s},
			Store:              s.store,
			LogManager:         rpcLogManager{},
			NodeID:             self,
			Signer:             identity,
			DefaultPort:        activeNetParams.DefaultPort,
			Proxy:              cfg.Proxy,
			RPCUser:            cfg.RPCUser,
			RPCPass:            cfg.RPCPass,
			RPCLimitUser:       cfg.RPCLimitUser,
			RPCLimitPass:       cfg.RPCLimitPass,
			RPCMaxClients:      cfg.RPCMaxClients,
			RPCMaxWebsockets:   cfg.RPCMaxWebsockets,
			SimNet:             cfg.SimNet,
			MaxProtocolVersion: wire.ProtocolVersion,
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Run starts the server and blocks until the provided context is cancelled.
// All subsystems are shut down before it returns.
func (s *server) Run(ctx context.Context) {
	srvrLog.Trace("Starting server")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		s.transport.Run(ctx)
		wg.Done()
	}()
	go func() {
		s.router.Run(ctx)
		wg.Done()
	}()
	go func() {
		s.store.Run(ctx)
		wg.Done()
	}()

	// Establish any outbound connections requested via the configuration.
	// Both classes of configured peers are maintained permanently.
	for _, addr := range s.cfg.ConnectPeers {
		if err := s.transport.Connect(ctx, addr, true); err != nil {
			srvrLog.Warnf("Can't connect to %s: %v", addr, err)
		}
	}
	for _, addr := range s.cfg.AddPeers {
		if err := s.transport.Connect(ctx, addr, true); err != nil {
			srvrLog.Warnf("Can't connect to %s: %v", addr, err)
		}
	}

	if s.rpcServer != nil {
		wg.Add(2)
		go func() {
			s.rpcServer.Run(ctx)
			wg.Done()
		}()

		// Signal process shutdown when the RPC server requests it.
		go func() {
			select {
			case <-s.rpcServer.RequestedProcessShutdown():
				shutdownRequestChannel <- struct{}{}
			case <-ctx.Done():
			}
			wg.Done()
		}()
	}

	// Wait until the server is signalled to shutdown.
	<-ctx.Done()
	srvrLog.Warnf("Server shutting down")
	wg.Wait()
	srvrLog.Trace("Server done")
}
