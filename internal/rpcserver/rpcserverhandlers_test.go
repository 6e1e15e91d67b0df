// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/dcrjson/v4"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/flo"
	"github.com/ineiti/fledger/flostore"
	"github.com/ineiti/fledger/internal/version"
	"github.com/ineiti/fledger/rpc/jsonrpc/types"
	"github.com/ineiti/fledger/wire"
)

// mustID converts the passed hex string into a flid.ID and will panic if
// there is an error.  It will only (and must only) be called with hard-coded,
// and therefore known good, identifiers.
func mustID(s string) flid.ID {
	id, err := flid.NewIDFromStr(s)
	if err != nil {
		panic("invalid ID in source file: " + s)
	}
	return *id
}

// testNodeID is the identifier of the local node throughout the tests.
var testNodeID = mustID("0f")

// testSigner is the key the local node signs self-originated objects with
// throughout the tests.
var testSigner = func() *ace.KeySigner {
	signer, err := ace.GenerateKeySigner()
	if err != nil {
		panic("unable to generate test signer: " + err.Error())
	}
	return signer
}()

// testRealmFlo is a realm-defining object used throughout the tests.  It is
// created once so every test observes the same identifier.
var testRealmFlo = func() *flo.Flo {
	realm := &flo.Realm{
		Name: "test-realm",
		Config: flo.RealmConfig{
			Spread:   3,
			MaxSpace: 1 << 20,
		},
	}
	rules := testSigner.Condition()
	f, err := flo.CreateRealm(realm, &rules, time.Unix(1700000000, 0))
	if err != nil {
		panic("unable to create test realm object: " + err.Error())
	}
	return f
}()

// testPeer provides a mock peer by implementing the Peer interface.
type testPeer struct {
	id              flid.ID
	addr            string
	inbound         bool
	permanent       bool
	userAgent       string
	protocolVersion uint32
	timeConnected   time.Time
	lastSend        time.Time
	lastRecv        time.Time
	bytesSent       uint64
	bytesReceived   uint64
}

// ID returns a mocked node identifier of the peer.
func (p *testPeer) ID() flid.ID {
	return p.id
}

// Addr returns a mocked peer address.
func (p *testPeer) Addr() string {
	return p.addr
}

// Inbound returns a mocked bool representing whether the peer is inbound.
func (p *testPeer) Inbound() bool {
	return p.inbound
}

// Permanent returns a mocked bool representing whether the connection to the
// peer is retried when it is lost.
func (p *testPeer) Permanent() bool {
	return p.permanent
}

// UserAgent returns a mocked user agent of the remote peer.
func (p *testPeer) UserAgent() string {
	return p.userAgent
}

// ProtocolVersion returns a mocked negotiated protocol version of the peer.
func (p *testPeer) ProtocolVersion() uint32 {
	return p.protocolVersion
}

// TimeConnected returns a mocked time at which the peer connected.
func (p *testPeer) TimeConnected() time.Time {
	return p.timeConnected
}

// LastSend returns a mocked last send time of the peer.
func (p *testPeer) LastSend() time.Time {
	return p.lastSend
}

// LastRecv returns a mocked last recv time of the peer.
func (p *testPeer) LastRecv() time.Time {
	return p.lastRecv
}

// BytesSent returns a mocked total number of bytes sent by the peer.
func (p *testPeer) BytesSent() uint64 {
	return p.bytesSent
}

// BytesReceived returns a mocked total number of bytes received by the peer.
func (p *testPeer) BytesReceived() uint64 {
	return p.bytesReceived
}

// testConnManager provides a mock connection manager by implementing the
// ConnManager interface.
type testConnManager struct {
	connectErr        error
	disconnectByIDErr error
	connectedCount    int32
	connectedPeers    []Peer
}

// Connect returns a mocked error on adding the provided address as a new
// outbound peer.
func (c *testConnManager) Connect(addr string, permanent bool) error {
	return c.connectErr
}

// DisconnectByID returns a mocked error on disconnecting the peer associated
// with the provided node identifier.
func (c *testConnManager) DisconnectByID(id flid.ID) error {
	return c.disconnectByIDErr
}

// ConnectedCount returns a mocked number of currently connected peers.
func (c *testConnManager) ConnectedCount() int32 {
	return c.connectedCount
}

// ConnectedPeers returns a mocked array consisting of all connected peers.
func (c *testConnManager) ConnectedPeers() []Peer {
	return c.connectedPeers
}

// testOverlay provides a mock routing layer by implementing the Overlay
// interface.
type testOverlay struct {
	knownNodes  []flid.ID
	lookupNodes []flid.ID
	lookupErr   error
}

// KnownNodes returns a mocked list of the identifiers of every node in the
// routing table.
func (o *testOverlay) KnownNodes() []flid.ID {
	return o.knownNodes
}

// Lookup returns a mocked result of an iterative lookup for the given
// target.
func (o *testOverlay) Lookup(ctx context.Context, target flid.ID) ([]flid.ID, error) {
	return o.lookupNodes, o.lookupErr
}

// testFloStore provides a mock replicated object store by implementing the
// FloStore interface.
type testFloStore struct {
	putPlacements int
	putErr        error
	getFlo        *flo.Flo
	getErr        error
	updateAcks    int
	updateErr     error
	heldMetas     []wire.FloMeta
	realms        []flostore.RealmInfo
	cuckooIDs     []flid.ID
}

// Put returns a mocked number of remote placements of the stored object.
func (s *testFloStore) Put(ctx context.Context, f *flo.Flo) (int, error) {
	return s.putPlacements, s.putErr
}

// Get returns a mocked object with the given identifier.
func (s *testFloStore) Get(ctx context.Context, id flid.ID) (*flo.Flo, error) {
	return s.getFlo, s.getErr
}

// Update returns a mocked number of holders that acknowledged the update.
func (s *testFloStore) Update(ctx context.Context, id flid.ID, u *wire.Update) (int, error) {
	return s.updateAcks, s.updateErr
}

// HeldMetas returns mocked descriptions of every object held locally.
func (s *testFloStore) HeldMetas() []wire.FloMeta {
	return s.heldMetas
}

// Realms returns mocked realms whose definitions are held locally.
func (s *testFloStore) Realms() []flostore.RealmInfo {
	return s.realms
}

// CuckooIDs returns mocked identifiers of held objects attached to the given
// parent.
func (s *testFloStore) CuckooIDs(parent flid.ID) []flid.ID {
	return s.cuckooIDs
}

// testLogManager provides a mock log manager by implementing the LogManager
// interface.
type testLogManager struct {
	supportedSubsystems       []string
	parseAndSetDebugLevelsErr error
}

// SupportedSubsystems returns a mocked slice of the supported subsystems.
func (l *testLogManager) SupportedSubsystems() []string {
	return l.supportedSubsystems
}

// ParseAndSetDebugLevels returns a mocked error on parsing the specified
// debug level.
func (l *testLogManager) ParseAndSetDebugLevels(debugLevel string) error {
	return l.parseAndSetDebugLevelsErr
}

// rpcTest describes a test scenario to run a handler with mocked
// dependencies against.
type rpcTest struct {
	name            string
	handler         commandHandler
	cmd             interface{}
	mockConnManager *testConnManager
	mockOverlay     *testOverlay
	mockStore       *testFloStore
	mockLogManager  *testLogManager
	result          interface{}
	wantErr         bool
	errCode         dcrjson.RPCErrorCode
}

// defaultMockConnManager provides a default mock connection manager to be
// used throughout the tests.  Tests can override these defaults by calling
// defaultMockConnManager, updating fields as necessary on the returned
// *testConnManager, and then setting rpcTest.mockConnManager as that
// *testConnManager.
func defaultMockConnManager() *testConnManager {
	testPeer1 := &testPeer{
		id:              mustID("28"),
		addr:            "127.0.0.210:7037",
		inbound:         true,
		userAgent:       "/fledgerwire:1.0/fledgerd:0.1.0/",
		protocolVersion: wire.ProtocolVersion,
		timeConnected:   time.Unix(1700000000, 0),
		lastSend:        time.Unix(1700000100, 0),
		lastRecv:        time.Unix(1700000200, 0),
		bytesSent:       4783802,
		bytesReceived:   9598159,
	}
	testPeer2 := &testPeer{
		id:              mustID("29"),
		addr:            "127.0.0.211:7037",
		permanent:       true,
		userAgent:       "/fledgerwire:1.0/fledgerd:0.1.0/",
		protocolVersion: wire.ProtocolVersion,
		timeConnected:   time.Unix(1700001000, 0),
		lastSend:        time.Unix(1700001100, 0),
		lastRecv:        time.Unix(1700001200, 0),
		bytesSent:       1035311,
		bytesReceived:   2398442,
	}
	return &testConnManager{
		connectedCount: 2,
		connectedPeers: []Peer{
			testPeer1,
			testPeer2,
		},
	}
}

// defaultMockOverlay provides a default mock routing layer to be used
// throughout the tests.  Tests can override these defaults by calling
// defaultMockOverlay, updating fields as necessary on the returned
// *testOverlay, and then setting rpcTest.mockOverlay as that *testOverlay.
func defaultMockOverlay() *testOverlay {
	return &testOverlay{
		knownNodes: []flid.ID{
			mustID("8f"),
			mustID("0e"),
		},
		lookupNodes: []flid.ID{
			mustID("8f"),
			mustID("0e"),
		},
	}
}

// defaultMockFloStore provides a default mock object store to be used
// throughout the tests.  Tests can override these defaults by calling
// defaultMockFloStore, updating fields as necessary on the returned
// *testFloStore, and then setting rpcTest.mockStore as that *testFloStore.
func defaultMockFloStore() *testFloStore {
	return &testFloStore{
		putPlacements: 3,
		getFlo:        testRealmFlo,
		updateAcks:    2,
		heldMetas: []wire.FloMeta{{
			ID:      mustID("77"),
			Version: 4,
			Size:    512,
		}, {
			ID:      mustID("42"),
			Version: 1,
			Size:    128,
		}},
		realms: []flostore.RealmInfo{{
			ID:       mustID("66"),
			Name:     "gamma",
			Spread:   3,
			MaxSpace: 1 << 20,
			Usage:    640,
			Objects:  2,
		}, {
			ID:       mustID("33"),
			Name:     "alpha",
			Spread:   5,
			MaxSpace: 1 << 22,
			Usage:    512,
			Objects:  1,
		}},
		cuckooIDs: []flid.ID{
			mustID("b0"),
			mustID("a0"),
		},
	}
}

// defaultMockLogManager provides a default mock log manager to be used
// throughout the tests.  Tests can override these defaults by calling
// defaultMockLogManager, updating fields as necessary on the returned
// *testLogManager, and then setting rpcTest.mockLogManager as that
// *testLogManager.
func defaultMockLogManager() *testLogManager {
	return &testLogManager{
		supportedSubsystems: []string{"FLDG", "PEER", "RPCS"},
	}
}

// defaultMockConfig provides a default Config that is used throughout the
// tests.  Defaults can be overridden by tests through the rpcTest struct.
func defaultMockConfig() *Config {
	return &Config{
		ConnMgr:            defaultMockConnManager(),
		Overlay:            defaultMockOverlay(),
		Store:              defaultMockFloStore(),
		LogManager:         defaultMockLogManager(),
		NodeID:             testNodeID,
		Signer:             testSigner,
		DefaultPort:        "7037",
		RPCMaxClients:      10,
		RPCMaxWebsockets:   25,
		MaxProtocolVersion: wire.ProtocolVersion,
	}
}

func TestHandleConnect(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleConnect: ok",
		handler: handleConnect,
		cmd: &types.ConnectCmd{
			Addr:      "127.0.0.210:7037",
			Permanent: dcrjson.Bool(false),
		},
		result: nil,
	}, {
		name:    "handleConnect: connect error",
		handler: handleConnect,
		cmd: &types.ConnectCmd{
			Addr:      "127.0.0.210:7037",
			Permanent: dcrjson.Bool(true),
		},
		mockConnManager: func() *testConnManager {
			connManager := defaultMockConnManager()
			connManager.connectErr = errors.New("peer already connected")
			return connManager
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}})
}

func TestHandleCreateRealm(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleCreateRealm: invalid member",
		handler: handleCreateRealm,
		cmd: &types.CreateRealmCmd{
			Name:     "alpha",
			Spread:   dcrjson.Uint32(3),
			MaxSpace: dcrjson.Uint64(1 << 20),
			Members:  &[]string{"invalid gibberish"},
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleCreateRealm: store error",
		handler: handleCreateRealm,
		cmd: &types.CreateRealmCmd{
			Name:     "alpha",
			Spread:   dcrjson.Uint32(3),
			MaxSpace: dcrjson.Uint64(1 << 20),
		},
		mockStore: func() *testFloStore {
			store := defaultMockFloStore()
			store.putErr = errors.New("no space left for realm")
			return store
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCMisc,
	}})

	// The identifier of a new realm covers the creation timestamp, so the ok
	// path is checked structurally rather than against a fixed result.
	s := &Server{cfg: *defaultMockConfig()}
	cmd := &types.CreateRealmCmd{
		Name:     "alpha",
		Spread:   dcrjson.Uint32(3),
		MaxSpace: dcrjson.Uint64(1 << 20),
	}
	result, err := handleCreateRealm(context.Background(), s, cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	realmResult, ok := result.(types.CreateRealmResult)
	if !ok {
		t.Fatalf("unexpected result type: %T", result)
	}
	if _, err := flid.NewIDFromStr(realmResult.ID); err != nil {
		t.Errorf("result ID %q does not parse: %v", realmResult.ID, err)
	}
	if realmResult.Placements != 3 {
		t.Errorf("unexpected placements: got %v, want 3",
			realmResult.Placements)
	}
}

func TestHandleDebugLevel(t *testing.T) {
	t.Parallel()

	logMgr := defaultMockLogManager()
	testRPCServerHandler(t, []rpcTest{{
		name:    "handleDebugLevel: show",
		handler: handleDebugLevel,
		cmd: &types.DebugLevelCmd{
			LevelSpec: "show",
		},
		result: fmt.Sprintf("Supported subsystems %v",
			logMgr.supportedSubsystems),
	}, {
		name:    "handleDebugLevel: ok",
		handler: handleDebugLevel,
		cmd: &types.DebugLevelCmd{
			LevelSpec: "debug",
		},
		result: "Done.",
	}, {
		name:    "handleDebugLevel: invalid debug level",
		handler: handleDebugLevel,
		cmd: &types.DebugLevelCmd{
			LevelSpec: "invalidDebugLevel",
		},
		mockLogManager: func() *testLogManager {
			logManager := defaultMockLogManager()
			logManager.parseAndSetDebugLevelsErr =
				errors.New("invalidDebugLevel is not a valid debug level")
			return logManager
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}})
}

func TestHandleDisconnectNode(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleDisconnectNode: ok",
		handler: handleDisconnectNode,
		cmd: &types.DisconnectNodeCmd{
			NodeID: mustID("28").String(),
		},
		result: nil,
	}, {
		name:    "handleDisconnectNode: invalid node ID",
		handler: handleDisconnectNode,
		cmd: &types.DisconnectNodeCmd{
			NodeID: "invalid gibberish",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleDisconnectNode: peer not found",
		handler: handleDisconnectNode,
		cmd: &types.DisconnectNodeCmd{
			NodeID: mustID("fe").String(),
		},
		mockConnManager: func() *testConnManager {
			connManager := defaultMockConnManager()
			connManager.disconnectByIDErr = errors.New("peer not found")
			return connManager
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}})
}

func TestHandleGetCuckoos(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleGetCuckoos: ok",
		handler: handleGetCuckoos,
		cmd: &types.GetCuckoosCmd{
			Parent: mustID("77").String(),
		},
		result: []string{
			mustID("a0").String(),
			mustID("b0").String(),
		},
	}, {
		name:    "handleGetCuckoos: invalid parent",
		handler: handleGetCuckoos,
		cmd: &types.GetCuckoosCmd{
			Parent: "invalid gibberish",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}})
}

func TestHandleGetFlo(t *testing.T) {
	t.Parallel()

	f := testRealmFlo
	meta, err := f.Meta()
	if err != nil {
		t.Fatalf("unexpected error describing test object: %v", err)
	}
	serialized, err := f.Bytes()
	if err != nil {
		t.Fatalf("unexpected error serializing test object: %v", err)
	}

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleGetFlo: ok",
		handler: handleGetFlo,
		cmd: &types.GetFloCmd{
			ID: f.ID().String(),
		},
		result: &types.GetFloResult{
			ID:      f.ID().String(),
			Realm:   f.ID().String(),
			Type:    "realm",
			Version: meta.Version,
			Size:    int32(meta.Size),
			Data:    hex.EncodeToString(f.Data()),
		},
	}, {
		name:    "handleGetFlo: ok non-verbose",
		handler: handleGetFlo,
		cmd: &types.GetFloCmd{
			ID:      f.ID().String(),
			Verbose: dcrjson.Bool(false),
		},
		result: hex.EncodeToString(serialized),
	}, {
		name:    "handleGetFlo: invalid object ID",
		handler: handleGetFlo,
		cmd: &types.GetFloCmd{
			ID: "invalid gibberish",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleGetFlo: object not held",
		handler: handleGetFlo,
		cmd: &types.GetFloCmd{
			ID: mustID("fe").String(),
		},
		mockStore: func() *testFloStore {
			store := defaultMockFloStore()
			store.getFlo = nil
			store.getErr = errors.New("object not found")
			return store
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCNoTxInfo,
	}})
}

func TestHandleGetHeldFlos(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleGetHeldFlos: ok",
		handler: handleGetHeldFlos,
		cmd:     &types.GetHeldFlosCmd{},
		result: []types.FloMetaResult{{
			ID:      mustID("42").String(),
			Version: 1,
			Size:    128,
		}, {
			ID:      mustID("77").String(),
			Version: 4,
			Size:    512,
		}},
	}, {
		name:    "handleGetHeldFlos: no objects held",
		handler: handleGetHeldFlos,
		cmd:     &types.GetHeldFlosCmd{},
		mockStore: func() *testFloStore {
			store := defaultMockFloStore()
			store.heldMetas = nil
			return store
		}(),
		result: []types.FloMetaResult{},
	}})
}

func TestHandleGetInfo(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleGetInfo: ok",
		handler: handleGetInfo,
		cmd:     &types.GetInfoCmd{},
		result: &types.InfoNodeResult{
			Version: int32(1000000*version.Major + 10000*version.Minor +
				100*version.Patch),
			ProtocolVersion: int32(wire.ProtocolVersion),
			NodeID:          testNodeID.String(),
			Connections:     2,
			KnownNodes:      2,
			Realms:          2,
			HeldFlos:        2,
		},
	}})
}

func TestHandleGetKnownNodes(t *testing.T) {
	t.Parallel()

	// The local node is 0f..., so 8f... differs in the first bit and 0e...
	// shares the first seven bits.
	testRPCServerHandler(t, []rpcTest{{
		name:    "handleGetKnownNodes: ok",
		handler: handleGetKnownNodes,
		cmd:     &types.GetKnownNodesCmd{},
		result: []types.GetKnownNodesResult{{
			NodeID: mustID("8f").String(),
			Bucket: 0,
		}, {
			NodeID: mustID("0e").String(),
			Bucket: 7,
		}},
	}, {
		name:    "handleGetKnownNodes: empty routing table",
		handler: handleGetKnownNodes,
		cmd:     &types.GetKnownNodesCmd{},
		mockOverlay: func() *testOverlay {
			overlay := defaultMockOverlay()
			overlay.knownNodes = nil
			return overlay
		}(),
		result: []types.GetKnownNodesResult{},
	}})
}

func TestHandleGetPeerInfo(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleGetPeerInfo: ok",
		handler: handleGetPeerInfo,
		cmd:     &types.GetPeerInfoCmd{},
		result: []*types.GetPeerInfoResult{{
			NodeID:    mustID("28").String(),
			Addr:      "127.0.0.210:7037",
			Inbound:   true,
			Permanent: false,
			LastSend:  1700000100,
			LastRecv:  1700000200,
			BytesSent: 4783802,
			BytesRecv: 9598159,
			ConnTime:  1700000000,
			Version:   wire.ProtocolVersion,
			SubVer:    "/fledgerwire:1.0/fledgerd:0.1.0/",
		}, {
			NodeID:    mustID("29").String(),
			Addr:      "127.0.0.211:7037",
			Inbound:   false,
			Permanent: true,
			LastSend:  1700001100,
			LastRecv:  1700001200,
			BytesSent: 1035311,
			BytesRecv: 2398442,
			ConnTime:  1700001000,
			Version:   wire.ProtocolVersion,
			SubVer:    "/fledgerwire:1.0/fledgerd:0.1.0/",
		}},
	}})
}

func TestHandleGetRealms(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleGetRealms: ok",
		handler: handleGetRealms,
		cmd:     &types.GetRealmsCmd{},
		result: []types.RealmResult{{
			ID:       mustID("33").String(),
			Name:     "alpha",
			Spread:   5,
			MaxSpace: 1 << 22,
			Usage:    512,
			Objects:  1,
		}, {
			ID:       mustID("66").String(),
			Name:     "gamma",
			Spread:   3,
			MaxSpace: 1 << 20,
			Usage:    640,
			Objects:  2,
		}},
	}})
}

func TestHandleHelp(t *testing.T) {
	t.Parallel()

	getInfoUsage, err := dcrjson.MethodUsageText(types.Method("getinfo"))
	if err != nil {
		t.Fatalf("unexpected error generating usage: %v", err)
	}

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleHelp: specific command",
		handler: handleHelp,
		cmd: &types.HelpCmd{
			Command: dcrjson.String("getinfo"),
		},
		result: getInfoUsage,
	}, {
		name:    "handleHelp: unknown command",
		handler: handleHelp,
		cmd: &types.HelpCmd{
			Command: dcrjson.String("unknowncommand"),
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}})
}

func TestHandleLookup(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleLookup: ok",
		handler: handleLookup,
		cmd: &types.LookupCmd{
			Target: mustID("8e").String(),
		},
		result: &types.LookupResult{
			Target: mustID("8e").String(),
			Closest: []string{
				mustID("8f").String(),
				mustID("0e").String(),
			},
		},
	}, {
		name:    "handleLookup: invalid target",
		handler: handleLookup,
		cmd: &types.LookupCmd{
			Target: "invalid gibberish",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleLookup: lookup error",
		handler: handleLookup,
		cmd: &types.LookupCmd{
			Target: mustID("8e").String(),
		},
		mockOverlay: func() *testOverlay {
			overlay := defaultMockOverlay()
			overlay.lookupErr = errors.New("routing table is empty")
			return overlay
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCInternal.Code,
	}})
}

func TestHandlePutFlo(t *testing.T) {
	t.Parallel()

	serialized, err := testRealmFlo.Bytes()
	if err != nil {
		t.Fatalf("unexpected error serializing test object: %v", err)
	}

	testRPCServerHandler(t, []rpcTest{{
		name:    "handlePutFlo: ok",
		handler: handlePutFlo,
		cmd: &types.PutFloCmd{
			HexFlo: hex.EncodeToString(serialized),
		},
		result: types.PutFloResult{
			ID:         testRealmFlo.ID().String(),
			Placements: 3,
		},
	}, {
		name:    "handlePutFlo: invalid hex",
		handler: handlePutFlo,
		cmd: &types.PutFloCmd{
			HexFlo: "zz",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCDecodeHexString,
	}, {
		name:    "handlePutFlo: undecodable object",
		handler: handlePutFlo,
		cmd: &types.PutFloCmd{
			HexFlo: "00",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCDeserialization,
	}, {
		name:    "handlePutFlo: store error",
		handler: handlePutFlo,
		cmd: &types.PutFloCmd{
			HexFlo: hex.EncodeToString(serialized),
		},
		mockStore: func() *testFloStore {
			store := defaultMockFloStore()
			store.putErr = errors.New("realm not served")
			return store
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCMisc,
	}})
}

func TestHandleStop(t *testing.T) {
	t.Parallel()

	s := &Server{requestProcessShutdown: make(chan struct{}, 1)}
	result, err := handleStop(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "fledgerd stopping." {
		t.Fatalf("unexpected result: got %v", result)
	}
	select {
	case <-s.RequestedProcessShutdown():
	default:
		t.Fatal("expected a process shutdown request")
	}
}

func TestHandleUpdateFlo(t *testing.T) {
	t.Parallel()

	update := &wire.Update{
		Version:   2,
		Timestamp: time.Unix(1700002000, 0),
		Kind:      wire.UpdateData,
		Payload:   []byte("updated payload"),
	}
	var buf bytes.Buffer
	err := update.Encode(&buf, wire.ProtocolVersion)
	if err != nil {
		t.Fatalf("unexpected error encoding update: %v", err)
	}
	updateHex := hex.EncodeToString(buf.Bytes())

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleUpdateFlo: ok",
		handler: handleUpdateFlo,
		cmd: &types.UpdateFloCmd{
			ID:        mustID("77").String(),
			HexUpdate: updateHex,
		},
		result: types.UpdateFloResult{
			ID:      mustID("77").String(),
			Version: 2,
			Acks:    2,
		},
	}, {
		name:    "handleUpdateFlo: invalid object ID",
		handler: handleUpdateFlo,
		cmd: &types.UpdateFloCmd{
			ID:        "invalid gibberish",
			HexUpdate: updateHex,
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleUpdateFlo: invalid hex",
		handler: handleUpdateFlo,
		cmd: &types.UpdateFloCmd{
			ID:        mustID("77").String(),
			HexUpdate: "zz",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCDecodeHexString,
	}, {
		name:    "handleUpdateFlo: undecodable update",
		handler: handleUpdateFlo,
		cmd: &types.UpdateFloCmd{
			ID:        mustID("77").String(),
			HexUpdate: "00",
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCDeserialization,
	}, {
		name:    "handleUpdateFlo: update rejected",
		handler: handleUpdateFlo,
		cmd: &types.UpdateFloCmd{
			ID:        mustID("77").String(),
			HexUpdate: updateHex,
		},
		mockStore: func() *testFloStore {
			store := defaultMockFloStore()
			store.updateErr = errors.New("proof does not satisfy rules")
			return store
		}(),
		wantErr: true,
		errCode: dcrjson.ErrRPCMisc,
	}})
}

func TestHandleVersion(t *testing.T) {
	t.Parallel()

	runtimeVer := version.NormalizeString(strings.ReplaceAll(runtime.Version(),
		".", "-"))
	buildMeta := runtimeVer
	build := version.NormalizeString(version.BuildMetadata)
	if build != "" {
		buildMeta = fmt.Sprintf("%s.%s", build, runtimeVer)
	}
	testRPCServerHandler(t, []rpcTest{{
		name:    "handleVersion: ok",
		handler: handleVersion,
		cmd:     &types.VersionCmd{},
		result: map[string]types.VersionResult{
			"fledgerdjsonrpcapi": {
				VersionString: jsonrpcSemverString,
				Major:         jsonrpcSemverMajor,
				Minor:         jsonrpcSemverMinor,
				Patch:         jsonrpcSemverPatch,
			},
			"fledgerd": {
				VersionString: version.String(),
				Major:         uint32(version.Major),
				Minor:         uint32(version.Minor),
				Patch:         uint32(version.Patch),
				Prerelease:    version.NormalizeString(version.PreRelease),
				BuildMetadata: buildMeta,
			},
		},
	}})
}

func TestCheckAuth(t *testing.T) {
	t.Parallel()

	s, err := New(&Config{
		RPCUser:      "user",
		RPCPass:      "pass",
		RPCLimitUser: "limituser",
		RPCLimitPass: "limitpass",
	})
	if err != nil {
		t.Fatalf("unexpected error creating server: %v", err)
	}

	tests := []struct {
		name       string
		user       string
		pass       string
		wantAuthed bool
		wantAdmin  bool
	}{{
		name:       "admin credentials",
		user:       "user",
		pass:       "pass",
		wantAuthed: true,
		wantAdmin:  true,
	}, {
		name:       "limited credentials",
		user:       "limituser",
		pass:       "limitpass",
		wantAuthed: true,
		wantAdmin:  false,
	}, {
		name:       "bad password",
		user:       "user",
		pass:       "wrong",
		wantAuthed: false,
		wantAdmin:  false,
	}, {
		name:       "unknown user",
		user:       "nobody",
		pass:       "pass",
		wantAuthed: false,
		wantAdmin:  false,
	}}
	for _, test := range tests {
		authed, isAdmin := s.checkAuthUserPass(test.user, test.pass,
			"127.0.0.1:12345")
		if authed != test.wantAuthed {
			t.Errorf("%s: unexpected authed: got %v, want %v", test.name,
				authed, test.wantAuthed)
		}
		if isAdmin != test.wantAdmin {
			t.Errorf("%s: unexpected isAdmin: got %v, want %v", test.name,
				isAdmin, test.wantAdmin)
		}
	}
}

// testRPCServerHandler runs the given tests against the associated handlers
// with a default mocked configuration that is overridden by whatever mocks a
// test provides.
func testRPCServerHandler(t *testing.T, tests []rpcTest) {
	t.Helper()

	for _, test := range tests {
		test := test // capture range variable
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			// Create a default config and override any fields that are
			// provided by the test.
			rpcserverConfig := defaultMockConfig()
			if test.mockConnManager != nil {
				rpcserverConfig.ConnMgr = test.mockConnManager
			}
			if test.mockOverlay != nil {
				rpcserverConfig.Overlay = test.mockOverlay
			}
			if test.mockStore != nil {
				rpcserverConfig.Store = test.mockStore
			}
			if test.mockLogManager != nil {
				rpcserverConfig.LogManager = test.mockLogManager
			}

			testServer := &Server{cfg: *rpcserverConfig}
			result, err := test.handler(context.Background(), testServer, test.cmd)
			if test.wantErr {
				var rpcErr *dcrjson.RPCError
				if !errors.As(err, &rpcErr) || rpcErr.Code != test.errCode {
					if rpcErr != nil {
						t.Errorf("%s\nwant: %+v\n got: %+v\n", test.name,
							test.errCode, rpcErr.Code)
					} else {
						t.Errorf("%s\nwant: %+v\n got: nil\n", test.name,
							test.errCode)
					}
				}
				return
			}
			if err != nil {
				t.Errorf("%s\nunexpected error: %+v\n", test.name, err)
				return
			}
			if !reflect.DeepEqual(result, test.result) {
				t.Errorf("%s\nwant: %+v\n got: %+v\n", test.name,
					spew.Sdump(test.result), spew.Sdump(result))
			}
		})
	}
}
