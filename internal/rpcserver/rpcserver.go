// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/decred/dcrd/dcrjson/v4"
	"github.com/gorilla/websocket"

	"github.com/ineiti/fledger/ace"
	"github.com/ineiti/fledger/flid"
	"github.com/ineiti/fledger/flo"
	"github.com/ineiti/fledger/internal/version"
	"github.com/ineiti/fledger/rpc/jsonrpc/types"
	"github.com/ineiti/fledger/wire"
)

// API version constants
const (
	jsonrpcSemverMajor = 1
	jsonrpcSemverMinor = 0
	jsonrpcSemverPatch = 0
)

const (
	// rpcAuthTimeoutSeconds is the number of seconds a connection to the
	// RPC server is allowed to stay open without authenticating before it
	// is closed.
	rpcAuthTimeoutSeconds = 10

	// rpcReadLimitAuthenticated is the maximum number of bytes allowed for a
	// JSON-RPC message read from a client.
	rpcReadLimitAuthenticated = 1 << 23 // 8 MiB

	// websocketReadLimitAuthenticated is the maximum number of bytes allowed
	// for a message read from an authenticated websocket client.
	websocketReadLimitAuthenticated = 1 << 24 // 16 MiB

	// websocketPongTimeout is the maximum amount of time attempts to respond
	// to a websocket ping message with a pong are allowed to take.
	websocketPongTimeout = time.Second * 5
)

var (
	// jsonrpcSemverString is the RPC server's semantic API version formatted
	// as a string.
	jsonrpcSemverString = fmt.Sprintf("%d.%d.%d", jsonrpcSemverMajor,
		jsonrpcSemverMinor, jsonrpcSemverPatch)

	// JSON 2.0 batched request prefix
	batchedRequestPrefix = []byte("[")

	// timeZeroVal is simply the zero value for a time.Time and is used to
	// avoid creating multiple instances.
	timeZeroVal time.Time
)

type commandHandler func(context.Context, *Server, interface{}) (interface{}, error)

// rpcHandlers maps RPC command strings to appropriate handler functions.
// This is set by init because help references rpcHandlers and thus causes
// a dependency loop.
var rpcHandlers map[types.Method]commandHandler
var rpcHandlersBeforeInit = map[types.Method]commandHandler{
	"connect":        handleConnect,
	"createrealm":    handleCreateRealm,
	"debuglevel":     handleDebugLevel,
	"disconnectnode": handleDisconnectNode,
	"getcuckoos":     handleGetCuckoos,
	"getflo":         handleGetFlo,
	"getheldflos":    handleGetHeldFlos,
	"getinfo":        handleGetInfo,
	"getknownnodes":  handleGetKnownNodes,
	"getpeerinfo":    handleGetPeerInfo,
	"getrealms":      handleGetRealms,
	"help":           handleHelp,
	"lookup":         handleLookup,
	"putflo":         handlePutFlo,
	"stop":           handleStop,
	"updateflo":      handleUpdateFlo,
	"version":        handleVersion,
}

// Commands that are available to a limited user.
var rpcLimited = map[string]struct{}{
	"getcuckoos":    {},
	"getflo":        {},
	"getheldflos":   {},
	"getinfo":       {},
	"getknownnodes": {},
	"getpeerinfo":   {},
	"getrealms":     {},
	"help":          {},
	"lookup":        {},
	"version":       {},
}

// rpcInternalError is a convenience function to convert an internal error to
// an RPC error with the appropriate code set.  It also logs the error to the
// RPC server subsystem since internal errors really should not occur.  The
// context parameter is only used in the log message and may be empty if it's
// not needed.
func rpcInternalError(errStr, context string) *dcrjson.RPCError {
	logStr := errStr
	if context != "" {
		logStr = context + ": " + errStr
	}
	log.Error(logStr)
	return dcrjson.NewRPCError(dcrjson.ErrRPCInternal.Code, errStr)
}

// rpcInvalidError is a convenience function to convert an invalid parameter
// error to an RPC error with the appropriate code set.
func rpcInvalidError(fmtStr string, args ...interface{}) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCInvalidParameter,
		fmt.Sprintf(fmtStr, args...))
}

// rpcDeserializationError is a convenience function to convert a
// deserialization error to an RPC error with the appropriate code set.
func rpcDeserializationError(fmtStr string, args ...interface{}) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCDeserialization,
		fmt.Sprintf(fmtStr, args...))
}

// rpcRuleError is a convenience function to convert a
// rule error to an RPC error with the appropriate code set.
func rpcRuleError(fmtStr string, args ...interface{}) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCMisc,
		fmt.Sprintf(fmtStr, args...))
}

// rpcDecodeHexError is a convenience function for returning a nicely formatted
// RPC error which indicates the provided hex string failed to decode.
func rpcDecodeHexError(gotHex string) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCDecodeHexString,
		fmt.Sprintf("Argument must be hexadecimal string (not %q)",
			gotHex))
}

// rpcNoFloInfoError is a convenience function for returning a nicely
// formatted RPC error which indicates there is no information available for
// the provided object identifier.
func rpcNoFloInfoError(id *flid.ID) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCNoTxInfo,
		fmt.Sprintf("No information available about object %v",
			id))
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// handleConnect implements the connect command.
func handleConnect(_ context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.ConnectCmd)

	addr := normalizeAddress(c.Addr, s.cfg.DefaultPort)
	err := s.cfg.ConnMgr.Connect(addr, *c.Permanent)
	if err != nil {
		return nil, rpcInvalidError("%v: %v", c.Addr, err)
	}

	// no data returned unless an error.
	return nil, nil
}

// handleCreateRealm implements the createrealm command.
func handleCreateRealm(ctx context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.CreateRealmCmd)

	def := &flo.Realm{
		Name: c.Name,
		Config: flo.RealmConfig{
			Spread:   *c.Spread,
			MaxSpace: *c.MaxSpace,
		},
	}
	if c.MaxFloSize != nil {
		def.Config.MaxFloSize = *c.MaxFloSize
	}
	if c.Members != nil {
		members := make([]flid.ID, 0, len(*c.Members))
		for _, member := range *c.Members {
			id, err := flid.NewIDFromStr(member)
			if err != nil {
				return nil, rpcInvalidError("Invalid member %q: %v",
					member, err)
			}
			members = append(members, *id)
		}
		def.Config.Members = members
	}

	// The new realm is governed by the local node's key.
	rules := s.cfg.Signer.Condition()
	f, err := flo.CreateRealm(def, &rules, time.Now())
	if err != nil {
		return nil, rpcInvalidError("Failed to create realm: %v", err)
	}

	placements, err := s.cfg.Store.Put(ctx, f)
	if err != nil {
		return nil, rpcRuleError("Failed to store realm object: %v", err)
	}

	return types.CreateRealmResult{
		ID:         f.ID().String(),
		Placements: int32(placements),
	}, nil
}

// handleDebugLevel implements the debuglevel command.
func handleDebugLevel(_ context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.DebugLevelCmd)

	// Special show command to list supported subsystems.
	if c.LevelSpec == "show" {
		return fmt.Sprintf("Supported subsystems %v",
			s.cfg.LogManager.SupportedSubsystems()), nil
	}

	err := s.cfg.LogManager.ParseAndSetDebugLevels(c.LevelSpec)
	if err != nil {
		return nil, rpcInvalidError("Invalid debug level %v: %v",
			c.LevelSpec, err)
	}

	return "Done.", nil
}

// handleDisconnectNode implements the disconnectnode command.
func handleDisconnectNode(_ context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.DisconnectNodeCmd)

	id, err := flid.NewIDFromStr(c.NodeID)
	if err != nil {
		return nil, rpcInvalidError("Invalid node ID %q: %v", c.NodeID,
			err)
	}

	err = s.cfg.ConnMgr.DisconnectByID(*id)
	if err != nil {
		return nil, rpcInvalidError("%v: %v", c.NodeID, err)
	}

	// no data returned unless an error.
	return nil, nil
}

// handleGetCuckoos implements the getcuckoos command.
func handleGetCuckoos(_ context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.GetCuckoosCmd)

	parent, err := flid.NewIDFromStr(c.Parent)
	if err != nil {
		return nil, rpcInvalidError("Invalid object ID %q: %v", c.Parent,
			err)
	}

	ids := s.cfg.Store.CuckooIDs(*parent)
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		result = append(result, id.String())
	}
	sort.Strings(result)
	return result, nil
}

// handleGetFlo implements the getflo command.
func handleGetFlo(ctx context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.GetFloCmd)

	id, err := flid.NewIDFromStr(c.ID)
	if err != nil {
		return nil, rpcInvalidError("Invalid object ID %q: %v", c.ID, err)
	}

	f, err := s.cfg.Store.Get(ctx, *id)
	if err != nil {
		return nil, rpcNoFloInfoError(id)
	}

	// When the verbose flag isn't set, simply return the serialized object
	// as a hex-encoded string.
	if c.Verbose != nil && !*c.Verbose {
		serialized, err := f.Bytes()
		if err != nil {
			return nil, rpcInternalError(err.Error(),
				"Could not serialize object")
		}
		return hex.EncodeToString(serialized), nil
	}

	meta, err := f.Meta()
	if err != nil {
		return nil, rpcInternalError(err.Error(),
			"Could not describe object")
	}
	wireFlo := f.WireFlo()
	result := types.GetFloResult{
		ID:      meta.ID.String(),
		Realm:   wireFlo.Realm.String(),
		Type:    wireFlo.Type,
		Version: meta.Version,
		Size:    int32(meta.Size),
		Data:    hex.EncodeToString(f.Data()),
	}
	if ttl, ok := f.TTL(); ok {
		result.TTLSeconds = int64(ttl / time.Second)
	}
	if parent, ok := f.CuckooParent(); ok {
		result.CuckooParent = parent.String()
	}
	return &result, nil
}

// handleGetHeldFlos implements the getheldflos command.
func handleGetHeldFlos(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	metas := s.cfg.Store.HeldMetas()
	results := make([]types.FloMetaResult, 0, len(metas))
	for _, meta := range metas {
		results = append(results, types.FloMetaResult{
			ID:      meta.ID.String(),
			Version: meta.Version,
			Size:    meta.Size,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// handleGetInfo implements the getinfo command.
func handleGetInfo(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	ret := &types.InfoNodeResult{
		Version: int32(1000000*version.Major + 10000*version.Minor +
			100*version.Patch),
		ProtocolVersion: int32(s.cfg.MaxProtocolVersion),
		NodeID:          s.cfg.NodeID.String(),
		Connections:     s.cfg.ConnMgr.ConnectedCount(),
		KnownNodes:      int32(len(s.cfg.Overlay.KnownNodes())),
		Realms:          int32(len(s.cfg.Store.Realms())),
		HeldFlos:        int32(len(s.cfg.Store.HeldMetas())),
		Proxy:           s.cfg.Proxy,
		SimNet:          s.cfg.SimNet,
	}

	return ret, nil
}

// handleGetKnownNodes implements the getknownnodes command.
func handleGetKnownNodes(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	self := s.cfg.NodeID
	ids := s.cfg.Overlay.KnownNodes()
	results := make([]types.GetKnownNodesResult, 0, len(ids))
	for _, id := range ids {
		bucket := flid.PrefixLen(self, id)
		if bucket >= flid.IDBits {
			bucket = flid.IDBits - 1
		}
		results = append(results, types.GetKnownNodesResult{
			NodeID: id.String(),
			Bucket: int32(bucket),
		})
	}
	return results, nil
}

// handleGetPeerInfo implements the getpeerinfo command.
func handleGetPeerInfo(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	peers := s.cfg.ConnMgr.ConnectedPeers()
	infos := make([]*types.GetPeerInfoResult, 0, len(peers))
	for _, p := range peers {
		info := &types.GetPeerInfoResult{
			NodeID:    p.ID().String(),
			Addr:      p.Addr(),
			Inbound:   p.Inbound(),
			Permanent: p.Permanent(),
			LastSend:  p.LastSend().Unix(),
			LastRecv:  p.LastRecv().Unix(),
			BytesSent: p.BytesSent(),
			BytesRecv: p.BytesReceived(),
			ConnTime:  p.TimeConnected().Unix(),
			Version:   p.ProtocolVersion(),
			SubVer:    p.UserAgent(),
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].NodeID < infos[j].NodeID
	})
	return infos, nil
}

// handleGetRealms implements the getrealms command.
func handleGetRealms(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	realms := s.cfg.Store.Realms()
	results := make([]types.RealmResult, 0, len(realms))
	for _, info := range realms {
		results = append(results, types.RealmResult{
			ID:       info.ID.String(),
			Name:     info.Name,
			Spread:   info.Spread,
			MaxSpace: info.MaxSpace,
			Usage:    info.Usage,
			Objects:  int32(info.Objects),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// handleHelp implements the help command.
func handleHelp(_ context.Context, _ *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.HelpCmd)

	// Provide a usage overview of all commands when no specific command
	// was specified.
	var command string
	if c.Command != nil {
		command = *c.Command
	}
	if command == "" {
		usages := make([]string, 0, len(rpcHandlers))
		for method := range rpcHandlers {
			usage, err := dcrjson.MethodUsageText(method)
			if err != nil {
				return nil, rpcInternalError(err.Error(),
					"Failed to generate RPC usage")
			}
			usages = append(usages, usage)
		}
		sort.Strings(usages)
		return strings.Join(usages, "\n"), nil
	}

	// Check that the command asked for is supported and implemented.
	if _, ok := rpcHandlers[types.Method(command)]; !ok {
		return nil, rpcInvalidError("Unknown command: %v", command)
	}

	usage, err := dcrjson.MethodUsageText(types.Method(command))
	if err != nil {
		return nil, rpcInternalError(err.Error(),
			"Failed to generate RPC usage")
	}
	return usage, nil
}

// handleLookup implements the lookup command.
func handleLookup(ctx context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.LookupCmd)

	target, err := flid.NewIDFromStr(c.Target)
	if err != nil {
		return nil, rpcInvalidError("Invalid target ID %q: %v", c.Target,
			err)
	}

	closest, err := s.cfg.Overlay.Lookup(ctx, *target)
	if err != nil {
		return nil, rpcInternalError(err.Error(), "Lookup failed")
	}

	result := types.LookupResult{
		Target:  target.String(),
		Closest: make([]string, 0, len(closest)),
	}
	for _, id := range closest {
		result.Closest = append(result.Closest, id.String())
	}
	return &result, nil
}

// handlePutFlo implements the putflo command.
func handlePutFlo(ctx context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.PutFloCmd)

	hexStr := c.HexFlo
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	serialized, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, rpcDecodeHexError(hexStr)
	}
	f, err := flo.NewFloFromBytes(serialized)
	if err != nil {
		return nil, rpcDeserializationError("Could not decode object: %v",
			err)
	}

	placements, err := s.cfg.Store.Put(ctx, f)
	if err != nil {
		return nil, rpcRuleError("Failed to store object: %v", err)
	}

	return types.PutFloResult{
		ID:         f.ID().String(),
		Placements: int32(placements),
	}, nil
}

// handleStop implements the stop command.
func handleStop(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	select {
	case s.requestProcessShutdown <- struct{}{}:
	default:
	}
	return "fledgerd stopping.", nil
}

// handleUpdateFlo implements the updateflo command.
func handleUpdateFlo(ctx context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*types.UpdateFloCmd)

	id, err := flid.NewIDFromStr(c.ID)
	if err != nil {
		return nil, rpcInvalidError("Invalid object ID %q: %v", c.ID, err)
	}

	hexStr := c.HexUpdate
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	serialized, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, rpcDecodeHexError(hexStr)
	}
	var u wire.Update
	err = u.Decode(bytes.NewReader(serialized), wire.ProtocolVersion)
	if err != nil {
		return nil, rpcDeserializationError("Could not decode update: %v",
			err)
	}

	acks, err := s.cfg.Store.Update(ctx, *id, &u)
	if err != nil {
		return nil, rpcRuleError("Failed to apply update: %v", err)
	}

	return types.UpdateFloResult{
		ID:      id.String(),
		Version: u.Version,
		Acks:    int32(acks),
	}, nil
}

// handleVersion implements the version command.
func handleVersion(_ context.Context, _ *Server, _ interface{}) (interface{}, error) {
	runtimeVer := strings.ReplaceAll(runtime.Version(), ".", "-")
	buildMeta := version.NormalizeString(runtimeVer)
	build := version.NormalizeString(version.BuildMetadata)
	if build != "" {
		buildMeta = fmt.Sprintf("%s.%s", build, buildMeta)
	}
	result := map[string]types.VersionResult{
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
	}
	return result, nil
}

// Server provides a concurrent safe RPC server to a fledger node.
type Server struct {
	numClients   atomic.Int32
	numWSClients atomic.Int32

	cfg                    Config
	hmac                   hash.Hash
	hmacMu                 sync.Mutex
	authsha                [sha256.Size]byte
	limitauthsha           [sha256.Size]byte
	statusLines            map[int]string
	statusLock             sync.RWMutex
	wg                     sync.WaitGroup
	requestProcessShutdown chan struct{}
}

// httpStatusLine returns a response Status-Line (RFC 2616 Section 6.1) for
// the given request and response status code.  This function was lifted and
// adapted from the standard library HTTP server code since it's not exported.
func (s *Server) httpStatusLine(req *http.Request, code int) string {
	// Fast path:
	key := code
	proto11 := req.ProtoAtLeast(1, 1)
	if !proto11 {
		key = -key
	}
	s.statusLock.RLock()
	line, ok := s.statusLines[key]
	s.statusLock.RUnlock()
	if ok {
		return line
	}

	// Slow path:
	proto := "HTTP/1.0"
	if proto11 {
		proto = "HTTP/1.1"
	}
	codeStr := strconv.Itoa(code)
	text := http.StatusText(code)
	if text != "" {
		line = proto + " " + codeStr + " " + text + "\r\n"
		s.statusLock.Lock()
		s.statusLines[key] = line
		s.statusLock.Unlock()
	} else {
		text = "status code " + codeStr
		line = proto + " " + codeStr + " " + text + "\r\n"
	}

	return line
}

// writeHTTPResponseHeaders writes the necessary response headers prior to
// writing an HTTP body given a request to use for protocol negotiation,
// headers to write, a status code, and a writer.
func (s *Server) writeHTTPResponseHeaders(req *http.Request, headers http.Header, code int, w io.Writer) error {
	_, err := io.WriteString(w, s.httpStatusLine(req, code))
	if err != nil {
		return err
	}

	err = headers.Write(w)
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, "\r\n")
	return err
}

// shutdown terminates the processes of the rpc server.
func (s *Server) shutdown() error {
	log.Warnf("RPC server shutting down")
	for _, listener := range s.cfg.Listeners {
		err := listener.Close()
		if err != nil {
			log.Errorf("Problem shutting down rpc: %v", err)
			return err
		}
	}
	s.wg.Wait()
	log.Infof("RPC server shutdown complete")
	return nil
}

// RequestedProcessShutdown returns a channel that is sent to when an
// authorized RPC client requests the process to shutdown.  If the request can
// not be read immediately, it is dropped.
func (s *Server) RequestedProcessShutdown() <-chan struct{} {
	return s.requestProcessShutdown
}

// limitConnections responds with a 503 service unavailable and returns true if
// adding another client would exceed the maximum allow RPC clients.
//
// This function is safe for concurrent access.
func (s *Server) limitConnections(w http.ResponseWriter, remoteAddr string) bool {
	if int(s.numClients.Load()+1) > s.cfg.RPCMaxClients {
		log.Infof("Max RPC clients exceeded [%d] - "+
			"disconnecting client %s", s.cfg.RPCMaxClients,
			remoteAddr)
		http.Error(w, "503 Too busy.  Try again later.",
			http.StatusServiceUnavailable)
		return true
	}
	return false
}

// incrementClients adds one to the number of connected RPC clients.  Note
// this only applies to standard clients.  Websocket clients have their own
// limits and are tracked separately.
//
// This function is safe for concurrent access.
func (s *Server) incrementClients() {
	s.numClients.Add(1)
}

// decrementClients subtracts one from the number of connected RPC clients.
// Note this only applies to standard clients.  Websocket clients have their
// own limits and are tracked separately.
//
// This function is safe for concurrent access.
func (s *Server) decrementClients() {
	s.numClients.Add(-1)
}

// authMAC calculates the MAC (currently HMAC-SHA256) of an Authorization
// header, keyed with a random key created during server creation.  The MAC is
// appended to dst, and the appended slice is returned.
func (s *Server) authMAC(dst, auth []byte) []byte {
	s.hmacMu.Lock()
	s.hmac.Reset()
	s.hmac.Write(auth)
	dst = s.hmac.Sum(dst)
	s.hmacMu.Unlock()
	return dst
}

// checkAuthMAC checks the HTTP Basic authentication string by comparing
// it with the already generated hash.
//
// The first bool return value signifies auth success (true if successful) and
// the second bool return value specifies whether the user can change the state
// of the server (true) or whether the user is limited (false).
func (s *Server) checkAuthMAC(auth, remoteAddr string) (bool, bool) {
	mac := make([]byte, 0, sha256.Size)
	mac = s.authMAC(mac, []byte(auth))

	cmp := subtle.ConstantTimeCompare(mac, s.authsha[:])
	limitcmp := subtle.ConstantTimeCompare(mac, s.limitauthsha[:])
	if cmp|limitcmp == 0 {
		// Request's auth doesn't match either user
		log.Warnf("RPC authentication failure from %s", remoteAddr)
		return false, false
	}
	return true, cmp == 1
}

// checkAuthUserPass checks the correctness of username and password by
// generating the corresponding HTTP Basic authentication string then
// compare the string with the already generated hash.
//
// The first bool return value signifies auth success (true if successful) and
// the second bool return value specifies whether the user can change the state
// of the server (true) or whether the user is limited (false).
func (s *Server) checkAuthUserPass(user, pass, remoteAddr string) (bool, bool) {
	login := user + ":" + pass
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
	return s.checkAuthMAC(auth, remoteAddr)
}

// checkAuth checks the HTTP Basic authentication supplied by an RPC client in
// the HTTP request r.  If the supplied authentication does not match the
// username and password expected, a non-nil error is returned.
//
// This check is time-constant.
//
// The first bool return value signifies auth success (true if successful) and
// the second bool return value specifies whether the user can change the state
// of the server (true) or whether the user is limited (false). The second is
// always false if the first is.
func (s *Server) checkAuth(r *http.Request, require bool) (bool, bool, error) {
	// If admin-level RPC user and pass options are not set, this always
	// succeeds.  This will be the case when TLS client certificates are
	// being used for authentication.
	if s.authsha == ([32]byte{}) {
		return true, true, nil
	}

	authhdr := r.Header["Authorization"]
	if len(authhdr) == 0 {
		if require {
			log.Warnf("RPC authentication failure from %s",
				r.RemoteAddr)
			return false, false, errors.New("auth failure")
		}

		return false, false, nil
	}

	authed, isAdmin := s.checkAuthMAC(authhdr[0], r.RemoteAddr)
	if !authed {
		return false, false, errors.New("auth failure")
	}
	return authed, isAdmin, nil
}

// parsedRPCCmd represents a JSON-RPC request object that has been parsed into
// a known concrete command along with any error that might have happened while
// parsing it.
type parsedRPCCmd struct {
	jsonrpc dcrjson.RPCVersion
	id      interface{}
	method  types.Method
	params  interface{}
	err     *dcrjson.RPCError
}

// standardCmdResult checks that a parsed command is a standard JSON-RPC command
// and runs the appropriate handler to reply to the command.  Any commands which
// are not recognized or not implemented will return an error suitable for use
// in replies.
func (s *Server) standardCmdResult(ctx context.Context, cmd *parsedRPCCmd) (interface{}, error) {
	handler, ok := rpcHandlers[cmd.method]
	if !ok {
		return nil, dcrjson.ErrRPCMethodNotFound
	}

	return handler(ctx, s, cmd.params)
}

// parseCmd parses a JSON-RPC request object into known concrete command.  The
// err field of the returned parsedRPCCmd struct will contain an RPC error that
// is suitable for use in replies if the command is invalid in some way such as
// an unregistered command or invalid parameters.
func parseCmd(request *dcrjson.Request) *parsedRPCCmd {
	method := types.Method(request.Method)
	parsedCmd := parsedRPCCmd{
		jsonrpc: request.Jsonrpc,
		id:      request.ID,
		method:  method,
	}

	params, err := dcrjson.ParseParams(method, request.Params)
	if err != nil {
		// Produce a relevant error when the requested method is not
		// registered.
		if errors.Is(err, dcrjson.ErrUnregisteredMethod) {
			parsedCmd.err = dcrjson.ErrRPCMethodNotFound
			return &parsedCmd
		}

		// Otherwise, some type of invalid parameters is the cause, so
		// produce the equivalent RPC error.
		parsedCmd.err = rpcInvalidError("Failed to parse request: %v", err)
		return &parsedCmd
	}

	parsedCmd.params = params
	return &parsedCmd
}

// createMarshalledReply returns a new marshalled JSON-RPC response given the
// passed parameters.  It will automatically convert errors that are not of the
// type *dcrjson.RPCError to the appropriate type as needed.
func createMarshalledReply(rpcVersion dcrjson.RPCVersion, id interface{}, result interface{}, replyErr error) ([]byte, error) {
	var jsonErr *dcrjson.RPCError
	if replyErr != nil && !errors.As(replyErr, &jsonErr) {
		jsonErr = rpcInternalError(replyErr.Error(), "")
	}

	// Clients speaking JSON-RPC 1.0 are not required to provide a version
	// field, so fall back to 1.0 rather than refusing to answer them.
	if !rpcVersion.IsValid() {
		rpcVersion = dcrjson.RPCVersion1
	}
	return dcrjson.MarshalResponse(rpcVersion, id, result, jsonErr)
}

// processRequest determines the incoming request type (single or batched),
// parses it and returns a marshalled response.
func (s *Server) processRequest(ctx context.Context, request *dcrjson.Request, isAdmin bool) []byte {
	var result interface{}
	var jsonErr error

	if !isAdmin {
		if _, ok := rpcLimited[request.Method]; !ok {
			jsonErr = rpcInvalidError("limited user not " +
				"authorized for this method")
		}
	}

	if jsonErr == nil {
		if request.Method == "" {
			jsonErr = &dcrjson.RPCError{
				Code:    dcrjson.ErrRPCInvalidRequest.Code,
				Message: "Invalid request: malformed",
			}
			msg, err := createMarshalledReply(request.Jsonrpc, request.ID, result, jsonErr)
			if err != nil {
				log.Errorf("Failed to marshal reply: %v", err)
				return nil
			}
			return msg
		}

		// Valid requests with no ID (notifications) must not have a response
		// per the JSON-RPC spec.
		if request.ID == nil {
			return nil
		}

		// Attempt to parse the JSON-RPC request into a known
		// concrete command.
		parsedCmd := parseCmd(request)
		if parsedCmd.err != nil {
			jsonErr = parsedCmd.err
		} else {
			result, jsonErr = s.standardCmdResult(ctx, parsedCmd)
		}
	}

	// Marshal the response.
	msg, err := createMarshalledReply(request.Jsonrpc, request.ID, result, jsonErr)
	if err != nil {
		log.Errorf("Failed to marshal reply: %v", err)
		return nil
	}
	return msg
}

// jsonRPCRead handles reading and responding to RPC messages.
func (s *Server) jsonRPCRead(sCtx context.Context, w http.ResponseWriter, r *http.Request, isAdmin bool) {
	select {
	case <-sCtx.Done():
		return
	default:
	}

	// Read and close the JSON-RPC request body from the caller.
	bodyReader := io.LimitReader(r.Body, rpcReadLimitAuthenticated)
	body, err := io.ReadAll(bodyReader)
	r.Body.Close()
	if err != nil {
		errMsg := fmt.Sprintf("error reading JSON message: %v", err)
		errCode := http.StatusBadRequest
		http.Error(w, strconv.Itoa(errCode)+" "+errMsg,
			errCode)
		return
	}

	// Unfortunately, the http server doesn't provide the ability to change
	// the read deadline for the new connection and having one breaks long
	// polling.  However, not having a read deadline on the initial
	// connection would mean clients can connect and idle forever.  Thus,
	// hijack the connection from the HTTP server, clear the read deadline,
	// and handle writing the response manually.
	hj, ok := w.(http.Hijacker)
	if !ok {
		errMsg := "webserver doesn't support hijacking"
		log.Warnf(errMsg)
		errCode := http.StatusInternalServerError
		http.Error(w, strconv.Itoa(errCode)+" "+errMsg,
			errCode)
		return
	}

	conn, buf, err := hj.Hijack()
	if err != nil {
		log.Warnf("Failed to hijack HTTP connection: %v", err)
		errCode := http.StatusInternalServerError
		http.Error(w, strconv.Itoa(errCode)+" "+
			err.Error(), errCode)
		return
	}

	defer conn.Close()
	defer buf.Flush()
	conn.SetReadDeadline(timeZeroVal)
	// Setup a close notifier.  Since the connection is hijacked,
	// the CloseNotifier on the ResponseWriter is not available.
	ctx, cancel := context.WithCancel(sCtx)
	defer cancel()

	go func() {
		_, err := conn.Read(make([]byte, 1))
		if err != nil {
			cancel()
		}
	}()

	var results []json.RawMessage
	var batchSize int
	var batchedRequest bool

	// Determine request type
	if bytes.HasPrefix(body, batchedRequestPrefix) {
		batchedRequest = true
	}

	// Process a single request
	if !batchedRequest {
		var req dcrjson.Request
		var resp json.RawMessage
		err = json.Unmarshal(body, &req)
		if err != nil {
			jsonErr := &dcrjson.RPCError{
				Code:    dcrjson.ErrRPCParse.Code,
				Message: fmt.Sprintf("Failed to parse request: %v", err),
			}
			resp, err = dcrjson.MarshalResponse("1.0", nil, nil, jsonErr)
			if err != nil {
				log.Errorf("Failed to create reply: %v", err)
			}
		} else {
			resp = s.processRequest(ctx, &req, isAdmin)
		}

		if resp != nil {
			results = append(results, resp)
		}
	}

	// Process a batched request
	if batchedRequest {
		var batchedRequests []json.RawMessage
		var resp json.RawMessage
		err = json.Unmarshal(body, &batchedRequests)
		if err != nil {
			jsonErr := &dcrjson.RPCError{
				Code:    dcrjson.ErrRPCParse.Code,
				Message: fmt.Sprintf("Failed to parse request: %v", err),
			}
			resp, err = dcrjson.MarshalResponse("2.0", nil, nil, jsonErr)
			if err != nil {
				log.Errorf("Failed to create reply: %v", err)
			}

			if resp != nil {
				results = append(results, resp)
			}
		}

		if err == nil {
			// Response with an empty batch error if the batch size is zero
			if len(batchedRequests) == 0 {
				jsonErr := &dcrjson.RPCError{
					Code:    dcrjson.ErrRPCInvalidRequest.Code,
					Message: "Invalid request: empty batch",
				}
				resp, err = dcrjson.MarshalResponse("2.0", nil, nil, jsonErr)
				if err != nil {
					log.Errorf("Failed to marshal reply: %v", err)
				}

				if resp != nil {
					results = append(results, resp)
				}
			}

			// Process each batch entry individually
			if len(batchedRequests) > 0 {
				batchSize = len(batchedRequests)

				for _, entry := range batchedRequests {
					var req dcrjson.Request
					err := json.Unmarshal(entry, &req)
					if err != nil {
						jsonErr := &dcrjson.RPCError{
							Code: dcrjson.ErrRPCInvalidRequest.Code,
							Message: fmt.Sprintf("Invalid request: %v",
								err),
						}
						resp, err = dcrjson.MarshalResponse("2.0", nil, nil, jsonErr)
						if err != nil {
							log.Errorf("Failed to create reply: %v", err)
						}

						if resp != nil {
							results = append(results, resp)
						}
						continue
					}

					resp = s.processRequest(ctx, &req, isAdmin)
					if resp != nil {
						results = append(results, resp)
					}
				}
			}
		}
	}

	var msg = []byte{}
	if batchedRequest && batchSize > 0 {
		if len(results) > 0 {
			// Form the batched response json
			var buffer bytes.Buffer
			buffer.WriteByte('[')
			for idx, reply := range results {
				if idx == len(results)-1 {
					buffer.Write(reply)
					buffer.WriteByte(']')
					break
				}
				buffer.Write(reply)
				buffer.WriteByte(',')
			}
			msg = buffer.Bytes()
		}
	}

	if !batchedRequest || batchSize == 0 {
		// Respond with the first results entry for single requests
		if len(results) > 0 {
			msg = results[0]
		}
	}

	// Write the response.
	err = s.writeHTTPResponseHeaders(r, w.Header(), http.StatusOK, buf)
	if err != nil {
		log.Error(err)
		return
	}
	if _, err := buf.Write(msg); err != nil {
		log.Errorf("Failed to write marshalled reply: %v", err)
	}

	// Terminate with newline for line-delimited clients.
	if err := buf.WriteByte('\n'); err != nil {
		log.Errorf("Failed to append terminating newline to reply: %v", err)
	}
}

// websocketHandler serves JSON-RPC requests over a websocket connection.  It
// reads requests from the connection, dispatches them through the standard
// request processing path, and writes back the marshalled responses until the
// connection is closed or the server shuts down.
func (s *Server) websocketHandler(ctx context.Context, conn *websocket.Conn, remoteAddr string, isAdmin bool) {
	// Clear the read deadline that was set before the websocket hijacked
	// the connection.
	conn.SetReadDeadline(timeZeroVal)

	// Limit max number of websocket clients.
	log.Infof("New websocket client %s", remoteAddr)
	if int(s.numWSClients.Add(1)) > s.cfg.RPCMaxWebsockets {
		log.Infof("Max websocket clients exceeded [%d] - "+
			"disconnecting client %s", s.cfg.RPCMaxWebsockets,
			remoteAddr)
		s.numWSClients.Add(-1)
		conn.Close()
		return
	}
	defer func() {
		conn.Close()
		s.numWSClients.Add(-1)
		log.Infof("Disconnected websocket client %s", remoteAddr)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			// Log the error if it's not due to disconnecting.
			if !errors.Is(err, io.EOF) &&
				!errors.Is(err, io.ErrUnexpectedEOF) &&
				!websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {

				log.Errorf("Websocket receive error from %s: %v",
					remoteAddr, err)
			}
			return
		}

		var req dcrjson.Request
		var reply json.RawMessage
		err = json.Unmarshal(payload, &req)
		if err != nil {
			jsonErr := &dcrjson.RPCError{
				Code:    dcrjson.ErrRPCParse.Code,
				Message: fmt.Sprintf("Failed to parse request: %v", err),
			}
			reply, err = dcrjson.MarshalResponse("1.0", nil, nil, jsonErr)
			if err != nil {
				log.Errorf("Failed to create reply: %v", err)
				continue
			}
		} else {
			reply = s.processRequest(ctx, &req, isAdmin)
			if reply == nil {
				continue
			}
		}

		err = conn.WriteMessage(websocket.TextMessage, reply)
		if err != nil {
			return
		}
	}
}

// jsonAuthFail sends a message back to the client if the http auth is rejected.
func jsonAuthFail(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", `Basic realm="fledgerd RPC"`)
	http.Error(w, "401 Unauthorized.", http.StatusUnauthorized)
}

// logForwarder provides logic to forward log messages writing to an io.Writer
// to the rpcserver logger.
type logForwarder struct{}

// Write implements the io.Writer interface and forwards the message to the
// active rpcserver logger.
func (logForwarder) Write(p []byte) (int, error) {
	log.Error(strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}

// equalASCIIFold returns true if s is equal to t with ASCII case folding as
// defined in RFC 4790.  This function was lifted from the gorilla websocket
// code since it is not exported.
func equalASCIIFold(s, t string) bool {
	for s != "" && t != "" {
		sr, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		tr, size := utf8.DecodeRuneInString(t)
		t = t[size:]
		if sr == tr {
			continue
		}
		if 'A' <= sr && sr <= 'Z' {
			sr = sr + 'a' - 'A'
		}
		if 'A' <= tr && tr <= 'Z' {
			tr = tr + 'a' - 'A'
		}
		if sr != tr {
			return false
		}
	}
	return s == t
}

// route sets up the endpoints of the rpc server.
func (s *Server) route(ctx context.Context) *http.Server {
	rpcServeMux := http.NewServeMux()
	httpServer := &http.Server{
		Handler: rpcServeMux,

		// Use the provided context as the parent context for all requests to
		// ensure handlers are able to react to both client disconnects as well
		// as shutdown via the provided context.
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},

		// Timeout connections which don't complete the initial
		// handshake within the allowed timeframe.
		ReadTimeout: time.Second * rpcAuthTimeoutSeconds,

		// Reroute http server error logging through the rpcserver
		// logger.
		ErrorLog: stdlog.New(logForwarder{}, "", 0),
	}
	rpcServeMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		w.Header().Set("Content-Type", "application/json")
		r.Close = true

		// Limit the number of connections to max allowed.
		if s.limitConnections(w, r.RemoteAddr) {
			return
		}

		// Keep track of the number of connected clients.
		s.incrementClients()
		defer s.decrementClients()
		_, isAdmin, err := s.checkAuth(r, true)
		if err != nil {
			jsonAuthFail(w)
			return
		}

		// Read and respond to the request.
		s.jsonRPCRead(r.Context(), w, r, isAdmin)
	})

	// Websocket endpoint.
	rpcServeMux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		_, isAdmin, err := s.checkAuth(r, true)
		if err != nil {
			jsonAuthFail(w)
			return
		}

		// Attempt to upgrade the connection to a websocket connection using
		// the default size for read/write buffers.
		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow requests with no origin header set.
				origin := r.Header["Origin"]
				if len(origin) == 0 {
					return true
				}

				// Reject requests with origin headers that are not valid URLs.
				originURL, err := url.Parse(origin[0])
				if err != nil {
					return false
				}

				// Allow local resources on browsers that set the origin header
				// for them.  In particular:
				// - Firefox which sets it to "null"
				// - Chrome which sets it to "file://"
				// - Edge which sets it to "file://"
				if originURL.Scheme == "file" || originURL.Path == "null" {
					return true
				}

				// Strip the port from both the origin and request hosts
				// since browsers include it in the origin header.
				originHost := originURL.Host
				requestHost := r.Host
				if host, _, err := net.SplitHostPort(originHost); err == nil {
					originHost = host
				}
				if host, _, err := net.SplitHostPort(requestHost); err == nil {
					requestHost = host
				}

				// Reject mismatched hosts.
				return equalASCIIFold(originHost, requestHost)
			},
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			var herr websocket.HandshakeError
			if !errors.As(err, &herr) {
				log.Errorf("Unexpected websocket error: %v", err)
			}
			return
		}
		ws.SetPingHandler(func(payload string) error {
			log.Debugf("ping received: len %d", len(payload))
			log.Tracef("ping payload: %q", payload)
			var netErr net.Error
			err := ws.WriteControl(websocket.PongMessage, []byte(payload),
				time.Now().Add(websocketPongTimeout))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) &&
				!(errors.As(err, &netErr) && netErr.Timeout()) {

				log.Errorf("Failed to send pong: %v", err)
				return err
			}
			return nil
		})
		ws.SetPongHandler(func(payload string) error {
			log.Debugf("pong received: len %d", len(payload))
			log.Tracef("pong payload: %q", payload)
			return nil
		})
		ws.SetReadLimit(websocketReadLimitAuthenticated)
		s.websocketHandler(r.Context(), ws, r.RemoteAddr, isAdmin)
	})
	return httpServer
}

// Run starts the rpc server and its listeners.  It blocks until the provided
// context is cancelled.
func (s *Server) Run(ctx context.Context) {
	log.Trace("Starting RPC server")
	server := s.route(ctx)
	for _, listener := range s.cfg.Listeners {
		s.wg.Add(1)
		go func(listener net.Listener) {
			log.Infof("RPC server listening on %s", listener.Addr())
			server.Serve(listener)
			log.Tracef("RPC listener done for %s", listener.Addr())
			s.wg.Done()
		}(listener)
	}

	<-ctx.Done()
	err := s.shutdown()
	if err != nil {
		log.Error(err)
		return
	}
}

// Config is a descriptor containing the RPC server configuration.
type Config struct {
	// Listeners defines a slice of listeners for which the RPC server will
	// take ownership of and accept connections.  Since the RPC server takes
	// ownership of these listeners, they will be closed when the RPC server
	// is stopped.
	Listeners []net.Listener

	// ConnMgr defines the connection manager for the RPC server to use.  It
	// provides the RPC server with a means to do things such as connect,
	// disconnect, and query peers as well as other connection-related data
	// and tasks.
	ConnMgr ConnManager

	// Overlay defines the routing layer for the RPC server to use.
	Overlay Overlay

	// Store defines the replicated object store for the RPC server to use.
	Store FloStore

	// LogManager defines the log manager for the RPC server to use.
	LogManager LogManager

	// NodeID is the identifier of the local node on the overlay.
	NodeID flid.ID

	// Signer holds the key the node signs self-originated objects with.
	Signer *ace.KeySigner

	// DefaultPort is the default overlay network port to append to
	// addresses which don't have one.
	DefaultPort string

	// Proxy defines the proxy that is being used for connections.
	Proxy string

	// These fields define the username and password for RPC connections and
	// limited RPC connections.
	RPCUser      string
	RPCPass      string
	RPCLimitUser string
	RPCLimitPass string

	// RPCMaxClients defines the max number of RPC clients for standard
	// connections.
	RPCMaxClients int

	// RPCMaxWebsockets defines the max number of RPC websocket connections.
	RPCMaxWebsockets int

	// SimNet represents whether or not the node is using simulation overlay
	// parameters.
	SimNet bool

	// MaxProtocolVersion is the max protocol version that the node
	// supports.
	MaxProtocolVersion uint32
}

// New returns a new instance of the Server struct.
func New(config *Config) (*Server, error) {
	rpc := Server{
		cfg:                    *config,
		statusLines:            make(map[int]string),
		requestProcessShutdown: make(chan struct{}),
	}
	key := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, key)
	if err != nil {
		return nil, err
	}
	rpc.hmac = hmac.New(sha256.New, key)
	if config.RPCUser != "" && config.RPCPass != "" {
		login := config.RPCUser + ":" + config.RPCPass
		auth := "Basic " +
			base64.StdEncoding.EncodeToString([]byte(login))
		rpc.authMAC(rpc.authsha[:0], []byte(auth))
	}
	if config.RPCLimitUser != "" && config.RPCLimitPass != "" {
		login := config.RPCLimitUser + ":" + config.RPCLimitPass
		auth := "Basic " +
			base64.StdEncoding.EncodeToString([]byte(login))
		rpc.authMAC(rpc.limitauthsha[:0], []byte(auth))
	}

	return &rpc, nil
}

func init() {
	rpcHandlers = rpcHandlersBeforeInit
}
