// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// NOTE: This file is intended to house the RPC commands that are supported by
// a fledger node server.

package types

import (
	"github.com/decred/dcrd/dcrjson/v4"
)

// ConnectCmd defines the connect JSON-RPC command.
type ConnectCmd struct {
	Addr      string
	Permanent *bool `jsonrpcdefault:"false"`
}

// NewConnectCmd returns a new instance which can be used to issue a connect
// JSON-RPC command.
//
// The parameters which are pointers indicate they are optional.  Passing nil
// for optional parameters will use the default value.
func NewConnectCmd(addr string, permanent *bool) *ConnectCmd {
	return &ConnectCmd{
		Addr:      addr,
		Permanent: permanent,
	}
}

// CreateRealmCmd defines the createrealm JSON-RPC command.
type CreateRealmCmd struct {
	Name       string
	Spread     *uint32 `jsonrpcdefault:"3"`
	MaxSpace   *uint64 `jsonrpcdefault:"1048576"`
	MaxFloSize *uint32
	Members    *[]string `jsonrpcusage:"[\"nodeid\",...]"`
}

// NewCreateRealmCmd returns a new instance which can be used to issue a
// createrealm JSON-RPC command.
//
// The parameters which are pointers indicate they are optional.  Passing nil
// for optional parameters will use the default value.
func NewCreateRealmCmd(name string, spread *uint32, maxSpace *uint64,
	maxFloSize *uint32, members *[]string) *CreateRealmCmd {

	return &CreateRealmCmd{
		Name:       name,
		Spread:     spread,
		MaxSpace:   maxSpace,
		MaxFloSize: maxFloSize,
		Members:    members,
	}
}

// DebugLevelCmd defines the debuglevel JSON-RPC command.  This command is not
// a standard command.  It is an extension for fledgerd.
type DebugLevelCmd struct {
	LevelSpec string `jsonrpcusage:"\"levelspec\""`
}

// NewDebugLevelCmd returns a new DebugLevelCmd which can be used to issue a
// debuglevel JSON-RPC command.  This command is not a standard command.  It
// is an extension for fledgerd.
func NewDebugLevelCmd(levelSpec string) *DebugLevelCmd {
	return &DebugLevelCmd{
		LevelSpec: levelSpec,
	}
}

// DisconnectNodeCmd defines the disconnectnode JSON-RPC command.
type DisconnectNodeCmd struct {
	NodeID string
}

// NewDisconnectNodeCmd returns a new instance which can be used to issue a
// disconnectnode JSON-RPC command.
func NewDisconnectNodeCmd(nodeID string) *DisconnectNodeCmd {
	return &DisconnectNodeCmd{
		NodeID: nodeID,
	}
}

// GetCuckoosCmd defines the getcuckoos JSON-RPC command.
type GetCuckoosCmd struct {
	Parent string
}

// NewGetCuckoosCmd returns a new instance which can be used to issue a
// getcuckoos JSON-RPC command.
func NewGetCuckoosCmd(parent string) *GetCuckoosCmd {
	return &GetCuckoosCmd{
		Parent: parent,
	}
}

// GetFloCmd defines the getflo JSON-RPC command.
type GetFloCmd struct {
	ID      string
	Verbose *bool `jsonrpcdefault:"true"`
}

// NewGetFloCmd returns a new instance which can be used to issue a getflo
// JSON-RPC command.
//
// The parameters which are pointers indicate they are optional.  Passing nil
// for optional parameters will use the default value.
func NewGetFloCmd(id string, verbose *bool) *GetFloCmd {
	return &GetFloCmd{
		ID:      id,
		Verbose: verbose,
	}
}

// GetHeldFlosCmd defines the getheldflos JSON-RPC command.
type GetHeldFlosCmd struct{}

// NewGetHeldFlosCmd returns a new instance which can be used to issue a
// getheldflos JSON-RPC command.
func NewGetHeldFlosCmd() *GetHeldFlosCmd {
	return &GetHeldFlosCmd{}
}

// GetInfoCmd defines the getinfo JSON-RPC command.
type GetInfoCmd struct{}

// NewGetInfoCmd returns a new instance which can be used to issue a getinfo
// JSON-RPC command.
func NewGetInfoCmd() *GetInfoCmd {
	return &GetInfoCmd{}
}

// GetKnownNodesCmd defines the getknownnodes JSON-RPC command.
type GetKnownNodesCmd struct{}

// NewGetKnownNodesCmd returns a new instance which can be used to issue a
// getknownnodes JSON-RPC command.
func NewGetKnownNodesCmd() *GetKnownNodesCmd {
	return &GetKnownNodesCmd{}
}

// GetPeerInfoCmd defines the getpeerinfo JSON-RPC command.
type GetPeerInfoCmd struct{}

// NewGetPeerInfoCmd returns a new instance which can be used to issue a
// getpeerinfo JSON-RPC command.
func NewGetPeerInfoCmd() *GetPeerInfoCmd {
	return &GetPeerInfoCmd{}
}

// GetRealmsCmd defines the getrealms JSON-RPC command.
type GetRealmsCmd struct{}

// NewGetRealmsCmd returns a new instance which can be used to issue a
// getrealms JSON-RPC command.
func NewGetRealmsCmd() *GetRealmsCmd {
	return &GetRealmsCmd{}
}

// HelpCmd defines the help JSON-RPC command.
type HelpCmd struct {
	Command *string
}

// NewHelpCmd returns a new instance which can be used to issue a help JSON-RPC
// command.
//
// The parameters which are pointers indicate they are optional.  Passing nil
// for optional parameters will use the default value.
func NewHelpCmd(command *string) *HelpCmd {
	return &HelpCmd{
		Command: command,
	}
}

// LookupCmd defines the lookup JSON-RPC command.
type LookupCmd struct {
	Target string
}

// NewLookupCmd returns a new instance which can be used to issue a lookup
// JSON-RPC command.
func NewLookupCmd(target string) *LookupCmd {
	return &LookupCmd{
		Target: target,
	}
}

// PutFloCmd defines the putflo JSON-RPC command.
type PutFloCmd struct {
	HexFlo string
}

// NewPutFloCmd returns a new instance which can be used to issue a putflo
// JSON-RPC command.
func NewPutFloCmd(hexFlo string) *PutFloCmd {
	return &PutFloCmd{
		HexFlo: hexFlo,
	}
}

// StopCmd defines the stop JSON-RPC command.
type StopCmd struct{}

// NewStopCmd returns a new instance which can be used to issue a stop JSON-RPC
// command.
func NewStopCmd() *StopCmd {
	return &StopCmd{}
}

// UpdateFloCmd defines the updateflo JSON-RPC command.
type UpdateFloCmd struct {
	ID        string
	HexUpdate string
}

// NewUpdateFloCmd returns a new instance which can be used to issue an
// updateflo JSON-RPC command.
func NewUpdateFloCmd(id, hexUpdate string) *UpdateFloCmd {
	return &UpdateFloCmd{
		ID:        id,
		HexUpdate: hexUpdate,
	}
}

// VersionCmd defines the version JSON-RPC command.
type VersionCmd struct{}

// NewVersionCmd returns a new instance which can be used to issue a JSON-RPC
// version command.
func NewVersionCmd() *VersionCmd { return new(VersionCmd) }

func init() {
	// No special flags for commands in this file.
	flags := dcrjson.UsageFlag(0)

	dcrjson.MustRegister(Method("connect"), (*ConnectCmd)(nil), flags)
	dcrjson.MustRegister(Method("createrealm"), (*CreateRealmCmd)(nil), flags)
	dcrjson.MustRegister(Method("debuglevel"), (*DebugLevelCmd)(nil), flags)
	dcrjson.MustRegister(Method("disconnectnode"), (*DisconnectNodeCmd)(nil), flags)
	dcrjson.MustRegister(Method("getcuckoos"), (*GetCuckoosCmd)(nil), flags)
	dcrjson.MustRegister(Method("getflo"), (*GetFloCmd)(nil), flags)
	dcrjson.MustRegister(Method("getheldflos"), (*GetHeldFlosCmd)(nil), flags)
	dcrjson.MustRegister(Method("getinfo"), (*GetInfoCmd)(nil), flags)
	dcrjson.MustRegister(Method("getknownnodes"), (*GetKnownNodesCmd)(nil), flags)
	dcrjson.MustRegister(Method("getpeerinfo"), (*GetPeerInfoCmd)(nil), flags)
	dcrjson.MustRegister(Method("getrealms"), (*GetRealmsCmd)(nil), flags)
	dcrjson.MustRegister(Method("help"), (*HelpCmd)(nil), flags)
	dcrjson.MustRegister(Method("lookup"), (*LookupCmd)(nil), flags)
	dcrjson.MustRegister(Method("putflo"), (*PutFloCmd)(nil), flags)
	dcrjson.MustRegister(Method("stop"), (*StopCmd)(nil), flags)
	dcrjson.MustRegister(Method("updateflo"), (*UpdateFloCmd)(nil), flags)
	dcrjson.MustRegister(Method("version"), (*VersionCmd)(nil), flags)
}
