// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/ineiti/fledger/wire"
)

// params is used to group parameters for various overlay networks such as the
// main network and test networks.
type params struct {
	// Net is the wire identifier connections on this network must speak.
	Net wire.OverlayNet

	// Name is the overlay network name.  It is also used as the name of
	// the per-network data and log subdirectories.
	Name string

	// DefaultPort is the default port for peer connections on the network.
	DefaultPort string

	// rpcPort is the default port used by the RPC server on the network.
	rpcPort string
}

// mainNetParams contains parameters specific to the main overlay network.
var mainNetParams = params{
	Net:         wire.MainNet,
	Name:        "mainnet",
	DefaultPort: "7037",
	rpcPort:     "7038",
}

// testNetParams contains parameters specific to the test overlay network.
var testNetParams = params{
	Net:         wire.TestNet,
	Name:        "testnet",
	DefaultPort: "17037",
	rpcPort:     "17038",
}

// simNetParams contains parameters specific to the simulation overlay
// network.  The simulation network is only intended for private deployments
// where all nodes are under the operator's control.
var simNetParams = params{
	Net:         wire.SimNet,
	Name:        "simnet",
	DefaultPort: "27037",
	rpcPort:     "27038",
}

// activeNetParams is a pointer to the parameters specific to the currently
// active overlay network.
var activeNetParams = &mainNetParams
