// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package rpcserver provides the JSON-RPC server for fledgerd.

Overview

The server accepts authenticated JSON-RPC requests over HTTP POST as well as
over websockets and dispatches them against the running node.  The interfaces
in this package allow the various systems the RPC server interacts with to be
loosely coupled.
*/
package rpcserver
