// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the fledger overlay protocol.

# Overlay Protocol Overview

This package implements the wire protocol nodes of a fledger overlay use to
talk to each other.  A node joins the overlay by establishing a connection to
one or more known nodes and exchanging hello messages.  From there it learns
about further nodes, routes messages through the identifier space, and takes
part in replicating stored objects.

At the lowest level this package provides the fundamental primitives to encode
and decode protocol messages to and from streams.  The Message interface
abstracts a message and every exchange on a connection is a Message framed by
a short header that identifies the network, the command, and the length and
checksum of the payload.

Messages fall into three groups.  Connection messages (hello, helloack, ping,
pong) manage the link between two directly connected nodes.  Envelope
messages (findclosest, closestreply, direct, broadcast, nbbroadcast, nbreply)
move through the overlay on behalf of other nodes and may carry an embedded
payload message.  Payload messages (storeoffer, storeack, storedecline,
fetchreq, fetchreply, notfound, updatereq, updateack, updatereject,
syncmetas, syncreq) implement the replicated object store and only ever
travel embedded in an envelope.

# Errors

Errors returned by this package are of type wire.MessageError and fully
support the errors.Is and errors.As functions.  This allows the caller to
differentiate between general io errors and a malformed message.
*/
package wire
