// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package transport maintains identified connections between overlay nodes.

Every connection starts with a hello exchange in which both sides advertise
their node identifier, protocol version, and user agent.  A nonce carried in
the hello detects connections of a node to itself, and a second connection
to an already connected node is dropped.  Once the exchange completes the
peer is registered under its node identifier and all further messages flow
through the OnMessage callback.

Outbound connections are made through connection requests.  A permanent
request is retried with a backoff that grows with every failed attempt, so
a configured peer that is down comes back on its own once it is reachable
again.  Inbound connections are accepted from the configured listeners up
to an optional limit.

The transport keeps each link alive with periodic pings and times out peers
that stay silent too long.  Sends are queued per peer and a peer that stops
draining its queue is dropped rather than allowed to stall the sender.
*/
package transport
