// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package router implements message routing across the node overlay.

The router owns the routing table and builds three delivery primitives on
top of the one-hop send capability provided by the caller:

  - Closest walks greedily approach the node whose identifier is nearest a
    target.  Payload-free walks answer with the closest nodes known to the
    terminal node and back a Lookup.  Walks carrying a payload hand it to
    the storage layer at every hop, which decides whether the walk
    continues.

  - Direct sends route a message to one exact destination node.  Delivery
    is best effort and replies echo the correlation nonce of the request
    they answer.

  - Broadcasts go one hop to every connected neighbor and are never
    forwarded.  The neighbor query variant additionally aggregates one
    reply per neighbor.

Routed messages carry a hop budget and the set of nodes they passed
through, so every forward consumes one unit of budget and excludes the
recorded nodes from the next hop.  A filter over recently routed requests
drops duplicates and loops the visited set cannot catch.

Liveness evidence feeds the routing table solely from direct contact: a
connection or an inbound message refreshes the sender's record, and a
contested table slot is settled with a ping probe before the incumbent is
evicted.
*/
package router
