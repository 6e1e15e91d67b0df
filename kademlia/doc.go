// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package kademlia implements a bucketed overlay routing table.

# Routing Table Overview

The fledger overlay locates nodes and stored objects by their XOR distance
rather than by network address.  Each node keeps a routing table that
organizes the peers it knows about into buckets, where the bucket a peer
lands in is the number of leading identifier bits it shares with the local
node.  Close regions of the identifier space are therefore tracked in fine
detail while distant regions are summarized, which is what lets a lookup
home in on any target in a logarithmic number of hops.

Buckets have a fixed capacity.  Long lived peers are preferred over
newcomers: when a bucket is full, a newly seen peer is parked as a pending
candidate and the least recently confirmed member is handed back to the
caller for a liveness check.  Only a failed check evicts the member and
promotes the candidate into its slot.  A hard disconnect reported by the
transport removes a record immediately without a check.

The table itself never touches the network.  It is a passive state machine
that hands probe candidates and refresh wants back to its owner, which
performs the actual pings and commits the outcomes.  All bucket state stays
owned by a single goroutine, typically the router event loop.

The confirmed records can be written to a JSON snapshot and restored on the
next run so a node does not need to re-bootstrap from zero after a restart.
*/
package kademlia
