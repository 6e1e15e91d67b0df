// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
)

// OverlayNet represents which fledger overlay a message belongs to.
type OverlayNet uint32

// Constants used to indicate the overlay network.  They can also be used to
// seek to the next message when a stream's state is unknown, but this package
// does not provide that functionality since it's generally a better idea to
// simply disconnect peers that are misbehaving over TCP.
const (
	// MainNet represents the main fledger overlay.
	MainNet OverlayNet = 0x7de86fd1

	// TestNet represents the test overlay.
	TestNet OverlayNet = 0x35c8a2f4

	// SimNet represents the simulation overlay used by regression and
	// integration tests.
	SimNet OverlayNet = 0x9d443a61
)

// onStrings is a map of overlay networks back to their constant names for
// pretty printing.
var onStrings = map[OverlayNet]string{
	MainNet: "MainNet",
	TestNet: "TestNet",
	SimNet:  "SimNet",
}

// String returns the OverlayNet in human-readable form.
func (n OverlayNet) String() string {
	if s, ok := onStrings[n]; ok {
		return s
	}

	return fmt.Sprintf("Unknown OverlayNet (%d)", uint32(n))
}

const (
	// InitialProtocolVersion is the initial protocol version of the
	// fledger overlay.
	InitialProtocolVersion uint32 = 1

	// ProtocolVersion is the latest protocol version this package supports.
	ProtocolVersion uint32 = 1
)
