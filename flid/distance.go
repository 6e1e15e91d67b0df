// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flid

import (
	"bytes"
	"math/bits"
	"sort"
)

// Distance returns the XOR distance between the two identifiers.  The result
// is itself an ID so distances order the same way identifiers do.
func Distance(a, b ID) ID {
	var d ID
	for i := 0; i < IDSize; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// PrefixLen returns the number of leading bits the two identifiers share.
// Equal identifiers share all IDBits bits.
func PrefixLen(a, b ID) int {
	for i := 0; i < IDSize; i++ {
		x := a[i] ^ b[i]
		if x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return IDBits
}

// CmpDistance compares the distances of a and b to target and returns -1 when
// a is strictly closer, 1 when b is strictly closer, and 0 when they are the
// same distance away.  A zero result only happens when a and b are equal
// since XOR distances to a common target are unique per identifier.
func CmpDistance(a, b, target ID) int {
	for i := 0; i < IDSize; i++ {
		da := a[i] ^ target[i]
		db := b[i] ^ target[i]
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
	}
	return 0
}

// SortByDistance sorts the identifiers in place by ascending XOR distance to
// the target with ties broken by the identifier value itself.
func SortByDistance(ids []ID, target ID) {
	sort.Slice(ids, func(i, j int) bool {
		switch CmpDistance(ids[i], ids[j], target) {
		case -1:
			return true
		case 1:
			return false
		}
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
