// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build windows || plan9 || js
// +build windows plan9 js

package limits

// SetLimits is a no-op on platforms where raising process limits is either
// not required or not supported.
func SetLimits() error {
	return nil
}
