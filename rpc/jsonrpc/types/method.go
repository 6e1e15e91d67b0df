// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

// Method is the type used to register method and parameter pairs with dcrjson.
type Method string
