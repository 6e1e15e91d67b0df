// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sampleconfig provides functions that return the contents of the
// sample configuration files for fledgerd and flctl.
package sampleconfig

import (
	_ "embed"
)

// sampleFledgerdConf is a string containing the commented example config for
// fledgerd.
//
//go:embed sample-fledgerd.conf
var sampleFledgerdConf string

// sampleFlctlConf is a string containing the commented example config for
// flctl.
//
//go:embed sample-flctl.conf
var sampleFlctlConf string

// Fledgerd returns a string containing the commented example config for
// fledgerd.
func Fledgerd() string {
	return sampleFledgerdConf
}

// Flctl returns a string containing the commented example config for flctl.
func Flctl() string {
	return sampleFlctlConf
}
