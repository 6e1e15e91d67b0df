// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package progresslog provides periodic logging for object processing.

Tests are included to ensure proper functionality.

## Feature Overview

- Maintains cumulative totals about objects between each logging interval
  - Total number of objects
  - Total number of history entries
  - Total number of payload bytes
- Logs all cumulative data every 10 seconds
- Supports forcing an immediate log of any outstanding data
*/
package progresslog
