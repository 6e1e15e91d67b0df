// Copyright (c) 2025-2026 The Fledger developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package ace evaluates access rule sets over object updates.

# Access Conditions Overview

Every replicated object carries a rule set describing who may append to its
history.  A rule set is a tree of conditions:

  - A verifier condition is satisfied by a valid signature from one key,
    identified by the hash of its compressed public key.
  - A threshold condition is satisfied when at least N of its sub
    conditions are satisfied, which also expresses AND and OR.
  - A badge condition delegates to the rule set held by another object, so
    organizations can rotate keys in one place.

Signatures cover a digest that binds the top level condition tree to the
update being authorized.  Evaluation walks the tree, verifies signatures
with the schnorr scheme over secp256k1, resolves badge references through a
caller supplied resolver, and refuses to follow the same badge twice so
delegation cycles cannot satisfy a rule set.
*/
package ace
