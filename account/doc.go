// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package account implements the account packet and the access
// container — the two encrypted, versioned records that root an
// account's state in a vault.
//
// The account packet lives at the address derived from the locator
// and is encrypted under the identity's packet key. It holds the
// access container's address and symmetric key plus the owner's
// escrow age keypair. [Create] registers a new account (first write
// wins — a taken locator fails with vault.ErrAlreadyExists); [Load]
// logs in, mapping a packet that fails to decrypt to
// [ErrInvalidCredentials], since a wrong password derives a wrong
// packet key.
//
// The access container is the trust ledger: for every authorized
// application, its public keys and the set of grants it holds; for
// the owner, a registry of every data container's address and current
// key. An application entry exists if and only if its grant set is
// non-empty — [Account.Update] enforces this by dropping emptied
// entries before committing.
//
// All writes go through the vault's optimistic-concurrency
// discipline: [Account.Update] is a bounded-retry read-modify-write
// (vault.ReadModifyWrite) that either commits exactly one version
// ahead of what it read, completes as a no-op when the mutation
// produces a byte-identical record (deterministic CBOR makes that
// check sound), or fails with vault.ErrConcurrentModification — a
// concurrent change is never silently lost. Two sessions of the same
// account updating concurrently both eventually succeed via retry.
package account
