// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault defines Haven's versioned storage abstraction and its
// implementations.
//
// A [Vault] stores opaque encrypted payloads at 32-byte addresses with
// optimistic concurrency: every record carries a version starting at 0
// on first Put, and [Vault.Mutate] succeeds only when the caller's
// expected version matches the stored version. There are no locks —
// concurrent writers race, exactly one wins per version, and the loser
// re-reads and retries. [ReadModifyWrite] packages that retry
// discipline with bounded attempts and jittered backoff.
//
// Three implementations share the contract bit-for-bit:
//
//   - [Memory]: in-process map, the test double. Reproduces version
//     semantics exactly (including rejecting stale expected versions)
//     so tests against it are valid proxies for real network behavior.
//     Any divergence from the durable implementations is a bug, not a
//     simplification; the conformance suite in contract_test.go runs
//     the same assertions against all three.
//   - [SQLite]: durable local store on lib/sqlitepool. Used by the
//     gateway daemon as its backing store and by the CLI for
//     offline accounts.
//   - vaultd.Client: HTTP+CBOR client for a haven gateway daemon
//     (package vaultd).
//
// Errors are classified at the point of occurrence: semantic failures
// ([ErrNotFound], [ErrAlreadyExists], [ErrVersionConflict],
// [ErrPermissionDenied]) are terminal for the issuing operation and
// must not be blindly retried, while [ErrUnavailable] is transient and
// safe to repeat. [Retryable] reports the classification.
//
// Addresses are derived, never chosen: [AccountAddress] from an
// account locator, [RevocationAddress] from an identity and an app ID
// (so crash recovery can rediscover checkpoints with no local state),
// [RandomAddress] for new data containers. All derivations are
// domain-tagged BLAKE3.
package vault
