// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for Haven key
// wrapping. It wraps filippo.io/age to provide a simple interface for
// the specific operations Haven needs: generate keypairs, encrypt a
// container key to multiple recipients, decrypt with a private key.
//
// Ciphertext is raw bytes, embedded directly in CBOR access container
// entries — no transport encoding is applied here.
//
// Private keys and decrypted plaintext are returned as *secret.Buffer
// values, which are backed by mmap memory outside the Go heap (locked
// against swap, excluded from core dumps, zeroed on close).
//
// This package is used by:
//   - The authorization engine (wrap container keys to an application's
//     recipient key, plus the owner's escrow recipient)
//   - The revocation engine (re-wrap fresh container keys to every
//     still-authorized application after a re-key)
//   - Applications (unwrap their shared container references)
package sealed
