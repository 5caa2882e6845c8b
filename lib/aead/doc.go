// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package aead is Haven's standard symmetric encryption recipe:
// XChaCha20-Poly1305 over a fixed blob format, with HKDF-SHA256 key
// derivation under domain-separation tags.
//
// Every encrypted record in a vault — account packets, access
// containers, data containers, revocation records, blobs — uses the
// same format:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag: N+16 bytes]
//
// The version byte and a caller-supplied binding are included as
// additional authenticated data (AAD), so tampering with either the
// format version or a record's address binding causes authentication
// failure rather than garbage plaintext.
//
// Keys live in secret.Buffer values (mmap-backed, zeroed on close) and
// are always exactly [KeySize] bytes. [NewKey] draws a fresh random
// key (container creation, re-keying during revocation); [DeriveKey]
// expands subkeys from a master via HKDF (identity derivation paths).
package aead
