// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Haven's standard CBOR encoding configuration.
//
// Haven uses two serialization formats with a clear boundary:
//
//   - CBOR for everything persisted to a vault (account packets,
//     access containers, revocation records) and for the gateway wire
//     protocol. Vault payloads are encrypted after encoding, and key
//     re-wrapping compares plaintext records byte-for-byte, so
//     encoding must be deterministic.
//   - JSON for CLI --json output only.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Haven package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes — a requirement for the idempotence checks in authorization
// (an unchanged access container entry must re-encode to unchanged
// bytes, so no vault version is burned on a no-op re-authorization).
//
// For buffer-oriented operations (vault records):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (gateway request/response bodies):
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// Stored record types use `cbor:"N,keyasint"` tags: integer keys keep
// encrypted records compact and decouple the wire format from Go field
// names.
package codec
