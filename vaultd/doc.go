// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package vaultd implements the Haven gateway protocol: a small
// HTTP+CBOR wire mapping of the vault contract, with a [Server] that
// fronts any vault.Vault and a [Client] that implements vault.Vault
// against a remote gateway.
//
// The gateway exists so a Haven session can run on a machine that does
// not itself participate in the storage network: the session speaks
// the vault contract to a gateway daemon (cmd/haven-vaultd), which
// holds the durable store. Because [Client] implements vault.Vault,
// everything above the port — account packets, access containers,
// authorization, revocation — is unaware of which side of the wire it
// runs on, and the vault conformance suite runs identically against a
// Client-to-Server-to-SQLite stack.
//
// # Wire format
//
// Bodies are deterministic CBOR (lib/codec). Errors carry a stable
// code string that the client maps back onto the vault error taxonomy:
//
//	GET  /v1/record/{address}          -> RecordResponse
//	PUT  /v1/record/{address}          -> VersionResponse (create, first write wins)
//	POST /v1/record/{address}/mutate   -> VersionResponse (compare-and-swap)
//	POST /v1/record/{address}/delete   -> empty           (compare-and-swap)
//
// Version conflicts are 409 with code "VERSION_CONFLICT"; the gateway
// never resolves a conflict itself — retry policy belongs to the
// caller's read-modify-write loop, not to the transport.
package vaultd
