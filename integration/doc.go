// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration holds end-to-end tests exercising the full
// trust stack: identity derivation, account lifecycle, authorization,
// revocation with crash-resume, and blob storage, against the
// in-memory vault, the sqlite vault, and a live vaultd gateway.
package integration
