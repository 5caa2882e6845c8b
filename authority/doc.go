// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package authority is the account's trust engine: the logged-in
// [Session], application authorization, and application revocation.
//
// [Session.Authorize] processes an application's request for access
// to named data containers. It allocates the application a keypair on
// first contact, wraps each granted container's reference to the
// application (and to the owner's escrow key), and commits the whole
// grant as a single access container update — a failed authorization
// never leaves a partial entry. Re-running a request whose
// permissions are already granted changes nothing, not even the
// container version.
//
// [Session.Revoke] removes an application and re-keys every container
// it could reach. Revocation is deliberately not atomic: progress is
// checkpointed in a signed revocation record stored in the vault, so
// a crash or network outage mid-revocation surfaces
// [ErrRevocationIncomplete] and the remainder is picked up by
// [Session.ResumeRevocations] (or by re-running Revoke). Containers
// are processed in address order; a container is re-keyed at least
// once and the application's entry is removed exactly once.
package authority
