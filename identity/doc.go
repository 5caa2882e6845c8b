// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity derives and holds an account's long-lived key
// material from a locator/password pair.
//
// [Derive] runs argon2id over the password with a salt derived from
// the locator, then expands the result via HKDF into three independent
// subkeys: the packet key (encrypts the account packet), the ed25519
// signing seed, and the x25519 encryption scalar. Derivation is fully
// deterministic — the same locator and password always reproduce the
// same [Identity] on any device, which is the only way an account can
// be recovered with nothing but its credentials.
//
// The locator alone also determines the account packet's vault
// address, so login needs no directory service: derive, fetch, and
// attempt to decrypt. A packet that fails to open means the password
// was wrong; package account maps that to ErrInvalidCredentials.
//
// All private key material lives in secret.Buffer values and is
// irrecoverably erased by [Identity.Close] when the session ends.
// [Identity.SealForOwner] and [Identity.DecryptAsOwner] implement an
// X25519 sealed box (ephemeral ECDH + HKDF + lib/aead) for records
// only the owner may read, such as the container key registry.
package identity
