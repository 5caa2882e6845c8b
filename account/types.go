// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"github.com/haven-foundation/haven/vault"
)

// AppID identifies an application in the access container. Unique per
// account; chosen by the application (reverse-DNS by convention).
type AppID string

func (id AppID) String() string { return string(id) }

// packetPayload is the plaintext of the account packet. Encrypted
// under the identity's packet key, bound to the account address.
type packetPayload struct {
	// AccessAddress is the vault address of the access container.
	AccessAddress vault.Address `cbor:"1,keyasint"`

	// AccessKey is the symmetric key the access container record is
	// encrypted under.
	AccessKey []byte `cbor:"2,keyasint"`

	// EscrowPrivateKey is the owner's age identity
	// (AGE-SECRET-KEY-1...). Every wrapped container reference lists
	// the owner as a recipient alongside the application, so the
	// owner can always audit its own grants.
	EscrowPrivateKey []byte `cbor:"3,keyasint"`

	// EscrowPublicKey is the corresponding age recipient (age1...).
	EscrowPublicKey string `cbor:"4,keyasint"`
}

// Container is the decoded access container: the account's trust
// ledger. Obtained from [Account.Read]; mutated only through
// [Account.Update].
type Container struct {
	// Version is the vault version the record was read at.
	Version uint64 `cbor:"-"`

	// Registry maps container name to the owner's view of each data
	// container: its address and current symmetric key. Only the
	// owner can read this — it is what revocation re-keys from.
	Registry map[string]RegistryEntry `cbor:"1,keyasint"`

	// Apps maps application ID to its entry. Invariant: an entry
	// exists if and only if its Grants set is non-empty.
	Apps map[AppID]AppEntry `cbor:"2,keyasint"`
}

// RegistryEntry is the owner's record of one data container.
type RegistryEntry struct {
	// Address is the container's vault address.
	Address vault.Address `cbor:"1,keyasint"`

	// Key is the container's current symmetric key. Replaced on every
	// re-key during revocation.
	Key []byte `cbor:"2,keyasint"`
}

// AppEntry records one application's identity and grants.
type AppEntry struct {
	// SignPublicKey is the application's ed25519 verification key.
	SignPublicKey []byte `cbor:"1,keyasint"`

	// EncryptPublicKey is the application's age recipient key that
	// container references are wrapped to.
	EncryptPublicKey string `cbor:"2,keyasint"`

	// Grants maps container name to the grant the application holds.
	Grants map[string]Grant `cbor:"3,keyasint"`
}

// Grant is one application's access to one data container.
type Grant struct {
	// Rights is the permission set.
	Rights RightSet `cbor:"1,keyasint"`

	// WrappedRef is the age-encrypted [ContainerRef], readable only
	// by the application (and the owner's escrow key). The reference
	// — address and symmetric key — never appears in plaintext in
	// the ledger.
	WrappedRef []byte `cbor:"2,keyasint"`
}

// ContainerRef is the decrypted shared-container reference an
// authorized application holds: everything needed to locate and
// decrypt one data container. This is the plaintext inside
// [Grant.WrappedRef] and the credential material returned by
// authorization.
type ContainerRef struct {
	// Name is the human-meaningful container name ("docs").
	Name string `cbor:"1,keyasint"`

	// Address is the container's vault address.
	Address vault.Address `cbor:"2,keyasint"`

	// Key is the container's symmetric key at grant time. Invalidated
	// by any later revocation touching this container; still-
	// authorized applications receive a re-wrapped fresh key.
	Key []byte `cbor:"3,keyasint"`
}

// Clone returns a deep copy of the container, so an Update mutation
// can be applied without aliasing the snapshot used for the no-change
// comparison.
func (c *Container) Clone() *Container {
	clone := &Container{
		Version:  c.Version,
		Registry: make(map[string]RegistryEntry, len(c.Registry)),
		Apps:     make(map[AppID]AppEntry, len(c.Apps)),
	}
	for name, entry := range c.Registry {
		clone.Registry[name] = RegistryEntry{
			Address: entry.Address,
			Key:     append([]byte(nil), entry.Key...),
		}
	}
	for appID, entry := range c.Apps {
		grants := make(map[string]Grant, len(entry.Grants))
		for name, grant := range entry.Grants {
			grants[name] = Grant{
				Rights:     grant.Rights,
				WrappedRef: append([]byte(nil), grant.WrappedRef...),
			}
		}
		clone.Apps[appID] = AppEntry{
			SignPublicKey:    append([]byte(nil), entry.SignPublicKey...),
			EncryptPublicKey: entry.EncryptPublicKey,
			Grants:           grants,
		}
	}
	return clone
}
