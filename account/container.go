// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"bytes"
	"context"
	"fmt"

	"github.com/haven-foundation/haven/lib/aead"
	"github.com/haven-foundation/haven/lib/codec"
	"github.com/haven-foundation/haven/lib/sealed"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// Read fetches and decrypts the access container. The returned
// Container carries the vault version it was read at; mutations go
// through Update, never through writing a Read result back directly.
func (a *Account) Read(ctx context.Context) (*Container, error) {
	record, err := a.vaultStore.Get(ctx, a.accessAddress)
	if err != nil {
		return nil, fmt.Errorf("account: fetching access container: %w", err)
	}
	return a.decryptContainer(record)
}

// Update applies fn to the access container under a versioned
// read-modify-write loop. On conflict the container is re-read and fn
// re-applied against the new state, so fn must be a pure function of
// the container it is given. Returns the version the update committed
// at.
//
// If fn leaves the container byte-identical (deterministic encoding),
// no write is issued and the current version is returned unchanged:
// re-running an authorization is a no-op, not a version bump.
//
// Update enforces the ledger invariant that an application entry
// exists iff it holds at least one grant: entries whose grant set fn
// emptied are dropped before encoding.
func (a *Account) Update(ctx context.Context, fn func(*Container) error) (uint64, error) {
	return vault.ReadModifyWrite(ctx, a.vaultStore, a.accessAddress, a.retry,
		func(record vault.Record) ([]byte, error) {
			container, err := a.decryptContainer(record)
			if err != nil {
				return nil, err
			}
			before, err := codec.Marshal(container)
			if err != nil {
				return nil, fmt.Errorf("account: encoding access container: %w", err)
			}
			defer secret.Zero(before)

			updated := container.Clone()
			if err := fn(updated); err != nil {
				return nil, err
			}
			for appID, entry := range updated.Apps {
				if len(entry.Grants) == 0 {
					delete(updated.Apps, appID)
				}
			}

			after, err := codec.Marshal(updated)
			if err != nil {
				return nil, fmt.Errorf("account: encoding access container: %w", err)
			}
			if bytes.Equal(before, after) {
				return nil, vault.ErrNoChange
			}
			return a.sealContainer(after)
		})
}

// encryptContainer encodes and seals a container under the access key.
func (a *Account) encryptContainer(container *Container) ([]byte, error) {
	plaintext, err := codec.Marshal(container)
	if err != nil {
		return nil, fmt.Errorf("account: encoding access container: %w", err)
	}
	return a.sealContainer(plaintext)
}

// sealContainer encrypts already-encoded container plaintext, bound
// to the container's own address.
func (a *Account) sealContainer(plaintext []byte) ([]byte, error) {
	defer secret.Zero(plaintext)
	blob, err := aead.Encrypt(a.accessKey, plaintext, a.accessAddress[:])
	if err != nil {
		return nil, fmt.Errorf("account: encrypting access container: %w", err)
	}
	return blob, nil
}

func (a *Account) decryptContainer(record vault.Record) (*Container, error) {
	plaintext, err := aead.Decrypt(a.accessKey, record.Payload, a.accessAddress[:])
	if err != nil {
		return nil, fmt.Errorf("account: decrypting access container: %w", err)
	}
	defer secret.Zero(plaintext)

	var container Container
	if err := codec.Unmarshal(plaintext, &container); err != nil {
		return nil, fmt.Errorf("account: decoding access container: %w", err)
	}
	container.Version = record.Version
	if container.Registry == nil {
		container.Registry = map[string]RegistryEntry{}
	}
	if container.Apps == nil {
		container.Apps = map[AppID]AppEntry{}
	}
	return &container, nil
}

// WrapRef encrypts a container reference to the given age recipients.
// Authorization always passes two: the application's key and the
// owner's escrow key.
func WrapRef(ref ContainerRef, recipientKeys []string) ([]byte, error) {
	plaintext, err := codec.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("account: encoding container ref: %w", err)
	}
	defer secret.Zero(plaintext)

	wrapped, err := sealed.Encrypt(plaintext, recipientKeys)
	if err != nil {
		return nil, fmt.Errorf("account: wrapping container ref: %w", err)
	}
	return wrapped, nil
}

// UnwrapRef decrypts a wrapped container reference with an age
// identity — the application's private key, or the owner's escrow
// key.
func UnwrapRef(wrappedRef []byte, privateKey *secret.Buffer) (ContainerRef, error) {
	plaintext, err := sealed.Decrypt(wrappedRef, privateKey)
	if err != nil {
		return ContainerRef{}, fmt.Errorf("account: unwrapping container ref: %w", err)
	}
	defer plaintext.Close()

	var ref ContainerRef
	if err := codec.Unmarshal(plaintext.Bytes(), &ref); err != nil {
		return ContainerRef{}, fmt.Errorf("account: decoding container ref: %w", err)
	}
	return ref, nil
}
