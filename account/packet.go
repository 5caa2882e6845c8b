// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haven-foundation/haven/identity"
	"github.com/haven-foundation/haven/lib/aead"
	"github.com/haven-foundation/haven/lib/codec"
	"github.com/haven-foundation/haven/lib/sealed"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// ErrInvalidCredentials is returned by Load when the account packet
// exists but does not decrypt under the derived packet key — the
// password was wrong. (A missing packet surfaces as vault.ErrNotFound:
// the locator is unregistered.)
var ErrInvalidCredentials = errors.New("account: invalid credentials")

// Account is the logged-in handle to an account's vault state. It
// borrows the identity (the session owns it) and shares the vault.
// Close erases the access key and escrow key material.
type Account struct {
	vaultStore    vault.Vault
	owner         *identity.Identity
	accessAddress vault.Address
	accessKey     *secret.Buffer
	escrowPublic  string
	escrowPrivate *secret.Buffer
	retry         vault.RetryConfig
	logger        *slog.Logger
}

// Config holds the dependencies for Create and Load.
type Config struct {
	// Vault is the storage port. Required.
	Vault vault.Vault

	// Identity is the derived account identity. Required; borrowed,
	// not owned.
	Identity *identity.Identity

	// Retry bounds the access container's read-modify-write loop.
	// Zero value uses vault defaults.
	Retry vault.RetryConfig

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

func (c Config) validate() (Config, error) {
	if c.Vault == nil {
		return c, fmt.Errorf("account: Vault is required")
	}
	if c.Identity == nil {
		return c, fmt.Errorf("account: Identity is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// Create registers a new account: an empty access container at a
// random address, and the account packet at the locator-derived
// address pointing at it. Fails with vault.ErrAlreadyExists if the
// locator is taken (first write wins).
//
// The caller must call Close on the returned Account when the session
// ends.
func Create(ctx context.Context, config Config) (*Account, error) {
	config, err := config.validate()
	if err != nil {
		return nil, err
	}
	owner := config.Identity

	accessAddress, err := vault.RandomAddress()
	if err != nil {
		return nil, err
	}
	accessKey, err := aead.NewKey()
	if err != nil {
		return nil, err
	}

	escrow, err := sealed.GenerateKeypair()
	if err != nil {
		accessKey.Close()
		return nil, fmt.Errorf("account: generating escrow keypair: %w", err)
	}

	account := &Account{
		vaultStore:    config.Vault,
		owner:         owner,
		accessAddress: accessAddress,
		accessKey:     accessKey,
		escrowPublic:  escrow.PublicKey,
		escrowPrivate: escrow.PrivateKey,
		retry:         config.Retry,
		logger:        config.Logger,
	}

	// Access container first: if the packet write below fails, an
	// orphaned empty container is unreachable garbage, whereas a
	// packet pointing at nothing would brick the account.
	emptyContainer := &Container{
		Registry: map[string]RegistryEntry{},
		Apps:     map[AppID]AppEntry{},
	}
	containerBlob, err := account.encryptContainer(emptyContainer)
	if err != nil {
		account.Close()
		return nil, err
	}
	if _, err := config.Vault.Put(ctx, accessAddress, containerBlob); err != nil {
		account.Close()
		return nil, fmt.Errorf("account: storing access container: %w", err)
	}

	payload := packetPayload{
		AccessAddress:    accessAddress,
		AccessKey:        append([]byte(nil), accessKey.Bytes()...),
		EscrowPrivateKey: []byte(escrow.PrivateKey.String()),
		EscrowPublicKey:  escrow.PublicKey,
	}
	packetBlob, err := encryptPacket(owner, payload)
	secret.Zero(payload.AccessKey)
	secret.Zero(payload.EscrowPrivateKey)
	if err != nil {
		account.Close()
		return nil, err
	}

	if _, err := config.Vault.Put(ctx, owner.AccountAddress(), packetBlob); err != nil {
		account.Close()
		return nil, fmt.Errorf("account: storing account packet: %w", err)
	}

	config.Logger.Info("account registered",
		"account", owner.AccountAddress().String(),
		"access_container", accessAddress.String(),
	)
	return account, nil
}

// Load logs into an existing account: fetch the packet at the
// locator-derived address and decrypt it with the derived packet key.
// A packet that fails to decrypt means the password was wrong —
// ErrInvalidCredentials. A missing packet surfaces vault.ErrNotFound.
//
// The caller must call Close on the returned Account when the session
// ends.
func Load(ctx context.Context, config Config) (*Account, error) {
	config, err := config.validate()
	if err != nil {
		return nil, err
	}
	owner := config.Identity

	record, err := config.Vault.Get(ctx, owner.AccountAddress())
	if err != nil {
		return nil, fmt.Errorf("account: fetching account packet: %w", err)
	}

	payload, err := decryptPacket(owner, record.Payload)
	if err != nil {
		return nil, err
	}
	defer func() {
		secret.Zero(payload.AccessKey)
		secret.Zero(payload.EscrowPrivateKey)
	}()

	accessKey, err := secret.NewFromBytes(payload.AccessKey)
	if err != nil {
		return nil, err
	}
	escrowPrivate, err := secret.NewFromBytes(payload.EscrowPrivateKey)
	if err != nil {
		accessKey.Close()
		return nil, err
	}

	config.Logger.Info("account loaded",
		"account", owner.AccountAddress().String(),
		"access_container", payload.AccessAddress.String(),
	)
	return &Account{
		vaultStore:    config.Vault,
		owner:         owner,
		accessAddress: payload.AccessAddress,
		accessKey:     accessKey,
		escrowPublic:  payload.EscrowPublicKey,
		escrowPrivate: escrowPrivate,
		retry:         config.Retry,
		logger:        config.Logger,
	}, nil
}

// Vault returns the storage port the account operates through.
func (a *Account) Vault() vault.Vault { return a.vaultStore }

// Identity returns the borrowed account identity.
func (a *Account) Identity() *identity.Identity { return a.owner }

// AccessAddress returns the access container's vault address. Part of
// the credentials returned to authorized applications.
func (a *Account) AccessAddress() vault.Address { return a.accessAddress }

// EscrowRecipient returns the owner's age recipient key. Every
// wrapped container reference includes it alongside the application.
func (a *Account) EscrowRecipient() string { return a.escrowPublic }

// UnwrapRef decrypts a wrapped container reference with the owner's
// escrow key.
func (a *Account) UnwrapRef(wrappedRef []byte) (ContainerRef, error) {
	return UnwrapRef(wrappedRef, a.escrowPrivate)
}

// Close erases the access key and escrow private key. The borrowed
// identity is NOT closed — the session owns it. Idempotent.
func (a *Account) Close() error {
	var firstError error
	for _, buffer := range []*secret.Buffer{a.accessKey, a.escrowPrivate} {
		if buffer == nil {
			continue
		}
		if err := buffer.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}

// encryptPacket seals the packet payload under the identity's packet
// key, bound to the account address so a packet cannot be replayed at
// a different locator's address.
func encryptPacket(owner *identity.Identity, payload packetPayload) ([]byte, error) {
	plaintext, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("account: encoding packet: %w", err)
	}
	defer secret.Zero(plaintext)

	address := owner.AccountAddress()
	blob, err := aead.Encrypt(owner.PacketKey(), plaintext, address[:])
	if err != nil {
		return nil, fmt.Errorf("account: encrypting packet: %w", err)
	}
	return blob, nil
}

// decryptPacket opens the packet blob, mapping authentication failure
// to ErrInvalidCredentials.
func decryptPacket(owner *identity.Identity, blob []byte) (packetPayload, error) {
	address := owner.AccountAddress()
	plaintext, err := aead.Decrypt(owner.PacketKey(), blob, address[:])
	if err != nil {
		if errors.Is(err, aead.ErrDecryptionFailed) {
			return packetPayload{}, ErrInvalidCredentials
		}
		return packetPayload{}, fmt.Errorf("account: decrypting packet: %w", err)
	}
	defer secret.Zero(plaintext)

	var payload packetPayload
	if err := codec.Unmarshal(plaintext, &payload); err != nil {
		return packetPayload{}, fmt.Errorf("account: decoding packet: %w", err)
	}
	return payload, nil
}
