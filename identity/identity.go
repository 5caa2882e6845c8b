// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/haven-foundation/haven/lib/aead"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// ErrDecryptionFailed is returned by DecryptAsOwner when the
// ciphertext does not authenticate under this identity's keys.
var ErrDecryptionFailed = errors.New("identity: decryption failed")

// KDF domain tags. The salt tag feeds the locator-derived argon2
// salt; the subkey tags separate the three HKDF expansion paths.
// Changing any of these locks every existing account out.
const (
	kdfSaltDomain = "haven.identity.kdf.salt.v1"
	boxKeyInfo    = "haven.identity.box.v1"
)

var (
	infoPacketKey     = []byte("haven.identity.packet-key.v1")
	infoSignSeed      = []byte("haven.identity.sign-seed.v1")
	infoEncryptScalar = []byte("haven.identity.encrypt-scalar.v1")
)

// KDFParams tunes the argon2id password hash. The zero value selects
// the production parameters (64 MiB, 3 passes, 4 lanes). Tests use
// lighter settings; real accounts never should.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

func (p KDFParams) withDefaults() KDFParams {
	if p.Time == 0 {
		p.Time = 3
	}
	if p.Memory == 0 {
		p.Memory = 64 * 1024
	}
	if p.Threads == 0 {
		p.Threads = 4
	}
	return p
}

// Identity holds an account's master key material for the lifetime of
// a session. Exclusively owned by the session; Close zeroes every
// private key.
type Identity struct {
	address        vault.Address
	signPrivate    *secret.Buffer // ed25519 private key (64 bytes)
	signPublic     ed25519.PublicKey
	encryptPrivate *secret.Buffer // x25519 scalar (32 bytes)
	encryptPublic  []byte         // x25519 public point (32 bytes)
	packetKey      *secret.Buffer
}

// Derive deterministically derives the identity for (locator,
// password). It performs no network I/O and cannot itself detect a
// wrong password — that surfaces when the account packet fails to
// decrypt.
//
// The password is borrowed and NOT closed. The caller must call Close
// on the returned Identity when the session ends.
func Derive(locator []byte, password *secret.Buffer, params KDFParams) (*Identity, error) {
	if len(locator) == 0 {
		return nil, fmt.Errorf("identity: locator is empty")
	}
	params = params.withDefaults()

	salt := vault.DeriveAddress(kdfSaltDomain, locator)
	masterBytes := argon2.IDKey(password.Bytes(), salt[:], params.Time, params.Memory, params.Threads, aead.KeySize)
	master, err := secret.NewFromBytes(masterBytes)
	if err != nil {
		return nil, fmt.Errorf("identity: protecting master key: %w", err)
	}
	defer master.Close()

	packetKey, err := aead.DeriveKey(master, infoPacketKey)
	if err != nil {
		return nil, err
	}

	signSeed, err := aead.DeriveKey(master, infoSignSeed)
	if err != nil {
		packetKey.Close()
		return nil, err
	}
	defer signSeed.Close()

	encryptScalar, err := aead.DeriveKey(master, infoEncryptScalar)
	if err != nil {
		packetKey.Close()
		return nil, err
	}

	// Stdlib crypto must never see guarded memory: crypto/ed25519 and
	// crypto/ecdh cache derived state keyed on the key's backing
	// array via weak pointers, and weak pointers into non-heap memory
	// abort the runtime. Hand-offs go through heap copies that are
	// zeroed once the call returns.
	seed := append([]byte(nil), signSeed.Bytes()...)
	signKeyBytes := ed25519.NewKeyFromSeed(seed)
	secret.Zero(seed)
	signPublic := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(signPublic, signKeyBytes[ed25519.SeedSize:])
	signPrivate, err := secret.NewFromBytes(signKeyBytes)
	if err != nil {
		packetKey.Close()
		encryptScalar.Close()
		return nil, fmt.Errorf("identity: protecting signing key: %w", err)
	}

	scalar := append([]byte(nil), encryptScalar.Bytes()...)
	encryptKey, err := ecdh.X25519().NewPrivateKey(scalar)
	if err != nil {
		secret.Zero(scalar)
		packetKey.Close()
		encryptScalar.Close()
		signPrivate.Close()
		return nil, fmt.Errorf("identity: deriving encryption key: %w", err)
	}
	encryptPublic := encryptKey.PublicKey().Bytes()
	secret.Zero(scalar)

	return &Identity{
		address:        vault.AccountAddress(locator),
		signPrivate:    signPrivate,
		signPublic:     signPublic,
		encryptPrivate: encryptScalar,
		encryptPublic:  encryptPublic,
		packetKey:      packetKey,
	}, nil
}

// AccountAddress returns the vault address of this identity's account
// packet.
func (id *Identity) AccountAddress() vault.Address {
	return id.address
}

// Sign signs data with the master ed25519 key.
func (id *Identity) Sign(data []byte) []byte {
	// ed25519.Sign caches precomputation keyed on the key's backing
	// array, which must be Go heap memory, never the guarded buffer.
	private := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(private, id.signPrivate.Bytes())
	defer secret.Zero(private)
	return ed25519.Sign(private, data)
}

// SignPublicKey returns the master verification key. Safe to publish;
// revocation record addresses are derived from it.
func (id *Identity) SignPublicKey() ed25519.PublicKey {
	return id.signPublic
}

// Verify reports whether signature is a valid master signature over
// data.
func (id *Identity) Verify(data, signature []byte) bool {
	return ed25519.Verify(id.signPublic, data, signature)
}

// EncryptPublicKey returns the x25519 public key (32 bytes) that
// SealForOwner encrypts to.
func (id *Identity) EncryptPublicKey() []byte {
	return id.encryptPublic
}

// PacketKey returns the symmetric key that encrypts the account
// packet. Borrowed: the identity retains ownership.
func (id *Identity) PacketKey() *secret.Buffer {
	return id.packetKey
}

// SealForOwner encrypts plaintext so that only this identity (or
// another derivation of the same credentials) can read it: an
// ephemeral X25519 key agrees a shared secret with the owner's public
// key, HKDF expands it, and lib/aead seals the payload bound to both
// public keys.
//
// Format: [ephemeral public key: 32 bytes][aead blob].
func (id *Identity) SealForOwner(plaintext []byte) ([]byte, error) {
	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generating ephemeral key: %w", err)
	}

	ownerKey, err := ecdh.X25519().NewPublicKey(id.encryptPublic)
	if err != nil {
		return nil, fmt.Errorf("identity: parsing owner public key: %w", err)
	}

	boxKey, err := id.boxKey(ephemeral, ownerKey)
	if err != nil {
		return nil, err
	}
	defer boxKey.Close()

	ephemeralPublic := ephemeral.PublicKey().Bytes()
	blob, err := aead.Encrypt(boxKey, plaintext, boxBinding(ephemeralPublic, id.encryptPublic))
	if err != nil {
		return nil, err
	}

	box := make([]byte, 0, len(ephemeralPublic)+len(blob))
	box = append(box, ephemeralPublic...)
	box = append(box, blob...)
	return box, nil
}

// DecryptAsOwner opens a box produced by SealForOwner. Fails with
// ErrDecryptionFailed if the box was sealed to a different identity
// or has been tampered with.
func (id *Identity) DecryptAsOwner(box []byte) ([]byte, error) {
	const publicKeySize = 32
	if len(box) < publicKeySize+aead.BlobOverhead {
		return nil, fmt.Errorf("identity: box is %d bytes, minimum is %d", len(box), publicKeySize+aead.BlobOverhead)
	}
	ephemeralPublic := box[:publicKeySize]
	blob := box[publicKeySize:]

	scalar := append([]byte(nil), id.encryptPrivate.Bytes()...)
	defer secret.Zero(scalar)
	ownPrivate, err := ecdh.X25519().NewPrivateKey(scalar)
	if err != nil {
		return nil, fmt.Errorf("identity: loading encryption key: %w", err)
	}
	ephemeralKey, err := ecdh.X25519().NewPublicKey(ephemeralPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ephemeral key", ErrDecryptionFailed)
	}

	shared, err := ownPrivate.ECDH(ephemeralKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement: %v", ErrDecryptionFailed, err)
	}
	sharedBuffer, err := secret.NewFromBytes(shared)
	if err != nil {
		return nil, err
	}
	defer sharedBuffer.Close()

	boxKey, err := aead.DeriveKey(sharedBuffer, []byte(boxKeyInfo))
	if err != nil {
		return nil, err
	}
	defer boxKey.Close()

	plaintext, err := aead.Decrypt(boxKey, blob, boxBinding(ephemeralPublic, id.encryptPublic))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// boxKey derives the sealed-box AEAD key from an ECDH agreement
// between the ephemeral private key and the owner's public key.
func (id *Identity) boxKey(ephemeral *ecdh.PrivateKey, ownerKey *ecdh.PublicKey) (*secret.Buffer, error) {
	shared, err := ephemeral.ECDH(ownerKey)
	if err != nil {
		return nil, fmt.Errorf("identity: key agreement: %w", err)
	}
	sharedBuffer, err := secret.NewFromBytes(shared)
	if err != nil {
		return nil, err
	}
	defer sharedBuffer.Close()
	return aead.DeriveKey(sharedBuffer, []byte(boxKeyInfo))
}

// boxBinding binds a sealed box to the key pair that produced it.
func boxBinding(ephemeralPublic, ownerPublic []byte) []byte {
	binding := make([]byte, 0, len(ephemeralPublic)+len(ownerPublic))
	binding = append(binding, ephemeralPublic...)
	binding = append(binding, ownerPublic...)
	return binding
}

// Close irrecoverably erases all private key material. Idempotent.
// After Close, any use of the identity panics.
func (id *Identity) Close() error {
	var firstError error
	for _, buffer := range []*secret.Buffer{id.signPrivate, id.encryptPrivate, id.packetKey} {
		if buffer == nil {
			continue
		}
		if err := buffer.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}
