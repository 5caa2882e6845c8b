// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package aead

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/haven-foundation/haven/lib/secret"
)

// KeySize is the size in bytes of all symmetric keys in Haven:
// packet keys, container keys, and derived subkeys.
const KeySize = 32

// BlobVersion is the version byte prepended to all encrypted blobs.
// Included as additional authenticated data in the AEAD Seal/Open
// call, so tampering with the version byte causes authentication
// failure.
const BlobVersion byte = 0x01

// BlobOverhead is the total byte overhead per encrypted blob:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const BlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// ErrDecryptionFailed is returned when AEAD authentication fails:
// wrong key, tampered ciphertext, or mismatched binding. Deliberately
// carries no detail about which — distinguishing them would leak
// information an attacker does not already have.
var ErrDecryptionFailed = errors.New("aead: decryption failed")

// NewKey returns a fresh random key in guarded memory. The caller
// must close the returned buffer.
func NewKey() (*secret.Buffer, error) {
	key, err := secret.New(KeySize)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, key.Bytes()); err != nil {
		key.Close()
		return nil, fmt.Errorf("aead: generating key: %w", err)
	}
	return key, nil
}

// DeriveKey expands a subkey from master via HKDF-SHA256 with the
// given domain-separation info. The info must be unique per derivation
// path (convention: "haven.<package>.<use>.vN"); changing it
// invalidates all ciphertext encrypted under that path.
//
// The master is borrowed (read via .Bytes()) and is NOT closed. The
// returned buffer must be closed by the caller.
func DeriveKey(master *secret.Buffer, info []byte) (*secret.Buffer, error) {
	key, err := secret.New(KeySize)
	if err != nil {
		return nil, err
	}
	reader := hkdf.New(sha256.New, master.Bytes(), nil, info)
	if _, err := io.ReadFull(reader, key.Bytes()); err != nil {
		key.Close()
		return nil, fmt.Errorf("aead: deriving key: %w", err)
	}
	return key, nil
}

// Encrypt encrypts plaintext under key and returns the blob in the
// standard format. The binding (typically the record's vault address)
// is authenticated but not stored: decryption with a different binding
// fails, preventing a record encrypted for one address from being
// replayed at another.
//
// The key is borrowed and NOT closed. It must be exactly KeySize
// bytes.
func Encrypt(key *secret.Buffer, plaintext, binding []byte) ([]byte, error) {
	cipher, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("aead: creating cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("aead: generating nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+cipher.Overhead())
	output[0] = BlobVersion
	copy(output[1:], nonce[:])

	// Seal appends the ciphertext+tag to output.
	return cipher.Seal(output, nonce[:], plaintext, buildAAD(BlobVersion, binding)), nil
}

// Decrypt decrypts a blob produced by Encrypt, authenticating it
// against the same binding. Returns ErrDecryptionFailed on any
// authentication failure.
//
// The key is borrowed and NOT closed.
func Decrypt(key *secret.Buffer, blob, binding []byte) ([]byte, error) {
	if len(blob) < BlobOverhead {
		return nil, fmt.Errorf("aead: blob is %d bytes, minimum is %d (version + nonce + tag)",
			len(blob), BlobOverhead)
	}

	version := blob[0]
	if version != BlobVersion {
		return nil, fmt.Errorf("aead: blob version %d is not supported (expected %d)", version, BlobVersion)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	cipher, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("aead: creating cipher: %w", err)
	}

	plaintext, err := cipher.Open(nil, nonce, ciphertext, buildAAD(version, binding))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// buildAAD concatenates the version byte and binding for the AEAD
// additional authenticated data.
func buildAAD(version byte, binding []byte) []byte {
	aad := make([]byte, 1+len(binding))
	aad[0] = version
	copy(aad[1:], binding)
	return aad
}
