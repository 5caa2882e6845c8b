// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package blob stores immutable, content-addressed blobs in the
// vault. A blob is compressed, encrypted under a caller-supplied
// container key, and stored at a BLAKE3 address derived from the key
// and the content: the same content under the same key always lands
// at the same address, so duplicate puts are free, while holders of
// other keys learn nothing from the address.
//
// A Store opened with DryRun keeps blobs in memory and never touches
// the vault, while still computing the exact addresses a real put
// would use.
package blob

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/haven-foundation/haven/lib/aead"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// addressDomain tags blob address derivation.
const addressDomain = "haven.vault.addr.blob.v1"

// compression tags stored in the blob header (1 byte). Protocol
// constants.
const (
	compressionNone byte = 0
	compressionZstd byte = 1
)

// maxBlobSize bounds a single decompressed blob.
const maxBlobSize = 64 << 20

// ErrBlobCorrupt reports a blob whose ciphertext does not match its
// address or whose header is malformed.
var ErrBlobCorrupt = errors.New("blob: corrupt")

// zstd encoder and decoder are reused across calls; both are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("blob: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("blob: zstd decoder initialization failed: " + err.Error())
	}
}

// Config holds a Store's dependencies.
type Config struct {
	// Vault is the storage port. Required unless DryRun is set.
	Vault vault.Vault

	// Key is the container key blobs are encrypted under. Required;
	// borrowed, not owned.
	Key *secret.Buffer

	// DryRun keeps blobs in memory instead of writing to the vault.
	// Addresses are computed exactly as a real put would.
	DryRun bool

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Store reads and writes content-addressed blobs.
type Store struct {
	vault  vault.Vault
	key    *secret.Buffer
	logger *slog.Logger

	mu     sync.Mutex
	dryRun map[vault.Address][]byte // nil unless DryRun
}

// NewStore validates config and returns a Store.
func NewStore(config Config) (*Store, error) {
	if config.Key == nil {
		return nil, fmt.Errorf("blob: Key is required")
	}
	if config.Vault == nil && !config.DryRun {
		return nil, fmt.Errorf("blob: Vault is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	store := &Store{
		vault:  config.Vault,
		key:    config.Key,
		logger: config.Logger,
	}
	if config.DryRun {
		store.dryRun = map[vault.Address][]byte{}
	}
	return store, nil
}

// Put stores content and returns its address. Storing the same
// content twice returns the same address without error.
func (s *Store) Put(ctx context.Context, content []byte) (vault.Address, error) {
	if len(content) > maxBlobSize {
		return vault.Address{}, fmt.Errorf("blob: %d bytes exceeds the %d byte limit", len(content), maxBlobSize)
	}

	// The address is keyed: derived from the container key and the
	// content, so identical content under the same key always lands
	// at the same address (deduplication) while revealing nothing to
	// holders of other keys.
	address := s.contentAddress(content)
	plaintext := encodeBlob(content)
	defer secret.Zero(plaintext)
	ciphertext, err := aead.Encrypt(s.key, plaintext, address[:])
	if err != nil {
		return vault.Address{}, fmt.Errorf("blob: encrypting: %w", err)
	}

	if s.dryRun != nil {
		s.mu.Lock()
		s.dryRun[address] = ciphertext
		s.mu.Unlock()
		s.logger.Debug("blob stored (dry run)", "address", address.String(), "size", len(content))
		return address, nil
	}

	_, err = s.vault.Put(ctx, address, ciphertext)
	if err != nil && !errors.Is(err, vault.ErrAlreadyExists) {
		return vault.Address{}, fmt.Errorf("blob: storing: %w", err)
	}
	s.logger.Debug("blob stored",
		"address", address.String(),
		"size", len(content),
		"stored_size", len(ciphertext),
		"duplicate", errors.Is(err, vault.ErrAlreadyExists),
	)
	return address, nil
}

// Get fetches and decodes the blob at address.
func (s *Store) Get(ctx context.Context, address vault.Address) ([]byte, error) {
	ciphertext, err := s.fetch(ctx, address)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Decrypt(s.key, ciphertext, address[:])
	if err != nil {
		return nil, fmt.Errorf("blob: decrypting %s: %w", address, err)
	}
	defer secret.Zero(plaintext)
	content, err := decodeBlob(plaintext)
	if err != nil {
		return nil, err
	}
	if s.contentAddress(content) != address {
		return nil, fmt.Errorf("blob: %s: content does not match address: %w", address, ErrBlobCorrupt)
	}
	return content, nil
}

// contentAddress derives the keyed content address.
func (s *Store) contentAddress(content []byte) vault.Address {
	return vault.DeriveAddress(addressDomain, s.key.Bytes(), content)
}

func (s *Store) fetch(ctx context.Context, address vault.Address) ([]byte, error) {
	if s.dryRun != nil {
		s.mu.Lock()
		ciphertext, ok := s.dryRun[address]
		s.mu.Unlock()
		if !ok {
			return nil, &vault.Error{Op: "get", Address: address, Err: vault.ErrNotFound}
		}
		return ciphertext, nil
	}
	record, err := s.vault.Get(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("blob: fetching %s: %w", address, err)
	}
	return record.Payload, nil
}

// encodeBlob builds the plaintext: [tag][uvarint content size]
// [payload], compressing when it helps.
func encodeBlob(content []byte) []byte {
	header := make([]byte, 1+binary.MaxVarintLen64)
	written := binary.PutUvarint(header[1:], uint64(len(content)))
	header = header[:1+written]

	compressed := zstdEncoder.EncodeAll(content, nil)
	if len(compressed) < len(content) {
		header[0] = compressionZstd
		return append(header, compressed...)
	}
	header[0] = compressionNone
	return append(header, content...)
}

func decodeBlob(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("blob: empty payload: %w", ErrBlobCorrupt)
	}
	tag := plaintext[0]
	size, read := binary.Uvarint(plaintext[1:])
	if read <= 0 || size > maxBlobSize {
		return nil, fmt.Errorf("blob: malformed header: %w", ErrBlobCorrupt)
	}
	payload := plaintext[1+read:]

	switch tag {
	case compressionNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("blob: size mismatch: %w", ErrBlobCorrupt)
		}
		return append([]byte(nil), payload...), nil
	case compressionZstd:
		content, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("blob: zstd decompress: %w", err)
		}
		if uint64(len(content)) != size {
			return nil, fmt.Errorf("blob: size mismatch after decompress: %w", ErrBlobCorrupt)
		}
		return content, nil
	default:
		return nil, fmt.Errorf("blob: unknown compression tag %d: %w", tag, ErrBlobCorrupt)
	}
}
