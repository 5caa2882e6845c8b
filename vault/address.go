// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// AddressSize is the size in bytes of every vault address.
const AddressSize = 32

// Address identifies a record in a vault. Addresses are derived from
// content or identity material via domain-tagged BLAKE3, or drawn at
// random for new containers — never chosen freely, so two records can
// collide only by hash collision.
type Address [AddressSize]byte

// Address derivation domain tags. These are the first input to the
// BLAKE3 hash for each derivation path, so an account packet address
// can never collide with a revocation record address even for
// pathological inputs. Changing any of these orphans every record
// stored under the old derivation.
const (
	domainAccount         = "haven.vault.addr.account.v1"
	domainRevocation      = "haven.vault.addr.revocation.v1"
	domainRevocationIndex = "haven.vault.addr.revocation-index.v1"
)

// AccountAddress derives the address of an account packet from the
// account locator. Deterministic: the same locator always yields the
// same address, which is how login finds the packet with nothing but
// the user's credentials.
func AccountAddress(locator []byte) Address {
	return deriveAddress(domainAccount, locator)
}

// RevocationAddress derives the address of the revocation checkpoint
// for (identity, app) from the identity's signing public key and the
// application identifier. Deterministic so that a session resuming
// after a crash — possibly on a different device — can rediscover
// in-flight revocations from vault state alone.
func RevocationAddress(signPublicKey []byte, appID string) Address {
	return deriveAddress(domainRevocation, signPublicKey, []byte(appID))
}

// RevocationIndexAddress derives the single per-account address that
// lists the account's in-flight revocations. Discovery reads this
// index instead of scanning application entries, so a checkpoint left
// by a crash is found even after its entry is gone.
func RevocationIndexAddress(signPublicKey []byte) Address {
	return deriveAddress(domainRevocationIndex, signPublicKey)
}

// RandomAddress returns a fresh address drawn from crypto/rand. Used
// for new data containers, whose location carries no meaning.
func RandomAddress() (Address, error) {
	var address Address
	if _, err := rand.Read(address[:]); err != nil {
		return Address{}, fmt.Errorf("vault: generating random address: %w", err)
	}
	return address, nil
}

// DeriveAddress computes a domain-tagged content address. The domain
// must be unique per caller (convention: "haven.<package>.addr.<use>.vN").
// Exposed for packages that store content-addressed records, such as
// blob.
func DeriveAddress(domain string, parts ...[]byte) Address {
	return deriveAddress(domain, parts...)
}

// deriveAddress hashes the domain tag and each part, length-prefixed
// so that part boundaries are unambiguous.
func deriveAddress(domain string, parts ...[]byte) Address {
	hasher := blake3.New()
	writeLengthPrefixed(hasher, []byte(domain))
	for _, part := range parts {
		writeLengthPrefixed(hasher, part)
	}

	var address Address
	hasher.Digest().Read(address[:])
	return address
}

func writeLengthPrefixed(hasher *blake3.Hasher, data []byte) {
	var length [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(length[:], uint64(len(data)))
	hasher.Write(length[:n])
	hasher.Write(data)
}

// String returns the hex form of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler. Addresses serialize
// as hex strings in CBOR records and CLI output.
func (a Address) MarshalText() ([]byte, error) {
	text := make([]byte, hex.EncodedLen(len(a)))
	hex.Encode(text, a[:])
	return text, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != AddressSize {
		return fmt.Errorf("vault: address must be %d hex bytes, got %d characters", AddressSize, len(text))
	}
	_, err := hex.Decode(a[:], text)
	if err != nil {
		return fmt.Errorf("vault: decoding address: %w", err)
	}
	return nil
}

// ParseAddress parses the hex form of an address.
func ParseAddress(text string) (Address, error) {
	var address Address
	if err := address.UnmarshalText([]byte(text)); err != nil {
		return Address{}, err
	}
	return address, nil
}

// Less reports whether a orders before other bytewise. Revocation
// processes containers in address order so that interrupted runs
// resume deterministically.
func (a Address) Less(other Address) bool {
	for i := range a {
		if a[i] != other[i] {
			return a[i] < other[i]
		}
	}
	return false
}
