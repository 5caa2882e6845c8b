// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"errors"
	"fmt"
	"sort"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/identity"
	"github.com/haven-foundation/haven/lib/codec"
	"github.com/haven-foundation/haven/vault"
)

// errRecordForged is returned when a revocation record at this
// account's address does not verify under the account's signing key.
var errRecordForged = errors.New("authority: revocation record signature invalid")

// revocationRecord is the durable checkpoint for one in-flight
// revocation. It lives in the vault at
// RevocationAddress(signPublicKey, appID) from the moment the
// container list is enumerated until the application's entry has been
// removed, shrinking as containers complete.
type revocationRecord struct {
	// AppID is the application being revoked.
	AppID account.AppID `cbor:"1,keyasint"`

	// Remaining lists the containers not yet re-keyed, in address
	// order. Processing always takes the first element.
	Remaining []pendingContainer `cbor:"2,keyasint"`
}

// pendingContainer is one container awaiting re-key.
type pendingContainer struct {
	// Name is the container's registry name.
	Name string `cbor:"1,keyasint"`

	// Address is the container's vault address.
	Address vault.Address `cbor:"2,keyasint"`

	// SealedKey, when non-empty, is the replacement symmetric key for
	// this container, sealed to the owner. It is checkpointed before
	// the container is re-encrypted so that a resumed revocation can
	// decrypt the container whichever side of the re-encrypt the
	// crash fell on.
	SealedKey []byte `cbor:"3,keyasint"`
}

// revocationIndex lists the account's in-flight revocations, one
// record per account at RevocationIndexAddress(signPublicKey). An
// application ID is added before its checkpoint is written and removed
// after the checkpoint is deleted, so every live checkpoint is listed
// here — discovery reads the index, not the application entries, which
// disappear before the checkpoint does.
type revocationIndex struct {
	AppIDs []account.AppID `cbor:"1,keyasint"`
}

// signedRecord is the wire form: record payload plus an ed25519
// signature by the account's master signing key, so a resumed session
// can verify the checkpoint is its own.
type signedRecord struct {
	Payload   []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

func encodeRecord(owner *identity.Identity, record revocationRecord) ([]byte, error) {
	payload, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("authority: encoding revocation record: %w", err)
	}
	return codec.Marshal(signedRecord{
		Payload:   payload,
		Signature: owner.Sign(payload),
	})
}

func decodeRecord(owner *identity.Identity, data []byte) (revocationRecord, error) {
	var signed signedRecord
	if err := codec.Unmarshal(data, &signed); err != nil {
		return revocationRecord{}, fmt.Errorf("authority: decoding revocation record: %w", err)
	}
	if !owner.Verify(signed.Payload, signed.Signature) {
		return revocationRecord{}, errRecordForged
	}
	var record revocationRecord
	if err := codec.Unmarshal(signed.Payload, &record); err != nil {
		return revocationRecord{}, fmt.Errorf("authority: decoding revocation record: %w", err)
	}
	return record, nil
}

func encodeIndex(owner *identity.Identity, index revocationIndex) ([]byte, error) {
	sort.Slice(index.AppIDs, func(i, j int) bool {
		return index.AppIDs[i] < index.AppIDs[j]
	})
	payload, err := codec.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("authority: encoding revocation index: %w", err)
	}
	return codec.Marshal(signedRecord{
		Payload:   payload,
		Signature: owner.Sign(payload),
	})
}

func decodeIndex(owner *identity.Identity, data []byte) (revocationIndex, error) {
	var signed signedRecord
	if err := codec.Unmarshal(data, &signed); err != nil {
		return revocationIndex{}, fmt.Errorf("authority: decoding revocation index: %w", err)
	}
	if !owner.Verify(signed.Payload, signed.Signature) {
		return revocationIndex{}, errRecordForged
	}
	var index revocationIndex
	if err := codec.Unmarshal(signed.Payload, &index); err != nil {
		return revocationIndex{}, fmt.Errorf("authority: decoding revocation index: %w", err)
	}
	return index, nil
}

// sortPending orders containers by address, the fixed processing
// order that makes resumed revocations deterministic.
func sortPending(pending []pendingContainer) {
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Address.Less(pending[j].Address)
	})
}
