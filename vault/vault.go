// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import "context"

// Record is a versioned payload read from a vault.
type Record struct {
	// Version is the record's current version. 0 after the first Put;
	// incremented by exactly one on every successful Mutate. Versions
	// never regress at an address, even across Delete and re-Put.
	Version uint64

	// Payload is the opaque (encrypted) record content.
	Payload []byte
}

// Vault is the storage port every Haven component mutates state
// through. All methods may fail with [ErrUnavailable] (transient) in
// addition to the semantic errors documented per method; semantic
// errors are terminal and must not be blindly retried.
//
// Implementations must be safe for concurrent use. They serialize
// their own internal transport state; callers never need locks and
// reason purely in terms of version-conflict retries.
type Vault interface {
	// Get returns the record at address. Fails with ErrNotFound if
	// the address is unpopulated.
	Get(ctx context.Context, address Address) (Record, error)

	// Put creates the record at address with version 0 and returns
	// the assigned version. Fails with ErrAlreadyExists if the
	// address is already populated (first write wins). Re-creating a
	// previously deleted address succeeds, continuing the old version
	// sequence rather than restarting at 0.
	Put(ctx context.Context, address Address, payload []byte) (uint64, error)

	// Mutate replaces the record's payload if expectedVersion matches
	// the stored version, returning the new version
	// (expectedVersion+1). Fails with ErrVersionConflict on a stale
	// expectedVersion — the payload is NOT applied — and ErrNotFound
	// if the address is unpopulated.
	Mutate(ctx context.Context, address Address, expectedVersion uint64, payload []byte) (uint64, error)

	// Delete removes the record if expectedVersion matches, with the
	// same conflict semantics as Mutate. The version sequence at the
	// address survives deletion.
	Delete(ctx context.Context, address Address, expectedVersion uint64) error
}
