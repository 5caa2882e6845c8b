// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Memory is the in-process Vault used by tests and offline dry runs.
// It reproduces the vault's optimistic-concurrency contract exactly:
// stale expected versions are rejected without applying the payload,
// versions increment by one per successful mutate, and the version
// sequence at an address survives delete and re-create.
//
// Memory additionally supports fault injection via [Memory.Intercept],
// which crash-recovery and retry tests use to fail chosen operations
// with chosen errors.
type Memory struct {
	mu      sync.Mutex
	records map[Address]*memoryRecord
	ops     uint64
	hook    InterceptFunc
	logger  *slog.Logger
}

// memoryRecord tracks payload and version for one address. A deleted
// record becomes a tombstone (present == false) that preserves the
// version counter.
type memoryRecord struct {
	version uint64
	payload []byte
	present bool
}

// InterceptFunc inspects an operation before the store applies it.
// Returning a non-nil error fails the operation with that error; the
// store is not modified. op is "get", "put", "mutate", or "delete".
type InterceptFunc func(op string, address Address) error

// MemoryConfig holds options for NewMemory. The zero value is valid.
type MemoryConfig struct {
	// Logger is used for operation tracing at debug level. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// NewMemory returns an empty in-memory vault.
func NewMemory(config MemoryConfig) *Memory {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		records: make(map[Address]*memoryRecord),
		logger:  logger,
	}
}

// Intercept installs hook, replacing any previous one. Pass nil to
// remove. The hook runs under the store's lock: it must not call back
// into the store.
func (m *Memory) Intercept(hook InterceptFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// OpCount returns the number of operations attempted (including those
// failed by an intercept hook).
func (m *Memory) OpCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops
}

func (m *Memory) Get(ctx context.Context, address Address) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.beginLocked("get", address); err != nil {
		return Record{}, opError("get", address, err)
	}

	record, ok := m.records[address]
	if !ok || !record.present {
		return Record{}, opError("get", address, ErrNotFound)
	}
	return Record{Version: record.version, Payload: slices.Clone(record.payload)}, nil
}

func (m *Memory) Put(ctx context.Context, address Address, payload []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.beginLocked("put", address); err != nil {
		return 0, opError("put", address, err)
	}

	record, ok := m.records[address]
	if ok && record.present {
		return 0, opError("put", address, ErrAlreadyExists)
	}

	version := uint64(0)
	if ok {
		// Re-creating a deleted address: continue the version
		// sequence so no stale holder of an old version can win a
		// CAS against the new record.
		version = record.version + 1
	}
	m.records[address] = &memoryRecord{
		version: version,
		payload: slices.Clone(payload),
		present: true,
	}
	return version, nil
}

func (m *Memory) Mutate(ctx context.Context, address Address, expectedVersion uint64, payload []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.beginLocked("mutate", address); err != nil {
		return 0, opError("mutate", address, err)
	}

	record, ok := m.records[address]
	if !ok || !record.present {
		return 0, opError("mutate", address, ErrNotFound)
	}
	if record.version != expectedVersion {
		// The payload must not be applied on a stale version. This is
		// the compare-and-swap fidelity the whole system rests on.
		return 0, opError("mutate", address, ErrVersionConflict)
	}

	record.version++
	record.payload = slices.Clone(payload)
	return record.version, nil
}

func (m *Memory) Delete(ctx context.Context, address Address, expectedVersion uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.beginLocked("delete", address); err != nil {
		return opError("delete", address, err)
	}

	record, ok := m.records[address]
	if !ok || !record.present {
		return opError("delete", address, ErrNotFound)
	}
	if record.version != expectedVersion {
		return opError("delete", address, ErrVersionConflict)
	}

	// Tombstone: drop the payload, keep the version counter.
	record.payload = nil
	record.present = false
	return nil
}

// beginLocked counts the operation and runs the intercept hook.
func (m *Memory) beginLocked(op string, address Address) error {
	m.ops++
	if m.hook != nil {
		if err := m.hook(op, address); err != nil {
			m.logger.Debug("vault operation failed by intercept",
				"op", op, "address", address.String(), "error", err)
			return err
		}
	}
	return nil
}
