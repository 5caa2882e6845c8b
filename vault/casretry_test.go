// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haven-foundation/haven/lib/clock"
)

func TestReadModifyWrite_Simple(t *testing.T) {
	store := NewMemory(MemoryConfig{})
	address := testAddress(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, address, []byte("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	version, err := ReadModifyWrite(ctx, store, address, RetryConfig{}, func(record Record) ([]byte, error) {
		return append(record.Payload, 'b'), nil
	})
	if err != nil {
		t.Fatalf("ReadModifyWrite: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}

	record, err := store.Get(ctx, address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(record.Payload) != "ab" {
		t.Errorf("payload = %q, want %q", record.Payload, "ab")
	}
}

func TestReadModifyWrite_RetriesThroughConflicts(t *testing.T) {
	store := NewMemory(MemoryConfig{})
	address := testAddress(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, address, []byte("base")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A rival mutates the record between our Get and Mutate for the
	// first two rounds. The third round wins.
	var mu sync.Mutex
	interferences := 0
	store.Intercept(func(op string, _ Address) error {
		if op != "mutate" {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if interferences < 2 {
			interferences++
			return ErrVersionConflict
		}
		return nil
	})

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	done := make(chan error, 1)
	go func() {
		_, err := ReadModifyWrite(ctx, store, address, RetryConfig{Clock: fakeClock}, func(record Record) ([]byte, error) {
			return []byte("mine"), nil
		})
		done <- err
	}()

	for range 2 {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(5 * time.Second)
	}
	if err := <-done; err != nil {
		t.Fatalf("ReadModifyWrite = %v, want success after retries", err)
	}

	record, err := store.Get(ctx, address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(record.Payload) != "mine" {
		t.Errorf("payload = %q, want %q", record.Payload, "mine")
	}
}

func TestReadModifyWrite_BoundExhausted(t *testing.T) {
	store := NewMemory(MemoryConfig{})
	address := testAddress(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, address, []byte("base")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Every mutate conflicts: the update must surface
	// ErrConcurrentModification, never report success.
	store.Intercept(func(op string, _ Address) error {
		if op == "mutate" {
			return ErrVersionConflict
		}
		return nil
	})

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	done := make(chan error, 1)
	go func() {
		_, err := ReadModifyWrite(ctx, store, address, RetryConfig{Attempts: 3, Clock: fakeClock}, func(record Record) ([]byte, error) {
			return []byte("never lands"), nil
		})
		done <- err
	}()

	for range 2 {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(5 * time.Second)
	}
	if err := <-done; !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("exhausted ReadModifyWrite = %v, want ErrConcurrentModification", err)
	}
}

func TestReadModifyWrite_NoChangeSkipsMutate(t *testing.T) {
	store := NewMemory(MemoryConfig{})
	address := testAddress(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, address, []byte("settled")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	opsBefore := store.OpCount()

	version, err := ReadModifyWrite(ctx, store, address, RetryConfig{}, func(record Record) ([]byte, error) {
		return nil, ErrNoChange
	})
	if err != nil {
		t.Fatalf("ReadModifyWrite: %v", err)
	}
	if version != 0 {
		t.Errorf("version = %d, want unchanged 0", version)
	}

	// Exactly one Get, no Mutate.
	if got := store.OpCount() - opsBefore; got != 1 {
		t.Errorf("operation count = %d, want 1 (get only)", got)
	}
}

func TestReadModifyWrite_FnErrorNotRetried(t *testing.T) {
	store := NewMemory(MemoryConfig{})
	address := testAddress(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, address, []byte("base")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	boom := errors.New("boom")
	calls := 0
	_, err := ReadModifyWrite(ctx, store, address, RetryConfig{}, func(record Record) ([]byte, error) {
		calls++
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ReadModifyWrite = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestReadModifyWrite_TerminalVaultErrorSurfaced(t *testing.T) {
	store := NewMemory(MemoryConfig{})
	ctx := context.Background()

	// Absent record: Get fails NotFound, no retry.
	_, err := ReadModifyWrite(ctx, store, testAddress(t), RetryConfig{}, func(record Record) ([]byte, error) {
		t.Fatal("fn must not run when Get fails")
		return nil, nil
	})
	if !IsNotFound(err) {
		t.Fatalf("ReadModifyWrite on absent = %v, want ErrNotFound", err)
	}
}

func TestReadModifyWrite_ConcurrentUpdatersBothLand(t *testing.T) {
	// Two goroutines append their own marker via read-modify-write.
	// Optimistic concurrency guarantees both eventually land: one
	// wins each version, the loser re-reads and retries.
	store := NewMemory(MemoryConfig{})
	address := testAddress(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, address, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var wg sync.WaitGroup
	for _, marker := range []byte{'x', 'y'} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ReadModifyWrite(ctx, store, address, RetryConfig{}, func(record Record) ([]byte, error) {
				return append(record.Payload, marker), nil
			})
			if err != nil {
				t.Errorf("updater %c: %v", marker, err)
			}
		}()
	}
	wg.Wait()

	record, err := store.Get(ctx, address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(record.Payload) != 2 {
		t.Fatalf("payload = %q, want both markers present", record.Payload)
	}
	if record.Version != 2 {
		t.Errorf("version = %d, want 2 (one per successful update)", record.Version)
	}
}
