// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data such
// as account passwords, derived key material, and container keys.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, guaranteeing secret material does not persist after release.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//
// Access via [Buffer.Bytes] (slice into mmap region) or
// [Buffer.String] (heap copy for API boundaries). [Buffer.Equal] uses
// constant-time comparison. After Close, any access panics. Close is
// idempotent.
//
// [ReadFromPath] loads a secret from a file or stdin; [PromptPassword]
// reads one from a terminal without echo. [Zero] wipes a heap slice in
// place for the short-lived copies that cannot avoid the heap.
//
// Depends on golang.org/x/sys/unix and golang.org/x/term. No
// Haven-internal dependencies. Imported by lib/sealed and identity for
// key material protection.
package secret
