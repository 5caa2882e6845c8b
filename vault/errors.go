// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"errors"
	"fmt"
)

// Sentinel errors for the vault contract. Implementations wrap these
// in an [*Error] carrying the operation and address; callers branch
// with errors.Is.
var (
	// ErrNotFound: no record exists at the address.
	ErrNotFound = errors.New("vault: not found")

	// ErrAlreadyExists: Put on an address that is already populated.
	// First write wins; the record at an address is created once.
	ErrAlreadyExists = errors.New("vault: already exists")

	// ErrVersionConflict: Mutate or Delete with a stale expected
	// version. Resolved by re-reading and retrying the whole
	// read-modify-write; see ReadModifyWrite. Never surfaced past the
	// retry bound — callers see ErrConcurrentModification instead.
	ErrVersionConflict = errors.New("vault: version conflict")

	// ErrPermissionDenied: the vault rejected the operation for this
	// session's identity.
	ErrPermissionDenied = errors.New("vault: permission denied")

	// ErrUnavailable: the vault could not be reached. Transient — the
	// operation did not semantically fail and is safe to repeat.
	ErrUnavailable = errors.New("vault: network unavailable")

	// ErrConcurrentModification: a read-modify-write lost the version
	// race on every attempt within the retry bound. The caller's
	// change was NOT applied and is reported, never silently dropped.
	ErrConcurrentModification = errors.New("vault: concurrent modification, retries exhausted")
)

// Error wraps a sentinel with the operation and address where it
// occurred, so failures surface with enough context to resume.
type Error struct {
	// Op is the vault operation: "get", "put", "mutate", "delete".
	Op string

	// Address is the record the operation targeted.
	Address Address

	// Err is one of the package sentinels, or a transport error
	// wrapped in ErrUnavailable.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vault: %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is transient: the operation may be
// repeated as-is with a chance of success. Semantic failures
// (not-found, already-exists, stale version, permission) are terminal
// for the issuing operation and return false — retrying them blindly
// would loop forever or mask a logic error.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsVersionConflict reports whether err is ErrVersionConflict.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// opError wraps err with operation context unless it is nil.
func opError(op string, address Address, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Address: address, Err: err}
}
