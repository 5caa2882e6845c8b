// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vaultd

import (
	"errors"
	"fmt"

	"github.com/haven-foundation/haven/vault"
)

// Error codes on the gateway wire. Stable contract: the client maps
// these back onto the vault error taxonomy, so renaming one is a
// protocol break.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyExists    = "ALREADY_EXISTS"
	CodeVersionConflict  = "VERSION_CONFLICT"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeBadRequest       = "BAD_REQUEST"
)

// RecordResponse is the body of a successful GET.
type RecordResponse struct {
	Version uint64 `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint"`
}

// PutRequest is the body of a PUT (create).
type PutRequest struct {
	Payload []byte `cbor:"1,keyasint"`
}

// MutateRequest is the body of a mutate POST.
type MutateRequest struct {
	ExpectedVersion uint64 `cbor:"1,keyasint"`
	Payload         []byte `cbor:"2,keyasint"`
}

// DeleteRequest is the body of a delete POST.
type DeleteRequest struct {
	ExpectedVersion uint64 `cbor:"1,keyasint"`
}

// VersionResponse is the body of a successful PUT or mutate.
type VersionResponse struct {
	Version uint64 `cbor:"1,keyasint"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// GatewayError is the client-side view of an ErrorResponse. It wraps
// the corresponding vault sentinel so call sites branch with errors.Is
// against the taxonomy, not against wire codes:
//
//	var gatewayErr *vaultd.GatewayError
//	if errors.As(err, &gatewayErr) { ... gatewayErr.Code ... }
type GatewayError struct {
	// Code is the wire error code.
	Code string
	// Message is the human-readable description from the gateway.
	Message string
	// StatusCode is the HTTP status of the response.
	StatusCode int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Unwrap maps the wire code onto the vault error taxonomy.
func (e *GatewayError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return vault.ErrNotFound
	case CodeAlreadyExists:
		return vault.ErrAlreadyExists
	case CodeVersionConflict:
		return vault.ErrVersionConflict
	case CodePermissionDenied:
		return vault.ErrPermissionDenied
	case CodeUnavailable:
		return vault.ErrUnavailable
	default:
		return nil
	}
}

// codeForError maps a vault error to its wire code and HTTP status.
func codeForError(err error) (code string, status int) {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return CodeNotFound, 404
	case errors.Is(err, vault.ErrAlreadyExists):
		return CodeAlreadyExists, 409
	case errors.Is(err, vault.ErrVersionConflict):
		return CodeVersionConflict, 409
	case errors.Is(err, vault.ErrPermissionDenied):
		return CodePermissionDenied, 403
	case errors.Is(err, vault.ErrUnavailable):
		return CodeUnavailable, 503
	default:
		return CodeUnavailable, 500
	}
}
