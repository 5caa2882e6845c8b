// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/lib/aead"
	"github.com/haven-foundation/haven/lib/sealed"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// Permission names one container and the rights requested on it.
type Permission struct {
	Container string
	Rights    account.RightSet
}

// Request is an application's authorization request.
type Request struct {
	// AppID identifies the application. Required.
	AppID account.AppID

	// Permissions lists existing containers the application wants
	// access to. Every name must exist in the owner's registry;
	// requesting an unknown container is vault.ErrPermissionDenied.
	Permissions []Permission

	// NewContainer, when non-empty, asks for a dedicated fresh
	// container under that name, granted with full rights. The name
	// must not already exist in the registry.
	NewContainer string
}

// Grant is the credential set returned to an authorized application.
type Grant struct {
	// AppID echoes the request.
	AppID account.AppID

	// SignPublicKey is the application's ed25519 verification key.
	SignPublicKey []byte

	// SignPrivateKey is the application's signing key. Only set on
	// first-time authorization; the application must retain it.
	SignPrivateKey *secret.Buffer

	// EncryptPublicKey is the application's age recipient key.
	EncryptPublicKey string

	// EncryptPrivateKey is the application's age identity for
	// unwrapping container references. Only set on first-time
	// authorization.
	EncryptPrivateKey *secret.Buffer

	// AccessAddress is the account's access container address, where
	// the application finds its wrapped references.
	AccessAddress vault.Address

	// Refs are the decrypted references for every container the
	// application now holds a grant on.
	Refs []account.ContainerRef
}

// Close erases the grant's private key material, if any.
func (g *Grant) Close() error {
	var firstError error
	for _, buffer := range []*secret.Buffer{g.SignPrivateKey, g.EncryptPrivateKey} {
		if buffer == nil {
			continue
		}
		if err := buffer.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}

// Authorize grants an application the requested permissions. The
// access container is updated in a single commit: on any failure no
// partial entry remains. Re-authorizing already-held permissions is
// idempotent (no container write, no version bump); new permissions
// and rights are additive.
func (s *Session) Authorize(ctx context.Context, request Request) (*Grant, error) {
	if request.AppID == "" {
		return nil, fmt.Errorf("authority: AppID is required")
	}
	if len(request.Permissions) == 0 && request.NewContainer == "" {
		return nil, fmt.Errorf("authority: request grants nothing")
	}

	// Candidate keypair for the first-time path. Generated before the
	// commit loop so a retried loop body reuses the same candidate;
	// discarded if the application turns out to already exist.
	candidateSignPublic, candidateSignPrivate, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("authority: generating application signing key: %w", err)
	}
	candidateSign, err := secret.NewFromBytes(candidateSignPrivate)
	if err != nil {
		return nil, err
	}
	candidateEncrypt, err := sealed.GenerateKeypair()
	if err != nil {
		candidateSign.Close()
		return nil, fmt.Errorf("authority: generating application encryption key: %w", err)
	}
	firstTime := false
	keepCandidates := false
	defer func() {
		if !keepCandidates {
			candidateSign.Close()
			candidateEncrypt.Close()
		}
	}()

	// A dedicated container is provisioned before the commit; if the
	// commit fails the orphaned record is unreachable garbage, never
	// a partial grant.
	var newEntry *account.RegistryEntry
	if request.NewContainer != "" {
		entry, err := s.provisionContainer(ctx)
		if err != nil {
			return nil, err
		}
		defer secret.Zero(entry.Key)
		newEntry = entry
	}

	grant := &Grant{AppID: request.AppID, AccessAddress: s.account.AccessAddress()}
	_, err = s.account.Update(ctx, func(container *account.Container) error {
		if request.NewContainer != "" {
			if _, exists := container.Registry[request.NewContainer]; exists {
				return opDenied("container %q already exists", request.NewContainer)
			}
			container.Registry[request.NewContainer] = account.RegistryEntry{
				Address: newEntry.Address,
				Key:     append([]byte(nil), newEntry.Key...),
			}
		}
		for _, permission := range request.Permissions {
			if _, exists := container.Registry[permission.Container]; !exists {
				return opDenied("container %q is not grantable", permission.Container)
			}
			if permission.Rights.IsEmpty() {
				return opDenied("empty rights for container %q", permission.Container)
			}
		}

		entry, exists := container.Apps[request.AppID]
		firstTime = !exists
		if firstTime {
			entry = account.AppEntry{
				SignPublicKey:    append([]byte(nil), candidateSignPublic...),
				EncryptPublicKey: candidateEncrypt.PublicKey,
				Grants:           map[string]account.Grant{},
			}
		}

		requested := append([]Permission(nil), request.Permissions...)
		if request.NewContainer != "" {
			requested = append(requested, Permission{
				Container: request.NewContainer,
				Rights:    account.AllRights(),
			})
		}

		grant.Refs = grant.Refs[:0]
		for _, permission := range requested {
			registry := container.Registry[permission.Container]
			held, holds := entry.Grants[permission.Container]
			if holds {
				// Already granted: only the rights union changes.
				// The existing wrapped ref stays valid.
				held.Rights = held.Rights.Union(permission.Rights)
				entry.Grants[permission.Container] = held
			} else {
				ref := account.ContainerRef{
					Name:    permission.Container,
					Address: registry.Address,
					Key:     registry.Key,
				}
				wrapped, err := account.WrapRef(ref, []string{
					entry.EncryptPublicKey,
					s.account.EscrowRecipient(),
				})
				if err != nil {
					return err
				}
				entry.Grants[permission.Container] = account.Grant{
					Rights:     permission.Rights,
					WrappedRef: wrapped,
				}
			}
			grant.Refs = append(grant.Refs, account.ContainerRef{
				Name:    permission.Container,
				Address: registry.Address,
				Key:     append([]byte(nil), registry.Key...),
			})
		}

		grant.SignPublicKey = append([]byte(nil), entry.SignPublicKey...)
		grant.EncryptPublicKey = entry.EncryptPublicKey
		container.Apps[request.AppID] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if firstTime {
		keepCandidates = true
		grant.SignPrivateKey = candidateSign
		grant.EncryptPrivateKey = candidateEncrypt.PrivateKey
	}
	s.logger.Info("application authorized",
		"app", request.AppID.String(),
		"first_time", firstTime,
		"containers", len(grant.Refs),
	)
	return grant, nil
}

// provisionContainer creates an empty data container at a random
// address with a fresh symmetric key.
func (s *Session) provisionContainer(ctx context.Context) (*account.RegistryEntry, error) {
	address, err := vault.RandomAddress()
	if err != nil {
		return nil, err
	}
	key, err := aead.NewKey()
	if err != nil {
		return nil, err
	}
	defer key.Close()

	blob, err := aead.Encrypt(key, []byte{}, address[:])
	if err != nil {
		return nil, fmt.Errorf("authority: encrypting new container: %w", err)
	}
	if _, err := s.vault.Put(ctx, address, blob); err != nil {
		return nil, fmt.Errorf("authority: storing new container: %w", err)
	}
	return &account.RegistryEntry{
		Address: address,
		Key:     append([]byte(nil), key.Bytes()...),
	}, nil
}

// opDenied wraps vault.ErrPermissionDenied with a reason.
func opDenied(format string, args ...any) error {
	return fmt.Errorf("authority: "+format+": %w",
		append(args, vault.ErrPermissionDenied)...)
}
