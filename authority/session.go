// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/identity"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// SessionConfig holds everything needed to open a session.
type SessionConfig struct {
	// Vault is the storage port. Required.
	Vault vault.Vault

	// Locator is the account's public locator (username, email).
	// Required.
	Locator []byte

	// Password is consumed by key derivation: the buffer is read and
	// closed by Login/Register regardless of outcome.
	Password *secret.Buffer

	// KDF tunes argon2id. Zero value uses production parameters.
	KDF identity.KDFParams

	// Retry bounds every read-modify-write loop in the session. Zero
	// value uses vault defaults.
	Retry vault.RetryConfig

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Session is a logged-in account: the derived identity, the loaded
// account, and the engines operating on them. Not safe for concurrent
// use of Logout with other methods; Authorize and Revoke calls may
// run concurrently with each other (and with other sessions of the
// same account), serialized by the vault's version discipline.
type Session struct {
	owner   *identity.Identity
	account *account.Account
	vault   vault.Vault
	retry   vault.RetryConfig
	logger  *slog.Logger
}

// Register derives the identity and creates a new account. Fails with
// vault.ErrAlreadyExists if the locator is taken.
func Register(ctx context.Context, config SessionConfig) (*Session, error) {
	return openSession(ctx, config, account.Create)
}

// Login derives the identity and loads an existing account. A wrong
// password surfaces account.ErrInvalidCredentials; an unregistered
// locator surfaces vault.ErrNotFound.
//
// Login does not resume in-flight revocations itself: call
// [Session.PendingRevocations] after login and
// [Session.ResumeRevocations] if it reports any.
func Login(ctx context.Context, config SessionConfig) (*Session, error) {
	return openSession(ctx, config, account.Load)
}

func openSession(
	ctx context.Context,
	config SessionConfig,
	open func(context.Context, account.Config) (*account.Account, error),
) (*Session, error) {
	if config.Vault == nil {
		return nil, fmt.Errorf("authority: Vault is required")
	}
	if config.Password == nil {
		return nil, fmt.Errorf("authority: Password is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	owner, err := identity.Derive(config.Locator, config.Password, config.KDF)
	if closeErr := config.Password.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	acct, err := open(ctx, account.Config{
		Vault:    config.Vault,
		Identity: owner,
		Retry:    config.Retry,
		Logger:   config.Logger,
	})
	if err != nil {
		owner.Close()
		return nil, err
	}
	return &Session{
		owner:   owner,
		account: acct,
		vault:   config.Vault,
		retry:   config.Retry,
		logger:  config.Logger,
	}, nil
}

// Identity returns the session's derived identity.
func (s *Session) Identity() *identity.Identity { return s.owner }

// Account returns the loaded account.
func (s *Session) Account() *account.Account { return s.account }

// PendingRevocations reports revocations of this account with
// containers still awaiting re-key. It reads the account's revocation
// index, so an interrupted revocation is found even after the
// application's entry is gone. Each returned AppID has a durable
// checkpoint and should be passed to ResumeRevocations.
func (s *Session) PendingRevocations(ctx context.Context) ([]account.AppID, error) {
	index, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}

	var pending []account.AppID
	for _, appID := range index.AppIDs {
		address := vault.RevocationAddress(s.owner.SignPublicKey(), string(appID))
		stored, err := s.vault.Get(ctx, address)
		switch {
		case errors.Is(err, vault.ErrNotFound):
			// Index entry without a record: a crash before the
			// checkpoint was written. Nothing to re-key.
			continue
		case err != nil:
			return nil, fmt.Errorf("authority: reading revocation record: %w", err)
		}
		record, err := decodeRecord(s.owner, stored.Payload)
		if err != nil {
			return nil, err
		}
		if len(record.Remaining) > 0 {
			pending = append(pending, appID)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	return pending, nil
}

// ResumeRevocations walks the revocation index, finishing every
// interrupted revocation and clearing leftovers. A record whose
// containers are all re-keyed is cleanup-only: the checkpoint is
// deleted without touching the application's entry, which — if one
// exists — belongs to a later authorization. Returns
// ErrRevocationIncomplete if the network becomes unavailable partway;
// safe to call again.
func (s *Session) ResumeRevocations(ctx context.Context) error {
	index, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	for _, appID := range index.AppIDs {
		address := vault.RevocationAddress(s.owner.SignPublicKey(), string(appID))
		stored, err := s.vault.Get(ctx, address)
		switch {
		case errors.Is(err, vault.ErrNotFound):
			if err := s.removeFromIndex(ctx, appID); err != nil {
				return s.revocationError(appID, "updating index", err)
			}
			continue
		case err != nil:
			return s.revocationError(appID, "reading checkpoint", err)
		}
		record, err := decodeRecord(s.owner, stored.Payload)
		if err != nil {
			return err
		}
		if len(record.Remaining) == 0 {
			if err := s.deleteRecord(ctx, address); err != nil {
				return s.revocationError(appID, "deleting checkpoint", err)
			}
			if err := s.removeFromIndex(ctx, appID); err != nil {
				return s.revocationError(appID, "updating index", err)
			}
			continue
		}
		if err := s.Revoke(ctx, appID); err != nil {
			return err
		}
	}
	return nil
}

// readIndex loads the account's revocation index; a missing index is
// an empty one.
func (s *Session) readIndex(ctx context.Context) (revocationIndex, error) {
	stored, err := s.vault.Get(ctx, vault.RevocationIndexAddress(s.owner.SignPublicKey()))
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return revocationIndex{}, nil
	case err != nil:
		return revocationIndex{}, fmt.Errorf("authority: reading revocation index: %w", err)
	}
	return decodeIndex(s.owner, stored.Payload)
}

// Logout erases the session's key material. The identity and account
// handles are unusable afterward. Idempotent.
func (s *Session) Logout() error {
	accountErr := s.account.Close()
	identityErr := s.owner.Close()
	if accountErr != nil {
		return accountErr
	}
	return identityErr
}
