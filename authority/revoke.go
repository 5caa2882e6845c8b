// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"errors"
	"fmt"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/lib/aead"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// ErrRevocationIncomplete reports a revocation interrupted by network
// unavailability. Progress up to the interruption is checkpointed in
// the vault; re-running Revoke (or ResumeRevocations) continues from
// the first unfinished container.
var ErrRevocationIncomplete = errors.New("authority: revocation incomplete")

// Revoke removes an application's access and re-keys every container
// it could reach. Containers are processed in address order, each one
// re-keyed at least once; the application's entry is removed exactly
// once, after the last container. Revoking an application that holds
// no entry and has no pending record is a no-op.
//
// Safe to call concurrently with authorizations and from multiple
// sessions: all state transitions go through the vault's version
// discipline.
func (s *Session) Revoke(ctx context.Context, appID account.AppID) error {
	if appID == "" {
		return fmt.Errorf("authority: AppID is required")
	}
	recordAddress := vault.RevocationAddress(s.owner.SignPublicKey(), string(appID))

	record, exists, err := s.checkpointRevocation(ctx, appID, recordAddress)
	if err != nil {
		return s.revocationError(appID, "checkpoint", err)
	}
	if !exists {
		// A crash between the index update and the checkpoint write can
		// leave the index naming an application with no record; drop it.
		if err := s.removeFromIndex(ctx, appID); err != nil {
			return s.revocationError(appID, "updating index", err)
		}
		s.logger.Info("revocation no-op, application not authorized", "app", appID.String())
		return nil
	}

	for len(record.Remaining) > 0 {
		pending := record.Remaining[0]
		if err := s.rekeyContainer(ctx, appID, recordAddress, pending); err != nil {
			return s.revocationError(appID, fmt.Sprintf("re-keying %s", pending.Address), err)
		}

		// Drop the finished container from the checkpoint.
		_, err = vault.ReadModifyWrite(ctx, s.vault, recordAddress, s.retry,
			func(stored vault.Record) ([]byte, error) {
				current, err := decodeRecord(s.owner, stored.Payload)
				if err != nil {
					return nil, err
				}
				kept := current.Remaining[:0]
				for _, entry := range current.Remaining {
					if entry.Address != pending.Address {
						kept = append(kept, entry)
					}
				}
				if len(kept) == len(current.Remaining) {
					return nil, vault.ErrNoChange
				}
				current.Remaining = kept
				return encodeRecord(s.owner, current)
			})
		if err != nil {
			return s.revocationError(appID, "updating checkpoint", err)
		}
		record.Remaining = record.Remaining[1:]
		s.logger.Info("container re-keyed",
			"app", appID.String(),
			"container", pending.Name,
			"remaining", len(record.Remaining),
		)
	}

	// All containers re-keyed; each publish already stripped its grant,
	// so the entry is normally gone. This sweep catches grants on
	// containers that left the registry mid-revocation and is a no-op
	// (no version bump) otherwise.
	_, err = s.account.Update(ctx, func(container *account.Container) error {
		delete(container.Apps, appID)
		return nil
	})
	if err != nil {
		return s.revocationError(appID, "removing entry", err)
	}
	if err := s.deleteRecord(ctx, recordAddress); err != nil {
		return s.revocationError(appID, "deleting checkpoint", err)
	}
	if err := s.removeFromIndex(ctx, appID); err != nil {
		return s.revocationError(appID, "updating index", err)
	}

	s.logger.Info("application revoked", "app", appID.String())
	return nil
}

// checkpointRevocation establishes the durable revocation record:
// resuming an existing record, starting a fresh one, or merging the
// two when the application was re-authorized after an interrupted
// revocation. Returns exists=false when there is nothing to revoke.
func (s *Session) checkpointRevocation(
	ctx context.Context,
	appID account.AppID,
	recordAddress vault.Address,
) (revocationRecord, bool, error) {
	container, err := s.account.Read(ctx)
	if err != nil {
		return revocationRecord{}, false, err
	}
	entry, entryExists := container.Apps[appID]

	var stored revocationRecord
	storedExists := false
	storedRecord, err := s.vault.Get(ctx, recordAddress)
	switch {
	case err == nil:
		stored, err = decodeRecord(s.owner, storedRecord.Payload)
		if err != nil {
			return revocationRecord{}, false, err
		}
		storedExists = true
	case errors.Is(err, vault.ErrNotFound):
	default:
		return revocationRecord{}, false, err
	}

	if !entryExists && !storedExists {
		return revocationRecord{}, false, nil
	}

	// List the application in the index before the record exists, so a
	// crash can never leave a record the index does not cover. The
	// reverse window — an index entry with no record yet — is cleaned
	// up by resume.
	if err := s.addToIndex(ctx, appID); err != nil {
		return revocationRecord{}, false, err
	}

	// Union of the checkpointed list and the entry's current grants.
	// A record can trail the entry when the application was granted
	// new containers after a crashed revocation; those containers
	// must be re-keyed too.
	byAddress := map[vault.Address]pendingContainer{}
	for _, pending := range stored.Remaining {
		byAddress[pending.Address] = pending
	}
	if entryExists {
		for name := range entry.Grants {
			registry, ok := container.Registry[name]
			if !ok {
				continue
			}
			if _, ok := byAddress[registry.Address]; !ok {
				byAddress[registry.Address] = pendingContainer{
					Name:    name,
					Address: registry.Address,
				}
			}
		}
	}
	record := revocationRecord{AppID: appID}
	for _, pending := range byAddress {
		record.Remaining = append(record.Remaining, pending)
	}
	sortPending(record.Remaining)

	if !storedExists {
		encoded, err := encodeRecord(s.owner, record)
		if err != nil {
			return revocationRecord{}, false, err
		}
		_, err = s.vault.Put(ctx, recordAddress, encoded)
		if err != nil && !errors.Is(err, vault.ErrAlreadyExists) {
			return revocationRecord{}, false, err
		}
		// AlreadyExists means another session checkpointed first;
		// its record covers at least the entry's grants.
		return record, true, nil
	}
	if len(record.Remaining) == len(stored.Remaining) {
		return record, true, nil
	}

	// The entry gained containers after the checkpoint was written.
	// Merge them in without disturbing entries a concurrent session
	// may have attached keys to in the meantime.
	_, err = vault.ReadModifyWrite(ctx, s.vault, recordAddress, s.retry,
		func(current vault.Record) ([]byte, error) {
			live, err := decodeRecord(s.owner, current.Payload)
			if err != nil {
				return nil, err
			}
			known := map[vault.Address]bool{}
			for _, pending := range live.Remaining {
				known[pending.Address] = true
			}
			added := false
			for _, pending := range record.Remaining {
				if !known[pending.Address] {
					live.Remaining = append(live.Remaining, pendingContainer{
						Name:    pending.Name,
						Address: pending.Address,
					})
					added = true
				}
			}
			if !added {
				record = live
				return nil, vault.ErrNoChange
			}
			sortPending(live.Remaining)
			record = live
			return encodeRecord(s.owner, live)
		})
	if err != nil {
		return revocationRecord{}, false, err
	}
	return record, true, nil
}

// rekeyContainer replaces one container's symmetric key: checkpoint
// the replacement key (sealed to the owner) in the revocation record,
// re-encrypt the container under it, then publish it to the registry
// and to every still-authorized application.
func (s *Session) rekeyContainer(
	ctx context.Context,
	appID account.AppID,
	recordAddress vault.Address,
	pending pendingContainer,
) error {
	newKey, err := s.pendingKey(ctx, recordAddress, pending)
	if err != nil {
		return err
	}
	defer newKey.Close()

	container, err := s.account.Read(ctx)
	if err != nil {
		return err
	}
	registry, inRegistry := container.Registry[pending.Name]
	if !inRegistry || registry.Address != pending.Address {
		// The container was removed from the registry since the
		// checkpoint was written; nothing left to protect.
		return nil
	}
	oldKey, err := secret.NewFromBytes(append([]byte(nil), registry.Key...))
	if err != nil {
		return err
	}
	defer oldKey.Close()

	// Re-encrypt the container content under the new key. A container
	// already encrypted under the new key (crash after the commit,
	// before the registry update) decrypts with it and is left alone.
	_, err = vault.ReadModifyWrite(ctx, s.vault, pending.Address, s.retry,
		func(stored vault.Record) ([]byte, error) {
			plaintext, err := aead.Decrypt(oldKey, stored.Payload, pending.Address[:])
			if err == nil {
				defer secret.Zero(plaintext)
				return aead.Encrypt(newKey, plaintext, pending.Address[:])
			}
			if _, retryErr := aead.Decrypt(newKey, stored.Payload, pending.Address[:]); retryErr == nil {
				return nil, vault.ErrNoChange
			}
			return nil, fmt.Errorf("authority: container %s undecryptable: %w", pending.Address, err)
		})
	if err != nil {
		return err
	}

	// Publish: registry gets the new key, every still-authorized
	// holder gets a re-wrapped reference, the revoked application
	// loses its grant on this container. The entry disappears with its
	// last grant, in the same write that finishes the last re-key.
	_, err = s.account.Update(ctx, func(container *account.Container) error {
		registry, ok := container.Registry[pending.Name]
		if !ok || registry.Address != pending.Address {
			return vault.ErrNoChange
		}
		registry.Key = append([]byte(nil), newKey.Bytes()...)
		container.Registry[pending.Name] = registry
		if revoked, ok := container.Apps[appID]; ok {
			delete(revoked.Grants, pending.Name)
		}

		ref := account.ContainerRef{
			Name:    pending.Name,
			Address: pending.Address,
			Key:     registry.Key,
		}
		for holderID, holder := range container.Apps {
			if holderID == appID {
				continue
			}
			held, holds := holder.Grants[pending.Name]
			if !holds {
				continue
			}
			wrapped, err := account.WrapRef(ref, []string{
				holder.EncryptPublicKey,
				s.account.EscrowRecipient(),
			})
			if err != nil {
				return err
			}
			held.WrappedRef = wrapped
			holder.Grants[pending.Name] = held
		}
		return nil
	})
	return err
}

// pendingKey returns the replacement key for a container, generating
// and durably checkpointing it on first touch. The key lives in the
// revocation record sealed to the owner, so a resumed revocation can
// always decrypt the container whichever side of the re-encrypt the
// interruption fell on.
func (s *Session) pendingKey(
	ctx context.Context,
	recordAddress vault.Address,
	pending pendingContainer,
) (*secret.Buffer, error) {
	if len(pending.SealedKey) > 0 {
		keyBytes, err := s.owner.DecryptAsOwner(pending.SealedKey)
		if err != nil {
			return nil, fmt.Errorf("authority: unsealing checkpointed key: %w", err)
		}
		return secret.NewFromBytes(keyBytes)
	}

	newKey, err := aead.NewKey()
	if err != nil {
		return nil, err
	}
	sealedKey, err := s.owner.SealForOwner(newKey.Bytes())
	if err != nil {
		newKey.Close()
		return nil, err
	}
	_, err = vault.ReadModifyWrite(ctx, s.vault, recordAddress, s.retry,
		func(stored vault.Record) ([]byte, error) {
			record, err := decodeRecord(s.owner, stored.Payload)
			if err != nil {
				return nil, err
			}
			for i, entry := range record.Remaining {
				if entry.Address != pending.Address {
					continue
				}
				if len(entry.SealedKey) > 0 {
					// Another session checkpointed a key first; that
					// key wins so both sessions re-key identically.
					return nil, vault.ErrNoChange
				}
				record.Remaining[i].SealedKey = sealedKey
				return encodeRecord(s.owner, record)
			}
			return nil, vault.ErrNoChange
		})
	if err != nil {
		newKey.Close()
		return nil, err
	}

	// Re-read: if a concurrent session's key won the checkpoint race,
	// use theirs.
	stored, err := s.vault.Get(ctx, recordAddress)
	if err != nil {
		newKey.Close()
		return nil, err
	}
	record, err := decodeRecord(s.owner, stored.Payload)
	if err != nil {
		newKey.Close()
		return nil, err
	}
	for _, entry := range record.Remaining {
		if entry.Address != pending.Address {
			continue
		}
		keyBytes, err := s.owner.DecryptAsOwner(entry.SealedKey)
		if err != nil {
			newKey.Close()
			return nil, fmt.Errorf("authority: unsealing checkpointed key: %w", err)
		}
		if newKey.Equal(keyBytes) {
			secret.Zero(keyBytes)
			return newKey, nil
		}
		newKey.Close()
		return secret.NewFromBytes(keyBytes)
	}
	newKey.Close()
	return nil, fmt.Errorf("authority: container %s vanished from checkpoint", pending.Address)
}

// deleteRecord removes the revocation record, tolerating a concurrent
// deletion.
func (s *Session) deleteRecord(ctx context.Context, recordAddress vault.Address) error {
	for {
		stored, err := s.vault.Get(ctx, recordAddress)
		if errors.Is(err, vault.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		err = s.vault.Delete(ctx, recordAddress, stored.Version)
		switch {
		case err == nil, errors.Is(err, vault.ErrNotFound):
			return nil
		case errors.Is(err, vault.ErrVersionConflict):
			continue
		default:
			return err
		}
	}
}

// addToIndex lists appID in the account's revocation index, creating
// the index on first use. Idempotent.
func (s *Session) addToIndex(ctx context.Context, appID account.AppID) error {
	address := vault.RevocationIndexAddress(s.owner.SignPublicKey())
	add := func(stored vault.Record) ([]byte, error) {
		index, err := decodeIndex(s.owner, stored.Payload)
		if err != nil {
			return nil, err
		}
		for _, listed := range index.AppIDs {
			if listed == appID {
				return nil, vault.ErrNoChange
			}
		}
		index.AppIDs = append(index.AppIDs, appID)
		return encodeIndex(s.owner, index)
	}

	_, err := vault.ReadModifyWrite(ctx, s.vault, address, s.retry, add)
	if !errors.Is(err, vault.ErrNotFound) {
		return err
	}
	encoded, err := encodeIndex(s.owner, revocationIndex{AppIDs: []account.AppID{appID}})
	if err != nil {
		return err
	}
	_, err = s.vault.Put(ctx, address, encoded)
	if errors.Is(err, vault.ErrAlreadyExists) {
		// Another session created the index between the read and the
		// write; merge into theirs.
		_, err = vault.ReadModifyWrite(ctx, s.vault, address, s.retry, add)
	}
	return err
}

// removeFromIndex drops appID from the revocation index. An index
// record that empties stays in place; a missing index or an unlisted
// appID is a no-op.
func (s *Session) removeFromIndex(ctx context.Context, appID account.AppID) error {
	address := vault.RevocationIndexAddress(s.owner.SignPublicKey())
	_, err := vault.ReadModifyWrite(ctx, s.vault, address, s.retry,
		func(stored vault.Record) ([]byte, error) {
			index, err := decodeIndex(s.owner, stored.Payload)
			if err != nil {
				return nil, err
			}
			kept := index.AppIDs[:0]
			for _, listed := range index.AppIDs {
				if listed != appID {
					kept = append(kept, listed)
				}
			}
			if len(kept) == len(index.AppIDs) {
				return nil, vault.ErrNoChange
			}
			index.AppIDs = kept
			return encodeIndex(s.owner, index)
		})
	if errors.Is(err, vault.ErrNotFound) {
		return nil
	}
	return err
}

// revocationError classifies a revocation failure: network
// unavailability means the checkpoint is intact and the caller should
// resume later; anything else is surfaced as-is with stage context.
func (s *Session) revocationError(appID account.AppID, stage string, err error) error {
	if errors.Is(err, vault.ErrUnavailable) {
		s.logger.Warn("revocation interrupted",
			"app", appID.String(),
			"stage", stage,
			"error", err,
		)
		return fmt.Errorf("%w: %s: %w", ErrRevocationIncomplete, stage, err)
	}
	return fmt.Errorf("authority: revoking %s: %s: %w", appID, stage, err)
}
