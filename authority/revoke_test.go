// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/lib/aead"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
)

// decryptsUnder reports whether the vault record at address opens
// under the given raw key.
func decryptsUnder(t *testing.T, store vault.Vault, address vault.Address, rawKey []byte) bool {
	t.Helper()
	record, err := store.Get(context.Background(), address)
	if err != nil {
		t.Fatalf("Get %s: %v", address, err)
	}
	key, err := secret.NewFromBytes(append([]byte(nil), rawKey...))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer key.Close()
	_, err = aead.Decrypt(key, record.Payload, address[:])
	return err == nil
}

func TestRevoke_RemovesEntryAndRekeys(t *testing.T) {
	store := vault.NewMemory(vault.MemoryConfig{})
	session := registerTest(t, store, "alice", "hunter2")
	ctx := context.Background()

	grant, err := session.Authorize(ctx, Request{AppID: "com.example.notes", NewContainer: "docs"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	defer grant.Close()
	oldRef := grant.Refs[0]

	if err := session.Revoke(ctx, "com.example.notes"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	container, err := session.Account().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := container.Apps["com.example.notes"]; ok {
		t.Error("revoked app entry still present")
	}

	// The revoked application's key no longer opens the container.
	if decryptsUnder(t, store, oldRef.Address, oldRef.Key) {
		t.Error("container still decrypts under the revoked key")
	}
	registry := container.Registry["docs"]
	if !decryptsUnder(t, store, registry.Address, registry.Key) {
		t.Error("container does not decrypt under the registry key")
	}

	// The checkpoint is gone.
	recordAddress := vault.RevocationAddress(session.Identity().SignPublicKey(), "com.example.notes")
	if _, err := store.Get(ctx, recordAddress); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("revocation record still present: %v", err)
	}
}

func TestRevoke_RewrapsForRemainingApps(t *testing.T) {
	store := vault.NewMemory(vault.MemoryConfig{})
	session := registerTest(t, store, "alice", "hunter2")
	ctx := context.Background()

	owner, err := session.Authorize(ctx, Request{AppID: "com.example.owner", NewContainer: "docs"})
	if err != nil {
		t.Fatalf("Authorize owner: %v", err)
	}
	defer owner.Close()

	reader, err := session.Authorize(ctx, Request{
		AppID:       "com.example.reader",
		Permissions: []Permission{{Container: "docs", Rights: account.Rights(account.RightRead)}},
	})
	if err != nil {
		t.Fatalf("Authorize reader: %v", err)
	}
	defer reader.Close()

	if err := session.Revoke(ctx, "com.example.owner"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	container, err := session.Account().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	wrapped := container.Apps["com.example.reader"].Grants["docs"].WrappedRef
	ref, err := account.UnwrapRef(wrapped, reader.EncryptPrivateKey)
	if err != nil {
		t.Fatalf("UnwrapRef: %v", err)
	}
	if !decryptsUnder(t, store, ref.Address, ref.Key) {
		t.Error("re-wrapped ref does not open the re-keyed container")
	}
	if string(ref.Key) == string(owner.Refs[0].Key) {
		t.Error("re-wrapped ref still carries the old key")
	}
}

func TestRevoke_UnknownAppNoOp(t *testing.T) {
	store := vault.NewMemory(vault.MemoryConfig{})
	session := registerTest(t, store, "alice", "hunter2")

	if err := session.Revoke(context.Background(), "com.example.ghost"); err != nil {
		t.Fatalf("Revoke of unknown app: %v", err)
	}
}

func TestRevoke_CrashResume(t *testing.T) {
	store := vault.NewMemory(vault.MemoryConfig{})
	session := registerTest(t, store, "alice", "hunter2")
	ctx := context.Background()

	var refs []account.ContainerRef
	for i := range 5 {
		grant, err := session.Authorize(ctx, Request{
			AppID:        "com.example.notes",
			NewContainer: fmt.Sprintf("container-%d", i),
		})
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		refs = append(refs, grant.Refs...)
		grant.Close()
	}

	// Cut the network after two data containers have been
	// re-encrypted.
	rekeyed := 0
	containerAddresses := map[vault.Address]bool{}
	for _, ref := range refs {
		containerAddresses[ref.Address] = true
	}
	store.Intercept(func(op string, address vault.Address) error {
		if op == "mutate" && containerAddresses[address] {
			rekeyed++
			if rekeyed > 2 {
				return vault.ErrUnavailable
			}
		}
		return nil
	})

	err := session.Revoke(ctx, "com.example.notes")
	if !errors.Is(err, ErrRevocationIncomplete) {
		t.Fatalf("interrupted Revoke: %v, want ErrRevocationIncomplete", err)
	}

	// A fresh session finds the pending revocation.
	store.Intercept(nil)
	resumed := loginTest(t, store, "alice", "hunter2")
	pending, err := resumed.PendingRevocations(ctx)
	if err != nil {
		t.Fatalf("PendingRevocations: %v", err)
	}
	if len(pending) != 1 || pending[0] != "com.example.notes" {
		t.Fatalf("pending = %v, want [com.example.notes]", pending)
	}

	// Containers are processed in address order, so the two finished
	// before the cut are the two lowest addresses. Resume must not
	// re-encrypt them, and must re-encrypt each remaining container
	// exactly once.
	sorted := append([]account.ContainerRef(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address.Less(sorted[j].Address) })
	mutates := map[vault.Address]int{}
	store.Intercept(func(op string, address vault.Address) error {
		if op == "mutate" && containerAddresses[address] {
			mutates[address]++
		}
		return nil
	})

	if err := resumed.ResumeRevocations(ctx); err != nil {
		t.Fatalf("ResumeRevocations: %v", err)
	}
	store.Intercept(nil)

	for i, ref := range sorted {
		want := 1
		if i < 2 {
			want = 0
		}
		if got := mutates[ref.Address]; got != want {
			t.Errorf("resume re-encrypted %s %d times, want %d", ref.Name, got, want)
		}
	}

	container, err := resumed.Account().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := container.Apps["com.example.notes"]; ok {
		t.Error("revoked app entry survives resume")
	}
	for _, ref := range refs {
		if decryptsUnder(t, store, ref.Address, ref.Key) {
			t.Errorf("container %s still decrypts under the revoked key", ref.Name)
		}
	}
	for name, registry := range container.Registry {
		if !decryptsUnder(t, store, registry.Address, registry.Key) {
			t.Errorf("container %s does not decrypt under the registry key", name)
		}
	}

	pending, err = resumed.PendingRevocations(ctx)
	if err != nil {
		t.Fatalf("PendingRevocations after resume: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after resume = %v, want none", pending)
	}
}

func TestRevoke_StaleCheckpointSparesNewGrant(t *testing.T) {
	store := vault.NewMemory(vault.MemoryConfig{})
	session := registerTest(t, store, "alice", "hunter2")
	ctx := context.Background()

	grant, err := session.Authorize(ctx, Request{AppID: "com.example.notes", NewContainer: "docs"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	grant.Close()

	// Cut the network at the checkpoint delete: every container is
	// re-keyed and the entry is gone, but the record stays behind.
	recordAddress := vault.RevocationAddress(session.Identity().SignPublicKey(), "com.example.notes")
	store.Intercept(func(op string, address vault.Address) error {
		if op == "delete" && address == recordAddress {
			return vault.ErrUnavailable
		}
		return nil
	})
	err = session.Revoke(ctx, "com.example.notes")
	if !errors.Is(err, ErrRevocationIncomplete) {
		t.Fatalf("interrupted Revoke: %v, want ErrRevocationIncomplete", err)
	}
	store.Intercept(nil)

	// The application is authorized again before anyone resumes.
	fresh, err := session.Authorize(ctx, Request{AppID: "com.example.notes", NewContainer: "journal"})
	if err != nil {
		t.Fatalf("re-Authorize: %v", err)
	}
	defer fresh.Close()

	resumed := loginTest(t, store, "alice", "hunter2")
	pending, err := resumed.PendingRevocations(ctx)
	if err != nil {
		t.Fatalf("PendingRevocations: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %v, want none; every container is already re-keyed", pending)
	}

	if err := resumed.ResumeRevocations(ctx); err != nil {
		t.Fatalf("ResumeRevocations: %v", err)
	}

	// Resume cleared the leftover record without touching the new
	// authorization.
	if _, err := store.Get(ctx, recordAddress); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("stale revocation record still present: %v", err)
	}
	container, err := resumed.Account().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	entry, ok := container.Apps["com.example.notes"]
	if !ok {
		t.Fatal("re-authorized entry removed by resume")
	}
	if _, ok := entry.Grants["journal"]; !ok {
		t.Error("journal grant removed by resume")
	}
}

func TestRevoke_RepeatAfterCompletion(t *testing.T) {
	store := vault.NewMemory(vault.MemoryConfig{})
	session := registerTest(t, store, "alice", "hunter2")
	ctx := context.Background()

	grant, err := session.Authorize(ctx, Request{AppID: "com.example.notes", NewContainer: "docs"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	defer grant.Close()

	if err := session.Revoke(ctx, "com.example.notes"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := session.Revoke(ctx, "com.example.notes"); err != nil {
		t.Fatalf("repeat Revoke: %v", err)
	}
}
