// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package integration_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/haven-foundation/haven/account"
	"github.com/haven-foundation/haven/authority"
	"github.com/haven-foundation/haven/identity"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/lib/testutil"
	"github.com/haven-foundation/haven/vault"
	"github.com/haven-foundation/haven/vaultd"
)

var testKDF = identity.KDFParams{Time: 1, Memory: 64, Threads: 1}

// backends returns every vault implementation under test. Each must
// behave identically for the trust stack to be correct against any
// of them.
func backends(t *testing.T) map[string]vault.Vault {
	t.Helper()

	sqliteStore, err := vault.OpenSQLite(vault.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "vault.db"),
	})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	gatewayStore, err := vault.OpenSQLite(vault.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "gateway.db"),
	})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { gatewayStore.Close() })
	server, err := vaultd.NewServer(vaultd.ServerConfig{Store: gatewayStore})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	client, err := vaultd.NewClient(vaultd.ClientConfig{GatewayURL: httpServer.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	return map[string]vault.Vault{
		"memory":  vault.NewMemory(vault.MemoryConfig{}),
		"sqlite":  sqliteStore,
		"gateway": client,
	}
}

func openSession(t *testing.T, store vault.Vault, locator, password string, register bool) *authority.Session {
	t.Helper()
	passwordBuffer, err := secret.NewFromBytes([]byte(password))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	config := authority.SessionConfig{
		Vault:    store,
		Locator:  []byte(locator),
		Password: passwordBuffer,
		KDF:      testKDF,
	}
	var session *authority.Session
	if register {
		session, err = authority.Register(context.Background(), config)
	} else {
		session, err = authority.Login(context.Background(), config)
	}
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { session.Logout() })
	return session
}

// TestDeriveRoundTrip: the same locator and password always reopen
// the same account packet.
func TestDeriveRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			locator := testutil.UniqueID("alice")
			first := openSession(t, store, locator, "hunter2", true)
			address := first.Identity().AccountAddress()
			first.Logout()

			again := openSession(t, store, locator, "hunter2", false)
			if again.Identity().AccountAddress() != address {
				t.Error("re-derived identity opened a different account")
			}
		})
	}
}

// TestConcurrentAuthorizations: two sessions of the same account
// authorizing distinct apps concurrently both land; neither update is
// lost.
func TestConcurrentAuthorizations(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			locator := testutil.UniqueID("alice")
			owner := openSession(t, store, locator, "hunter2", true)
			ctx := context.Background()

			seed, err := owner.Authorize(ctx, authority.Request{
				AppID:        "com.example.seed",
				NewContainer: "docs",
			})
			if err != nil {
				t.Fatalf("seed Authorize: %v", err)
			}
			seed.Close()

			sessionA := openSession(t, store, locator, "hunter2", false)
			sessionB := openSession(t, store, locator, "hunter2", false)

			errs := make(chan error, 2)
			for i, session := range []*authority.Session{sessionA, sessionB} {
				go func() {
					grant, err := session.Authorize(ctx, authority.Request{
						AppID: account.AppID(fmt.Sprintf("com.example.app%d", i)),
						Permissions: []authority.Permission{
							{Container: "docs", Rights: account.Rights(account.RightRead)},
						},
					})
					if err == nil {
						grant.Close()
					}
					errs <- err
				}()
			}
			for range 2 {
				if err := testutil.RequireReceive(t, errs, 30*time.Second, "concurrent Authorize"); err != nil {
					t.Fatalf("concurrent Authorize: %v", err)
				}
			}

			container, err := owner.Account().Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			for _, appID := range []account.AppID{"com.example.app0", "com.example.app1"} {
				if _, ok := container.Apps[appID]; !ok {
					t.Errorf("entry for %s lost", appID)
				}
			}
		})
	}
}

// TestRekeyCorrectness: after revocation the old key is useless, the
// remaining app's re-wrapped key works.
func TestRekeyCorrectness(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			session := openSession(t, store, testutil.UniqueID("alice"), "hunter2", true)
			ctx := context.Background()

			revoked, err := session.Authorize(ctx, authority.Request{
				AppID:        "com.example.revoked",
				NewContainer: "docs",
			})
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			defer revoked.Close()
			keeper, err := session.Authorize(ctx, authority.Request{
				AppID: "com.example.keeper",
				Permissions: []authority.Permission{
					{Container: "docs", Rights: account.Rights(account.RightRead)},
				},
			})
			if err != nil {
				t.Fatalf("Authorize keeper: %v", err)
			}
			defer keeper.Close()

			if err := session.Revoke(ctx, "com.example.revoked"); err != nil {
				t.Fatalf("Revoke: %v", err)
			}

			container, err := session.Account().Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if _, ok := container.Apps["com.example.revoked"]; ok {
				t.Error("revoked entry still present")
			}
			registry := container.Registry["docs"]
			if string(registry.Key) == string(revoked.Refs[0].Key) {
				t.Error("container was not re-keyed")
			}

			wrapped := container.Apps["com.example.keeper"].Grants["docs"].WrappedRef
			ref, err := account.UnwrapRef(wrapped, keeper.EncryptPrivateKey)
			if err != nil {
				t.Fatalf("UnwrapRef: %v", err)
			}
			if string(ref.Key) != string(registry.Key) {
				t.Error("keeper's re-wrapped key does not match the registry key")
			}
		})
	}
}

// TestStaleMutateNeverApplies: compare-and-swap fidelity on every
// backend.
func TestStaleMutateNeverApplies(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			address, err := vault.RandomAddress()
			if err != nil {
				t.Fatalf("RandomAddress: %v", err)
			}
			if _, err := store.Put(ctx, address, []byte("v0")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if _, err := store.Mutate(ctx, address, 0, []byte("v1")); err != nil {
				t.Fatalf("Mutate: %v", err)
			}

			_, err = store.Mutate(ctx, address, 0, []byte("stale"))
			if !errors.Is(err, vault.ErrVersionConflict) {
				t.Fatalf("stale Mutate: %v, want ErrVersionConflict", err)
			}
			record, err := store.Get(ctx, address)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(record.Payload) != "v1" || record.Version != 1 {
				t.Errorf("stale mutate applied: version=%d payload=%q", record.Version, record.Payload)
			}
		})
	}
}

// TestIdempotentReauthorization: a fully redundant request leaves the
// access container version untouched.
func TestIdempotentReauthorization(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			session := openSession(t, store, testutil.UniqueID("alice"), "hunter2", true)
			ctx := context.Background()

			first, err := session.Authorize(ctx, authority.Request{
				AppID:        "com.example.notes",
				NewContainer: "docs",
			})
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			defer first.Close()

			before, err := session.Account().Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			again, err := session.Authorize(ctx, authority.Request{
				AppID: "com.example.notes",
				Permissions: []authority.Permission{
					{Container: "docs", Rights: account.AllRights()},
				},
			})
			if err != nil {
				t.Fatalf("re-Authorize: %v", err)
			}
			again.Close()
			after, err := session.Account().Read(ctx)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if after.Version != before.Version {
				t.Errorf("idempotent request bumped version %d -> %d", before.Version, after.Version)
			}
		})
	}
}

// TestAliceDocsScenario: register, authorize app A for read on
// "docs" (access container 0 -> 1), revoke A ("docs" re-keyed and its
// record version bumped, access container 1 -> 2, entry gone).
func TestAliceDocsScenario(t *testing.T) {
	store := vault.NewMemory(vault.MemoryConfig{})
	session := openSession(t, store, "alice", "hunter2", true)
	ctx := context.Background()

	grant, err := session.Authorize(ctx, authority.Request{
		AppID:        "A",
		NewContainer: "docs",
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	defer grant.Close()

	container, err := session.Account().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if container.Version != 1 {
		t.Errorf("access container version after authorization = %d, want 1", container.Version)
	}
	if _, ok := container.Apps["A"]; !ok {
		t.Fatal("entry for A missing")
	}
	docsAddress := container.Registry["docs"].Address
	docsBefore, err := store.Get(ctx, docsAddress)
	if err != nil {
		t.Fatalf("Get docs: %v", err)
	}

	if err := session.Revoke(ctx, "A"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	container, err = session.Account().Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if container.Version != 2 {
		t.Errorf("access container version after revocation = %d, want 2", container.Version)
	}
	if _, ok := container.Apps["A"]; ok {
		t.Error("entry for A still present")
	}
	docsAfter, err := store.Get(ctx, docsAddress)
	if err != nil {
		t.Fatalf("Get docs after revoke: %v", err)
	}
	if docsAfter.Version <= docsBefore.Version {
		t.Errorf("docs record version did not increment: %d -> %d",
			docsBefore.Version, docsAfter.Version)
	}
}
