// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vaultd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haven-foundation/haven/vault"
)

func testGateway(t *testing.T) (*vault.Memory, *Client) {
	t.Helper()

	store := vault.NewMemory(vault.MemoryConfig{})
	server, err := NewServer(ServerConfig{Store: store})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	client, err := NewClient(ClientConfig{GatewayURL: httpServer.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return store, client
}

func TestClient_RoundTrip(t *testing.T) {
	_, client := testGateway(t)
	ctx := context.Background()

	address, err := vault.RandomAddress()
	if err != nil {
		t.Fatalf("RandomAddress: %v", err)
	}

	version, err := client.Put(ctx, address, []byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if version != 0 {
		t.Errorf("Put version = %d, want 0", version)
	}

	record, err := client.Get(ctx, address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Version != 0 || !bytes.Equal(record.Payload, []byte("payload")) {
		t.Errorf("record = %d/%q, want 0/%q", record.Version, record.Payload, "payload")
	}

	version, err = client.Mutate(ctx, address, 0, []byte("next"))
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if version != 1 {
		t.Errorf("Mutate version = %d, want 1", version)
	}

	if err := client.Delete(ctx, address, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestClient_ErrorTaxonomyMapping(t *testing.T) {
	_, client := testGateway(t)
	ctx := context.Background()

	address, err := vault.RandomAddress()
	if err != nil {
		t.Fatalf("RandomAddress: %v", err)
	}

	// NOT_FOUND maps to vault.ErrNotFound across the wire.
	_, err = client.Get(ctx, address)
	if !vault.IsNotFound(err) {
		t.Fatalf("Get absent = %v, want ErrNotFound", err)
	}

	// The structured gateway error is still reachable via errors.As.
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *GatewayError in chain, got %v", err)
	}
	if gatewayErr.Code != CodeNotFound {
		t.Errorf("Code = %q, want %q", gatewayErr.Code, CodeNotFound)
	}
	if gatewayErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", gatewayErr.StatusCode)
	}

	// VERSION_CONFLICT maps to vault.ErrVersionConflict.
	if _, err := client.Put(ctx, address, []byte("v0")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := client.Mutate(ctx, address, 7, []byte("stale")); !vault.IsVersionConflict(err) {
		t.Fatalf("stale Mutate = %v, want ErrVersionConflict", err)
	}
}

func TestClient_UnreachableGatewayIsUnavailable(t *testing.T) {
	// A port nothing listens on: connection refused must classify as
	// transient ErrUnavailable, not a semantic failure.
	client, err := NewClient(ClientConfig{GatewayURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	address, err := vault.RandomAddress()
	if err != nil {
		t.Fatalf("RandomAddress: %v", err)
	}

	_, err = client.Get(context.Background(), address)
	if !vault.Retryable(err) {
		t.Fatalf("Get against dead gateway = %v, want retryable ErrUnavailable", err)
	}
}

func TestServer_BadAddressRejected(t *testing.T) {
	server, err := NewServer(ServerConfig{Store: vault.NewMemory(vault.MemoryConfig{})})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	response, err := http.Get(httpServer.URL + "/v1/record/not-hex")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.StatusCode)
	}
}
