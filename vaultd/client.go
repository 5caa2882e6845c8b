// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vaultd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/haven-foundation/haven/lib/codec"
	"github.com/haven-foundation/haven/vault"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// GatewayURL is the base URL of the gateway daemon
	// (e.g., "http://localhost:7450").
	GatewayURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client implements vault.Vault against a remote gateway daemon.
// Transport failures (connection refused, timeouts, 5xx) are
// classified as vault.ErrUnavailable at the point of occurrence;
// semantic failures arrive as wire codes and map onto the taxonomy
// via GatewayError. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.GatewayURL == "" {
		return nil, fmt.Errorf("vaultd: GatewayURL is required")
	}
	if _, err := url.Parse(config.GatewayURL); err != nil {
		return nil, fmt.Errorf("vaultd: invalid GatewayURL %q: %w", config.GatewayURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.GatewayURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *Client) Get(ctx context.Context, address vault.Address) (vault.Record, error) {
	var response RecordResponse
	err := c.do(ctx, http.MethodGet, c.recordURL(address, ""), nil, &response)
	if err != nil {
		return vault.Record{}, wrapOp("get", address, err)
	}
	return vault.Record{Version: response.Version, Payload: response.Payload}, nil
}

func (c *Client) Put(ctx context.Context, address vault.Address, payload []byte) (uint64, error) {
	var response VersionResponse
	err := c.do(ctx, http.MethodPut, c.recordURL(address, ""), PutRequest{Payload: payload}, &response)
	if err != nil {
		return 0, wrapOp("put", address, err)
	}
	return response.Version, nil
}

func (c *Client) Mutate(ctx context.Context, address vault.Address, expectedVersion uint64, payload []byte) (uint64, error) {
	var response VersionResponse
	request := MutateRequest{ExpectedVersion: expectedVersion, Payload: payload}
	err := c.do(ctx, http.MethodPost, c.recordURL(address, "/mutate"), request, &response)
	if err != nil {
		return 0, wrapOp("mutate", address, err)
	}
	return response.Version, nil
}

func (c *Client) Delete(ctx context.Context, address vault.Address, expectedVersion uint64) error {
	request := DeleteRequest{ExpectedVersion: expectedVersion}
	err := c.do(ctx, http.MethodPost, c.recordURL(address, "/delete"), request, nil)
	if err != nil {
		return wrapOp("delete", address, err)
	}
	return nil
}

func (c *Client) recordURL(address vault.Address, suffix string) string {
	return c.baseURL + "/v1/record/" + address.String() + suffix
}

// do issues one request with a CBOR body and decodes the CBOR
// response into out (skipped when out is nil or the response is 204).
func (c *Client) do(ctx context.Context, method, requestURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := codec.Marshal(body)
		if err != nil {
			return fmt.Errorf("vaultd: encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("vaultd: building request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/cbor")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		// The request may or may not have reached the gateway; either
		// way it is safe to classify as transient and repeat, because
		// every wire operation is a CAS or first-write-wins create.
		return fmt.Errorf("%w: %v", vault.ErrUnavailable, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", vault.ErrUnavailable, err)
	}

	if response.StatusCode >= 400 {
		var wireError ErrorResponse
		if err := codec.Unmarshal(responseBody, &wireError); err != nil || wireError.Code == "" {
			// Not a gateway-shaped error: a proxy or load balancer
			// answered. Treat as transient.
			return fmt.Errorf("%w: HTTP %d from gateway", vault.ErrUnavailable, response.StatusCode)
		}
		return &GatewayError{
			Code:       wireError.Code,
			Message:    wireError.Message,
			StatusCode: response.StatusCode,
		}
	}

	if out == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := codec.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("vaultd: decoding response: %w", err)
	}
	return nil
}

// wrapOp attaches vault operation context so gateway failures surface
// with the same shape as local vault failures.
func wrapOp(op string, address vault.Address, err error) error {
	return &vault.Error{Op: op, Address: address, Err: err}
}
