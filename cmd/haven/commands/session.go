// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haven-foundation/haven/authority"
	"github.com/haven-foundation/haven/identity"
	"github.com/haven-foundation/haven/lib/config"
	"github.com/haven-foundation/haven/lib/secret"
	"github.com/haven-foundation/haven/vault"
	"github.com/haven-foundation/haven/vaultd"
)

// loadConfig resolves configuration from --config or HAVEN_CONFIG.
func loadConfig(configPath string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openVault builds the configured vault backend. The returned close
// function releases backend resources (a no-op for stateless
// backends).
func openVault(cfg *config.Config, logger *slog.Logger) (vault.Vault, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Vault.Kind {
	case config.VaultSQLite:
		store, err := vault.OpenSQLite(vault.SQLiteConfig{
			Path:   cfg.Vault.Path,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.VaultGateway:
		client, err := vaultd.NewClient(vaultd.ClientConfig{
			GatewayURL: cfg.Vault.GatewayURL,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, noop, nil
	case config.VaultMemory:
		return vault.NewMemory(vault.MemoryConfig{Logger: logger}), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown vault kind %q", cfg.Vault.Kind)
	}
}

// retryFromConfig translates config retry settings to the vault's
// retry parameters.
func retryFromConfig(cfg *config.Config) (vault.RetryConfig, error) {
	retry := vault.RetryConfig{Attempts: cfg.Retry.Attempts}
	var err error
	if cfg.Retry.BaseDelay != "" {
		retry.BaseDelay, err = time.ParseDuration(cfg.Retry.BaseDelay)
		if err != nil {
			return retry, fmt.Errorf("invalid retry.base_delay: %w", err)
		}
	}
	if cfg.Retry.MaxDelay != "" {
		retry.MaxDelay, err = time.ParseDuration(cfg.Retry.MaxDelay)
		if err != nil {
			return retry, fmt.Errorf("invalid retry.max_delay: %w", err)
		}
	}
	return retry, nil
}

// readPassword reads the account password: from --password-file when
// given ("-" for stdin), otherwise by prompting at the terminal.
func readPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" {
		return secret.ReadFromPath(passwordFile)
	}
	return secret.PromptPassword("Password: ")
}

// openSession loads config, opens the vault, reads the password, and
// logs in (or registers). The returned cleanup logs out and closes
// the vault.
func openSession(
	ctx context.Context,
	configPath, locator, passwordFile string,
	register bool,
	logger *slog.Logger,
) (*authority.Session, func(), error) {
	if locator == "" {
		return nil, nil, fmt.Errorf("--locator is required")
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	retry, err := retryFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openVault(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	password, err := readPassword(passwordFile)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	sessionConfig := authority.SessionConfig{
		Vault:    store,
		Locator:  []byte(locator),
		Password: password,
		KDF: identity.KDFParams{
			Time:    cfg.KDF.Time,
			Memory:  cfg.KDF.MemoryKiB,
			Threads: cfg.KDF.Threads,
		},
		Retry:  retry,
		Logger: logger,
	}

	var session *authority.Session
	if register {
		session, err = authority.Register(ctx, sessionConfig)
	} else {
		session, err = authority.Login(ctx, sessionConfig)
	}
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	cleanup := func() {
		session.Logout()
		closeStore()
	}
	return session, cleanup, nil
}
