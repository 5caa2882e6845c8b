// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Haven components.
//
// Configuration is loaded from a single file specified by:
//   - HAVEN_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, production) that override base values when the
// environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// VaultKind selects the vault backend.
type VaultKind string

const (
	// VaultSQLite stores records in a local sqlite database.
	VaultSQLite VaultKind = "sqlite"
	// VaultGateway talks to a haven-vaultd gateway over HTTP.
	VaultGateway VaultKind = "gateway"
	// VaultMemory keeps records in process memory. Development only;
	// nothing survives process exit.
	VaultMemory VaultKind = "memory"
)

// Config is the master configuration for Haven.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Vault selects and configures the storage backend.
	Vault VaultConfig `yaml:"vault"`

	// KDF tunes the password key derivation.
	KDF KDFConfig `yaml:"kdf"`

	// Retry bounds optimistic-concurrency retries.
	Retry RetryConfig `yaml:"retry"`

	// Daemon configures haven-vaultd.
	Daemon DaemonConfig `yaml:"daemon"`

	// EnvironmentOverrides contains per-environment overrides,
	// applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Vault  *VaultConfig  `yaml:"vault,omitempty"`
	KDF    *KDFConfig    `yaml:"kdf,omitempty"`
	Retry  *RetryConfig  `yaml:"retry,omitempty"`
	Daemon *DaemonConfig `yaml:"daemon,omitempty"`
}

// VaultConfig selects the storage backend.
type VaultConfig struct {
	// Kind is "sqlite", "gateway", or "memory".
	Kind VaultKind `yaml:"kind"`

	// Path is the sqlite database file. Required for kind "sqlite".
	Path string `yaml:"path"`

	// GatewayURL is the haven-vaultd base URL. Required for kind
	// "gateway".
	GatewayURL string `yaml:"gateway_url"`
}

// KDFConfig tunes argon2id. Zero values use the production defaults.
type KDFConfig struct {
	// Time is the number of argon2id passes.
	Time uint32 `yaml:"time"`

	// MemoryKiB is the argon2id memory cost in KiB.
	MemoryKiB uint32 `yaml:"memory_kib"`

	// Threads is the argon2id parallelism.
	Threads uint8 `yaml:"threads"`
}

// RetryConfig bounds the version-conflict retry loop.
type RetryConfig struct {
	// Attempts is the maximum number of read-modify-write rounds
	// before surfacing a concurrent-modification error.
	Attempts int `yaml:"attempts"`

	// BaseDelay is the initial backoff between rounds ("25ms").
	BaseDelay string `yaml:"base_delay"`

	// MaxDelay caps the backoff ("2s").
	MaxDelay string `yaml:"max_delay"`
}

// DaemonConfig configures the haven-vaultd gateway.
type DaemonConfig struct {
	// Listen is the HTTP listen address. Default: 127.0.0.1:7420
	Listen string `yaml:"listen"`

	// Path is the daemon's sqlite database file.
	Path string `yaml:"path"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback -
// the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "haven")

	return &Config{
		Environment: Development,
		Vault: VaultConfig{
			Kind: VaultSQLite,
			Path: filepath.Join(defaultRoot, "vault.db"),
		},
		Retry: RetryConfig{
			Attempts:  8,
			BaseDelay: "25ms",
			MaxDelay:  "2s",
		},
		Daemon: DaemonConfig{
			Listen: "127.0.0.1:7420",
			Path:   filepath.Join(defaultRoot, "vaultd.db"),
		},
	}
}

// Load loads configuration from the HAVEN_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults - if HAVEN_CONFIG is not
// set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("HAVEN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("HAVEN_CONFIG environment variable not set; " +
			"set it to the path of your haven.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific
// overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Vault != nil {
		if overrides.Vault.Kind != "" {
			c.Vault.Kind = overrides.Vault.Kind
		}
		if overrides.Vault.Path != "" {
			c.Vault.Path = overrides.Vault.Path
		}
		if overrides.Vault.GatewayURL != "" {
			c.Vault.GatewayURL = overrides.Vault.GatewayURL
		}
	}
	if overrides.KDF != nil {
		if overrides.KDF.Time != 0 {
			c.KDF.Time = overrides.KDF.Time
		}
		if overrides.KDF.MemoryKiB != 0 {
			c.KDF.MemoryKiB = overrides.KDF.MemoryKiB
		}
		if overrides.KDF.Threads != 0 {
			c.KDF.Threads = overrides.KDF.Threads
		}
	}
	if overrides.Retry != nil {
		if overrides.Retry.Attempts != 0 {
			c.Retry.Attempts = overrides.Retry.Attempts
		}
		if overrides.Retry.BaseDelay != "" {
			c.Retry.BaseDelay = overrides.Retry.BaseDelay
		}
		if overrides.Retry.MaxDelay != "" {
			c.Retry.MaxDelay = overrides.Retry.MaxDelay
		}
	}
	if overrides.Daemon != nil {
		if overrides.Daemon.Listen != "" {
			c.Daemon.Listen = overrides.Daemon.Listen
		}
		if overrides.Daemon.Path != "" {
			c.Daemon.Path = overrides.Daemon.Path
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Vault.Path = expandVars(c.Vault.Path, vars)
	c.Daemon.Path = expandVars(c.Daemon.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	switch c.Vault.Kind {
	case VaultSQLite:
		if c.Vault.Path == "" {
			errs = append(errs, fmt.Errorf("vault.path is required for kind sqlite"))
		}
	case VaultGateway:
		if c.Vault.GatewayURL == "" {
			errs = append(errs, fmt.Errorf("vault.gateway_url is required for kind gateway"))
		}
	case VaultMemory:
		if c.Environment == Production {
			errs = append(errs, fmt.Errorf("vault kind memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid vault kind: %q", c.Vault.Kind))
	}

	if c.Retry.Attempts < 0 {
		errs = append(errs, fmt.Errorf("retry.attempts must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
