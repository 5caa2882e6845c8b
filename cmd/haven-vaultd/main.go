// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// haven-vaultd serves the vault record protocol over HTTP, backed by
// a sqlite database. It exists so accounts can share a vault across
// machines without a third-party storage provider: point the CLI's
// vault config at the daemon's URL.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/haven-foundation/haven/lib/config"
	"github.com/haven-foundation/haven/vault"
	"github.com/haven-foundation/haven/vaultd"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listen     string
		dbPath     string
	)
	pflag.StringVar(&configPath, "config", "", "config file (default: HAVEN_CONFIG)")
	pflag.StringVar(&listen, "listen", "", "listen address (overrides config)")
	pflag.StringVar(&dbPath, "db", "", "sqlite database path (overrides config)")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadDaemonConfig(configPath)
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Daemon.Listen
	}
	if dbPath == "" {
		dbPath = cfg.Daemon.Path
	}
	if dbPath == "" {
		return fmt.Errorf("no database path: set daemon.path in config or pass --db")
	}

	store, err := vault.OpenSQLite(vault.SQLiteConfig{Path: dbPath, Logger: logger})
	if err != nil {
		return err
	}
	defer store.Close()

	server, err := vaultd.NewServer(vaultd.ServerConfig{Store: store, Logger: logger})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", "address", listen, "db", dbPath)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// loadDaemonConfig loads config when available; a missing HAVEN_CONFIG
// is tolerated because --listen/--db can fully configure the daemon.
func loadDaemonConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("HAVEN_CONFIG") == "" {
		return config.Default(), nil
	}
	return config.Load()
}
