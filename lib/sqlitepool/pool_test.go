// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("expected error for empty Path")
	}
}

func TestPool_TakePut(t *testing.T) {
	pool, err := Open(Config{Path: filepath.Join(t.TempDir(), "pool.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "SELECT 1", nil); err != nil {
		t.Errorf("SELECT 1: %v", err)
	}
	pool.Put(conn)
}

func TestPool_CloseIdempotent(t *testing.T) {
	pool, err := Open(Config{Path: filepath.Join(t.TempDir(), "pool.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
