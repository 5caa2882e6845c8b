// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a Haven-standard SQLite connection pool.
//
// The durable local vault (vault.SQLite) and the gateway daemon use
// this package for their backing store. It wraps zombiezen.com/go/sqlite
// with production defaults: WAL journal mode, FULL synchronous (a
// revocation checkpoint that claims durability must survive power
// loss, not just process crash), and busy timeout to handle write
// contention gracefully.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for the
// duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: write-ahead logging for concurrent readers and
//     a single writer. Reads never block writes; writes never block
//     reads.
//   - synchronous=FULL: committed transactions survive OS crash and
//     power failure. The vault's durability promise backs the
//     revocation protocol's crash recovery, so the weaker NORMAL
//     setting is not acceptable here.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately.
//   - foreign_keys=OFF: the vault schema is a single table with no
//     relationships; the compare-and-swap layer manages integrity.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/haven/vault.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
