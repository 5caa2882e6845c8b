// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/haven-foundation/haven/lib/sqlitepool"
)

// sqliteSchema is the single-table vault store. Deleted records keep
// their row as a tombstone (present=0) so the version sequence at an
// address survives delete and re-create, matching Memory exactly.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	address BLOB PRIMARY KEY,
	version INTEGER NOT NULL,
	payload BLOB,
	present INTEGER NOT NULL
) WITHOUT ROWID;
`

// SQLite is a durable Vault backed by a local SQLite database. The
// gateway daemon uses it as its store; the CLI uses it directly for
// offline accounts. Safe for concurrent use — each operation takes
// its own pooled connection and performs its compare-and-swap in a
// single statement. There is never a read transaction to upgrade, so
// concurrent writers queue on the write lock and lose as
// ErrVersionConflict, never as a busy error.
type SQLite struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// SQLiteConfig holds the parameters for opening a SQLite vault.
type SQLiteConfig struct {
	// Path is the database file path. Required. ":memory:" is
	// rejected — use Memory for ephemeral vaults.
	Path string

	// Logger is used for operational messages. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// OpenSQLite opens (creating if necessary) a durable vault at the
// given path. The caller must call Close when done.
func OpenSQLite(config SQLiteConfig) (*SQLite, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("vault: sqlite Path is required")
	}
	if config.Path == ":memory:" {
		return nil, fmt.Errorf("vault: use Memory for ephemeral vaults, not sqlite :memory:")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vault: opening sqlite store: %w", err)
	}

	return &SQLite{pool: pool, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

func (s *SQLite) Get(ctx context.Context, address Address) (Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, opError("get", address, unavailable(err))
	}
	defer s.pool.Put(conn)

	record, found, err := readRecord(conn, address)
	if err != nil {
		return Record{}, opError("get", address, unavailable(err))
	}
	if !found {
		return Record{}, opError("get", address, ErrNotFound)
	}
	return record, nil
}

func (s *SQLite) Put(ctx context.Context, address Address, payload []byte) (uint64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, opError("put", address, unavailable(err))
	}
	defer s.pool.Put(conn)

	// One upsert: creates the record at version 0, or resurrects a
	// tombstone continuing its version sequence (see Memory for the
	// rationale). A present row fails the conflict clause's WHERE, so
	// the statement returns no row and first-write-wins holds.
	var newVersion int64
	wrote := false
	err = sqlitex.Execute(conn,
		`INSERT INTO records (address, version, payload, present) VALUES (?, 0, ?, 1)
		 ON CONFLICT(address) DO UPDATE SET version = version + 1, payload = excluded.payload, present = 1
		 WHERE present = 0
		 RETURNING version`,
		&sqlitex.ExecOptions{
			Args: []any{address[:], payload},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				wrote = true
				newVersion = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, opError("put", address, unavailable(err))
	}
	if !wrote {
		return 0, opError("put", address, ErrAlreadyExists)
	}
	return uint64(newVersion), nil
}

func (s *SQLite) Mutate(ctx context.Context, address Address, expectedVersion uint64, payload []byte) (uint64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, opError("mutate", address, unavailable(err))
	}
	defer s.pool.Put(conn)

	// The version check and the write are one statement; a loser of a
	// concurrent race matches zero rows.
	err = sqlitex.Execute(conn,
		"UPDATE records SET version = version + 1, payload = ? WHERE address = ? AND version = ? AND present = 1",
		&sqlitex.ExecOptions{Args: []any{payload, address[:], int64(expectedVersion)}})
	if err != nil {
		return 0, opError("mutate", address, unavailable(err))
	}
	if conn.Changes() > 0 {
		return expectedVersion + 1, nil
	}

	// Nothing matched: a missing record or a stale expected version.
	record, found, err := readRecordInt(conn, address)
	if err != nil {
		return 0, opError("mutate", address, unavailable(err))
	}
	if !found || !record.present {
		return 0, opError("mutate", address, ErrNotFound)
	}
	return 0, opError("mutate", address, ErrVersionConflict)
}

func (s *SQLite) Delete(ctx context.Context, address Address, expectedVersion uint64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return opError("delete", address, unavailable(err))
	}
	defer s.pool.Put(conn)

	// Tombstone in one statement: drop the payload, keep the version
	// counter, same version-guarded shape as Mutate.
	err = sqlitex.Execute(conn,
		"UPDATE records SET payload = NULL, present = 0 WHERE address = ? AND version = ? AND present = 1",
		&sqlitex.ExecOptions{Args: []any{address[:], int64(expectedVersion)}})
	if err != nil {
		return opError("delete", address, unavailable(err))
	}
	if conn.Changes() > 0 {
		return nil
	}

	record, found, err := readRecordInt(conn, address)
	if err != nil {
		return opError("delete", address, unavailable(err))
	}
	if !found || !record.present {
		return opError("delete", address, ErrNotFound)
	}
	return opError("delete", address, ErrVersionConflict)
}

// sqliteRecord mirrors one row, version still in SQLite's int64.
type sqliteRecord struct {
	version int64
	payload []byte
	present bool
}

func readRecordInt(conn *sqlite.Conn, address Address) (sqliteRecord, bool, error) {
	var record sqliteRecord
	var found bool
	err := sqlitex.Execute(conn,
		"SELECT version, payload, present FROM records WHERE address = ?",
		&sqlitex.ExecOptions{
			Args: []any{address[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				record.version = stmt.ColumnInt64(0)
				if length := stmt.ColumnLen(1); length > 0 {
					record.payload = make([]byte, length)
					stmt.ColumnBytes(1, record.payload)
				}
				record.present = stmt.ColumnInt(2) != 0
				return nil
			},
		})
	return record, found, err
}

func readRecord(conn *sqlite.Conn, address Address) (Record, bool, error) {
	raw, found, err := readRecordInt(conn, address)
	if err != nil || !found || !raw.present {
		return Record{}, found && raw.present, err
	}
	return Record{Version: uint64(raw.version), Payload: raw.payload}, true, nil
}

// unavailable classifies an infrastructure failure (pool exhaustion,
// I/O error) as transient. Semantic errors never reach this path.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
