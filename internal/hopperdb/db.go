// Package hopperdb is the durable store behind the hopper registry: three
// SQLite tables for records, creative stashes and permission grants. All
// methods are synchronous; the coordinator decides what runs on which
// goroutine. Failures come back as *StorageError and leave prior state
// unchanged.
package hopperdb

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schemaVersion gates one-time migrations via PRAGMA user_version.
const schemaVersion = 1

// StorageError wraps any I/O or serialization failure at the storage
// boundary. Callers treat the operation as not-yet-durable; nothing panics.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

type DB struct {
	db  *sql.DB
	log *log.Logger
}

// Open creates or opens the database file, applies pragmas and runs
// migrations. The single-connection limit keeps writes serialized at the
// driver level as well.
func Open(path string, logger *log.Logger) (*DB, error) {
	if path == "" {
		return nil, storageErr("open", errors.New("empty db path"))
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr("open", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, storageErr("pragmas", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, storageErr("migrate", err)
	}
	return &DB{db: db, log: logger}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL for concurrent readers; FULL synchronous because these rows gate
	// item identity and permanent loss.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// migrate runs the one-time schema migration inside a single transaction.
// Every statement is idempotent, so re-running after a crash is safe.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS filtered_hoppers (
			id TEXT PRIMARY KEY,
			world TEXT NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_z INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			owner TEXT NOT NULL,
			is_placed INTEGER DEFAULT 1 NOT NULL,
			items BLOB
		);`,
		`CREATE INDEX IF NOT EXISTS idx_hoppers_owner ON filtered_hoppers(owner);`,
		`CREATE TABLE IF NOT EXISTS creative_hoppers (
			player_uuid TEXT PRIMARY KEY,
			items BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS hopper_permissions (
			owner TEXT NOT NULL,
			permitted TEXT NOT NULL,
			hopper_uuid TEXT,
			PRIMARY KEY (owner, permitted, hopper_uuid)
		);`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// FlushAndSync forces a synchronous WAL checkpoint. Called at shutdown so no
// straggling write is lost silently.
func (d *DB) FlushAndSync() error {
	if _, err := d.db.Exec("PRAGMA wal_checkpoint(FULL)"); err != nil {
		return storageErr("flush", err)
	}
	return nil
}

func (d *DB) Close() error {
	return storageErr("close", d.db.Close())
}
