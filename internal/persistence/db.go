// Package persistence stores decisions, trades, errors, settings snapshots,
// and heartbeats in a local SQLite database, so a crashed or restarted
// engine can recover its idempotency state and an operator can audit what
// the bot did without a separate time-series backend.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a *sql.DB configured for SQLite's single-writer model: WAL
// journaling lets readers proceed while a write is in flight, and the pool
// is capped to one open connection so writers serialize through
// database/sql rather than hitting SQLITE_BUSY.
type DB struct {
	mu   sync.Mutex
	sqlDB *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pragmas, and runs any pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("persistence: open %q: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB: sqlDB}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// Conn exposes the underlying *sql.DB for repos in this package.
func (db *DB) Conn() *sql.DB {
	return db.sqlDB
}

// WithTx runs fn inside a BEGIN/COMMIT transaction, rolling back on any
// error or panic fn produces.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

func utcISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
