package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

const latestSchemaVersion = 1

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.sqlDB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations(
		  version INTEGER PRIMARY KEY,
		  applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("persistence: ensure migrations table: %w", err)
	}

	version, err := db.currentVersion(ctx)
	if err != nil {
		return err
	}
	if version >= latestSchemaVersion {
		return nil
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if version < 1 {
			if _, err := tx.ExecContext(ctx, migrationV1); err != nil {
				return fmt.Errorf("persistence: migration v1: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations(version, applied_at) VALUES(?,?)`, 1, utcISO()); err != nil {
				return fmt.Errorf("persistence: record migration v1: %w", err)
			}
		}
		return nil
	})
}

func (db *DB) currentVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	row := db.sqlDB.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`)
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("persistence: read schema version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

const migrationV1 = `
CREATE TABLE IF NOT EXISTS decisions(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at TEXT NOT NULL,
  cycle_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  timeframe TEXT NOT NULL,
  candle_close_time_utc TEXT NOT NULL,
  rank_score REAL,
  rank_components_json TEXT,
  strategy TEXT,
  features_json TEXT,
  signal_json TEXT,
  risk_json TEXT,
  order_json TEXT,
  result_json TEXT,
  status TEXT NOT NULL,
  idempotency_key TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol);
CREATE INDEX IF NOT EXISTS idx_decisions_cycle ON decisions(cycle_id);

CREATE TABLE IF NOT EXISTS trades(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  deal_ticket INTEGER NOT NULL UNIQUE,
  position_id TEXT,
  order_ticket INTEGER,
  time_utc TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  entry TEXT NOT NULL,
  volume REAL NOT NULL,
  price REAL NOT NULL,
  profit REAL,
  commission REAL,
  swap REAL,
  magic INTEGER,
  comment TEXT,
  raw_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_trades_time_utc ON trades(time_utc);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS errors(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at TEXT NOT NULL,
  cycle_id TEXT,
  severity TEXT NOT NULL,
  message TEXT NOT NULL,
  traceback TEXT,
  context_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_errors_created_at ON errors(created_at);

CREATE TABLE IF NOT EXISTS settings_snapshots(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at TEXT NOT NULL,
  source TEXT NOT NULL,
  config_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_settings_created_at ON settings_snapshots(created_at);

CREATE TABLE IF NOT EXISTS heartbeats(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at TEXT NOT NULL,
  cycle_id TEXT NOT NULL,
  status TEXT NOT NULL,
  cycle_latency_ms REAL,
  mt5_connected INTEGER,
  equity REAL,
  balance REAL,
  daily_start_equity REAL,
  daily_pnl REAL,
  peak_equity REAL,
  drawdown_pct REAL,
  open_positions INTEGER,
  cpu_pct REAL,
  ram_pct REAL,
  disk_pct REAL,
  net_rx_bps REAL,
  net_tx_bps REAL,
  temp_c REAL,
  extra_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_created_at ON heartbeats(created_at);
`
