package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
	"github.com/forgefx/paperbot/internal/execution"
)

// DecisionRepo persists trading decisions keyed by idempotency key. It
// satisfies execution.DecisionStore.
type DecisionRepo struct {
	db *DB
}

// NewDecisionRepo returns a DecisionRepo backed by db.
func NewDecisionRepo(db *DB) *DecisionRepo {
	return &DecisionRepo{db: db}
}

// TryInsert inserts d and returns inserted=false (without error) when a row
// with the same idempotency key already exists, since idempotency_key is
// UNIQUE and the insert is a no-op by design in that case.
func (r *DecisionRepo) TryInsert(ctx context.Context, d execution.Decision) (bool, error) {
	orderJSON, err := json.Marshal(d.Order)
	if err != nil {
		return false, fmt.Errorf("persistence: marshal order: %w", err)
	}
	resultJSON, err := marshalResult(d.Result)
	if err != nil {
		return false, err
	}

	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO decisions(
		  created_at, cycle_id, symbol, timeframe, candle_close_time_utc,
		  rank_score, strategy, order_json, result_json, status, idempotency_key
		) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		utcISO(), d.CycleID, d.Symbol, d.Timeframe, d.CandleCloseTimeUTC,
		d.RankScore, d.Strategy, string(orderJSON), resultJSON, string(d.Status), d.IdempotencyKey,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("persistence: insert decision: %w", err)
	}
	return true, nil
}

// UpdateStatus updates the status and result of a previously inserted
// decision identified by its idempotency key.
func (r *DecisionRepo) UpdateStatus(ctx context.Context, idempotencyKey string, status execution.DecisionStatus, result map[string]any) error {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return err
	}
	_, err = r.db.Conn().ExecContext(ctx,
		`UPDATE decisions SET status = ?, result_json = ? WHERE idempotency_key = ?`,
		string(status), resultJSON, idempotencyKey)
	if err != nil {
		return fmt.Errorf("persistence: update decision status: %w", err)
	}
	return nil
}

// RecentIdempotencyKeys returns the idempotency keys of the most recently
// inserted decisions, used to seed an execution.IdempotencyCache after a
// restart.
func (r *DecisionRepo) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT idempotency_key FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("persistence: query recent decisions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("persistence: scan decision key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// TradeRepo persists executed deals. It satisfies reconcile.TradeStore.
type TradeRepo struct {
	db *DB
}

// NewTradeRepo returns a TradeRepo backed by db.
func NewTradeRepo(db *DB) *TradeRepo {
	return &TradeRepo{db: db}
}

// InsertDeals inserts each deal, ignoring rows whose deal_ticket already
// exists, and returns only the deals that were newly inserted.
func (r *TradeRepo) InsertDeals(ctx context.Context, deals []broker.Deal) ([]broker.Deal, error) {
	var inserted []broker.Deal
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO trades(
			  deal_ticket, position_id, order_ticket, time_utc, symbol, side, entry,
			  volume, price, profit, commission, swap, magic, comment, raw_json
			) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("persistence: prepare insert deal: %w", err)
		}
		defer stmt.Close()

		for _, d := range deals {
			rawJSON, err := marshalResult(d.Raw)
			if err != nil {
				return err
			}
			res, err := stmt.ExecContext(ctx,
				d.DealTicket, d.PositionID, d.OrderTicket, d.TimeUTC.UTC().Format(time.RFC3339Nano),
				d.Symbol, string(d.Side), d.Entry, d.Volume, d.Price, d.Profit, d.Commission, d.Swap, d.Magic, d.Comment, rawJSON)
			if err != nil {
				return fmt.Errorf("persistence: insert deal %d: %w", d.DealTicket, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("persistence: rows affected for deal %d: %w", d.DealTicket, err)
			}
			if n > 0 {
				inserted = append(inserted, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// ErrorRepo persists error/warning events for later audit.
type ErrorRepo struct {
	db *DB
}

// NewErrorRepo returns an ErrorRepo backed by db.
func NewErrorRepo(db *DB) *ErrorRepo {
	return &ErrorRepo{db: db}
}

// Insert records one error/warning event.
func (r *ErrorRepo) Insert(ctx context.Context, cycleID, severity, message, traceback string, contextData map[string]any) error {
	ctxJSON, err := marshalResult(contextData)
	if err != nil {
		return err
	}
	_, err = r.db.Conn().ExecContext(ctx,
		`INSERT INTO errors(created_at, cycle_id, severity, message, traceback, context_json) VALUES(?,?,?,?,?,?)`,
		utcISO(), cycleID, severity, message, traceback, ctxJSON)
	if err != nil {
		return fmt.Errorf("persistence: insert error event: %w", err)
	}
	return nil
}

// SettingsRepo persists point-in-time config snapshots so an operator can
// tell what configuration was active when a given trade happened.
type SettingsRepo struct {
	db *DB
}

// NewSettingsRepo returns a SettingsRepo backed by db.
func NewSettingsRepo(db *DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// InsertSnapshot records configJSON as the active config as of now, tagged
// with source (e.g. "startup" or "hot-reload").
func (r *SettingsRepo) InsertSnapshot(ctx context.Context, source, configJSON string) error {
	_, err := r.db.Conn().ExecContext(ctx,
		`INSERT INTO settings_snapshots(created_at, source, config_json) VALUES(?,?,?)`,
		utcISO(), source, configJSON)
	if err != nil {
		return fmt.Errorf("persistence: insert settings snapshot: %w", err)
	}
	return nil
}

// LatestSnapshotJSON returns the most recently recorded config snapshot, or
// "" if none has been recorded yet.
func (r *SettingsRepo) LatestSnapshotJSON(ctx context.Context) (string, error) {
	var configJSON string
	row := r.db.Conn().QueryRowContext(ctx,
		`SELECT config_json FROM settings_snapshots ORDER BY id DESC LIMIT 1`)
	if err := row.Scan(&configJSON); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("persistence: read latest settings snapshot: %w", err)
	}
	return configJSON, nil
}

// Heartbeat is one cycle's worth of liveness and resource-usage data.
type Heartbeat struct {
	CycleID          string
	Status           string
	CycleLatencyMs   float64
	BrokerConnected  bool
	Equity           float64
	Balance          float64
	DailyStartEquity float64
	DailyPnL         float64
	PeakEquity       float64
	DrawdownPct      float64
	OpenPositions    int
	CPUPct           float64
	RAMPct           float64
	DiskPct          float64
	NetRxBps         float64
	NetTxBps         float64
	TempC            float64
	Extra            map[string]any
}

// HeartbeatRepo persists per-cycle liveness records consumed by the
// dashboard and by external monitoring.
type HeartbeatRepo struct {
	db *DB
}

// NewHeartbeatRepo returns a HeartbeatRepo backed by db.
func NewHeartbeatRepo(db *DB) *HeartbeatRepo {
	return &HeartbeatRepo{db: db}
}

// Insert records one heartbeat.
func (r *HeartbeatRepo) Insert(ctx context.Context, hb Heartbeat) error {
	extraJSON, err := marshalResult(hb.Extra)
	if err != nil {
		return err
	}
	status := hb.Status
	if status == "" {
		status = "ok"
	}
	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO heartbeats(
		  created_at, cycle_id, status, cycle_latency_ms, mt5_connected, equity, balance,
		  daily_start_equity, daily_pnl, peak_equity, drawdown_pct, open_positions,
		  cpu_pct, ram_pct, disk_pct, net_rx_bps, net_tx_bps, temp_c, extra_json
		) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		utcISO(), hb.CycleID, status, hb.CycleLatencyMs, hb.BrokerConnected, hb.Equity, hb.Balance,
		hb.DailyStartEquity, hb.DailyPnL, hb.PeakEquity, hb.DrawdownPct, hb.OpenPositions,
		hb.CPUPct, hb.RAMPct, hb.DiskPct, hb.NetRxBps, hb.NetTxBps, hb.TempC, extraJSON)
	if err != nil {
		return fmt.Errorf("persistence: insert heartbeat: %w", err)
	}
	return nil
}

func marshalResult(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("persistence: marshal json: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
