// Package analytics computes per-day trading performance from the trades
// persisted by internal/persistence, for the engine's heartbeat, snapshot,
// and daily summary notification.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
)

// DailyMetrics is the profit/loss and win/loss tally for one calendar day
// (keyed by the UTC date prefix of trades.time_utc, matching how deals are
// timestamped by the reconciler).
type DailyMetrics struct {
	PnL    float64
	Wins   int
	Losses int
}

// querier is satisfied by *sql.DB (and by *sql.Tx, unused here but kept for
// symmetry with persistence's own repo style).
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ComputeDaily sums closing-leg ("out") trade profit for the given date
// (YYYY-MM-DD, compared with the UTC date prefix of time_utc) restricted to deals
// tagged with magicNumber, mirroring how the reconciler itself filters
// foreign positions out of risk tracking and notifications. magicNumber
// zero disables the filter, matching a deal with no magic set at all.
func ComputeDaily(ctx context.Context, db querier, date string, magicNumber int64) (DailyMetrics, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT profit, magic, entry FROM trades WHERE substr(time_utc,1,10) = ? ORDER BY id DESC`, date)
	if err != nil {
		return DailyMetrics{}, fmt.Errorf("analytics: query trades for %s: %w", date, err)
	}
	defer rows.Close()

	var m DailyMetrics
	for rows.Next() {
		var profit sql.NullFloat64
		var magic sql.NullInt64
		var entry string
		if err := rows.Scan(&profit, &magic, &entry); err != nil {
			return DailyMetrics{}, fmt.Errorf("analytics: scan trade row: %w", err)
		}
		if magicNumber != 0 && magic.Valid && magic.Int64 != magicNumber {
			continue
		}
		if entry != "out" && entry != "OUT" {
			continue
		}
		if !profit.Valid {
			continue
		}
		m.PnL += profit.Float64
		if profit.Float64 >= 0 {
			m.Wins++
		} else {
			m.Losses++
		}
	}
	return m, rows.Err()
}
