// Package reconcile polls the broker's executed deals and feeds newly seen
// fills back into risk tracking and operator notifications, independent of
// whatever placed the order — including closes triggered by stop loss/take
// profit or a manual action outside this process.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

// TradeStore persists executed deals. InsertDeals must be idempotent on
// DealTicket and returns only the subset that was newly inserted, which is
// how the reconciler tells a first sighting from a re-poll of the overlap
// window apart.
type TradeStore interface {
	InsertDeals(ctx context.Context, deals []broker.Deal) (inserted []broker.Deal, err error)
}

// RiskTracker receives newly reconciled deals so loss-streak and cooloff
// state stays in sync even for closes this process didn't itself request.
type RiskTracker interface {
	OnNewDeals(deals []broker.Deal)
}

// Notifier delivers a throttled message, deduplicated by key.
type Notifier interface {
	Notify(key, message string)
}

// Config controls reconciliation behavior.
type Config struct {
	MagicNumber  int64
	PollOverlap  time.Duration // re-poll this far back each cycle to survive clock skew
	LookbackInit time.Duration // initial lookback window on first poll
}

// Reconciler periodically reads the broker's deal history and reports any
// deal not yet recorded.
type Reconciler struct {
	mu       sync.Mutex
	br       broker.Broker
	store    TradeStore
	risk     RiskTracker
	notifier Notifier
	cfg      Config
	logger   *log.Logger

	syncFrom time.Time
}

// NewReconciler wires a broker, trade store, risk tracker, and notifier.
// Pass a nil logger to use the standard library default, and a nil notifier
// to disable close notifications.
func NewReconciler(br broker.Broker, store TradeStore, risk RiskTracker, notifier Notifier, cfg Config, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.LookbackInit <= 0 {
		cfg.LookbackInit = 6 * time.Hour
	}
	if cfg.PollOverlap <= 0 {
		cfg.PollOverlap = 5 * time.Minute
	}
	return &Reconciler{
		br:       br,
		store:    store,
		risk:     risk,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		syncFrom: time.Now().UTC().Add(-cfg.LookbackInit),
	}
}

// Sync polls the broker for deals since the last successful poll, inserts
// any not already recorded, and propagates them to the risk tracker and
// notifier. A broker error is returned for the caller to log and leaves
// the poll window where it was, so the next call re-polls the same range.
func (r *Reconciler) Sync(ctx context.Context) error {
	r.mu.Lock()
	from := r.syncFrom
	r.mu.Unlock()

	now := time.Now().UTC()
	deals, err := r.br.ListDeals(ctx, from)
	if err != nil {
		return fmt.Errorf("reconcile: list deals: %w", err)
	}

	r.mu.Lock()
	r.syncFrom = now.Add(-r.cfg.PollOverlap)
	r.mu.Unlock()

	if len(deals) == 0 {
		return nil
	}

	inserted, err := r.store.InsertDeals(ctx, deals)
	if err != nil {
		return fmt.Errorf("reconcile: insert deals: %w", err)
	}
	if len(inserted) == 0 {
		return nil
	}

	if r.risk != nil {
		r.risk.OnNewDeals(inserted)
	}

	for _, d := range inserted {
		r.notifyClose(d)
	}
	return nil
}

func (r *Reconciler) notifyClose(d broker.Deal) {
	if r.notifier == nil {
		return
	}
	if d.Magic != 0 && r.cfg.MagicNumber != 0 && d.Magic != r.cfg.MagicNumber {
		return
	}
	if !strings.EqualFold(d.Entry, "out") {
		return
	}
	// Bot-initiated closes already get a notification from the engine;
	// avoid sending it twice for the same close.
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(d.Comment)), "pb:") {
		return
	}

	msg := fmt.Sprintf("Position closed outside the engine: %s %s vol=%.2f profit=%.2f", d.Symbol, d.Side, d.Volume, d.Profit)
	r.notifier.Notify(fmt.Sprintf("deal_close:%d", d.DealTicket), msg)
}
