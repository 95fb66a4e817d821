// Package broker defines the broker abstraction layer.
//
// Design rules:
//   - Only one broker is active at a time.
//   - No strategy or risk logic inside broker.
//   - No persistence inside broker; the engine records decisions and trades.
//   - Broker layer must be stateless across restarts — all durable state
//     lives in the database, not in the broker implementation.
package broker

import (
	"context"
	"fmt"
	"time"
)

// Side represents the direction of a position or signal.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"
)

// AssetClass groups symbols for universe discovery limits.
type AssetClass string

const (
	AssetClassForex   AssetClass = "forex"
	AssetClassMetals  AssetClass = "metals"
	AssetClassIndices AssetClass = "indices"
	AssetClassStocks  AssetClass = "stocks"
)

// AccountTradeMode reports what kind of account the broker is connected to.
// The executor refuses to trade on anything but demo or contest accounts.
type AccountTradeMode string

const (
	AccountModeDemo    AccountTradeMode = "DEMO"
	AccountModeReal    AccountTradeMode = "REAL"
	AccountModeContest AccountTradeMode = "CONTEST"
	AccountModeUnknown AccountTradeMode = "UNKNOWN"
)

// SymbolMeta describes the tradeable properties of a symbol as reported by
// the broker: tick economics, volume bounds, and whether trading is allowed.
type SymbolMeta struct {
	Name              string
	Description       string
	Path              string
	AssetClass        AssetClass
	CurrencyBase      string
	CurrencyProfit    string
	CurrencyMargin    string
	Digits            int
	Point             float64
	TradeMode         AccountTradeMode
	TradeAllowed      bool
	SpreadPoints      float64
	TradeStopsLevel   int
	VolumeMin         float64
	VolumeMax         float64
	VolumeStep        float64
	TradeTickValue    float64
	TradeTickSize     float64
	TradeContractSize float64
	Extra             map[string]any
}

// Quote is a single bid/ask snapshot for a symbol.
type Quote struct {
	Symbol       string
	Bid          float64
	Ask          float64
	TimeUTC      time.Time
	SpreadPoints float64
}

// Candle is one OHLCV bar for a symbol/timeframe pair.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Position is an open position on the broker's book.
type Position struct {
	PositionID string
	Symbol     string
	Side       Side
	Volume     float64
	PriceOpen  float64
	SL         float64
	TP         float64
	TimeUTC    time.Time
	Profit     float64
	Swap       float64
	Commission float64
	Magic      int64
	Comment    string
	Raw        map[string]any
}

// Deal is a closed/executed fill, used for reconciliation against decisions.
type Deal struct {
	DealTicket  int64
	PositionID  string
	OrderTicket int64
	TimeUTC     time.Time
	Symbol      string
	Side        Side
	Entry       string // "in" or "out"
	Volume      float64
	Price       float64
	Profit      float64
	Commission  float64
	Swap        float64
	Magic       int64
	Comment     string
	Raw         map[string]any
}

// AccountInfo reports broker account state used by the risk manager for
// equity tracking and by the executor for the demo/contest trade-mode gate.
type AccountInfo struct {
	Login     int64
	Server    string
	Currency  string
	Leverage  int
	Balance   float64
	Equity    float64
	Margin    float64
	TradeMode AccountTradeMode
	Name      string
	Company   string
	Raw       map[string]any
}

// OrderRequest is the broker-agnostic order submitted by the executor.
// IdempotencyKey is carried through so adapters can surface it in logs even
// though broker APIs typically only accept it embedded in Comment.
type OrderRequest struct {
	Symbol          string
	Side            Side
	Volume          float64
	SL              float64
	TP              float64
	DeviationPoints int
	Magic           int64
	Comment         string
	IdempotencyKey  string
	PositionID      string // set when closing/modifying an existing position
}

// OrderResult is returned by PlaceOrder and ModifyPosition.
type OrderResult struct {
	Success     bool
	Retcode     int
	OrderTicket int64
	PositionID  string
	Comment     string
	Raw         map[string]any
}

// RetryableError marks broker errors the executor should retry with backoff,
// as opposed to errors that indicate a permanent rejection.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "broker: retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// DisconnectedError indicates the broker connection is currently down.
// It is always retryable.
type DisconnectedError struct {
	Err error
}

func (e *DisconnectedError) Error() string { return "broker: disconnected: " + e.Err.Error() }
func (e *DisconnectedError) Unwrap() error { return e.Err }

// Broker is the contract between the trading engine and any market
// connector. A single implementation is active at a time; the engine never
// branches on concrete type.
type Broker interface {
	// DiscoverSymbols returns the names of all symbols visible to this
	// account. Asset-class filtering is applied by the caller.
	DiscoverSymbols(ctx context.Context) ([]string, error)

	// SymbolInfo returns tradeable metadata for a single symbol.
	SymbolInfo(ctx context.Context, symbol string) (*SymbolMeta, error)

	// Candles returns up to count most recent bars for symbol/timeframe,
	// oldest first. The last element may still be forming.
	Candles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)

	// GetQuote returns the latest bid/ask for symbol.
	GetQuote(ctx context.Context, symbol string) (*Quote, error)

	// ListPositions returns all currently open positions.
	ListPositions(ctx context.Context) ([]Position, error)

	// PlaceOrder submits a new market order, or closes an existing
	// position when req.PositionID is set.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// ModifyPosition adjusts SL/TP on an existing position. Not invoked by
	// the core trading loop; carried forward for future stop-management
	// logic.
	ModifyPosition(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// ListDeals returns executed deals with TimeUTC >= since.
	ListDeals(ctx context.Context, since time.Time) ([]Deal, error)

	// Account returns current account state.
	Account(ctx context.Context) (*AccountInfo, error)

	// Shutdown releases any resources held by the connector.
	Shutdown(ctx context.Context) error
}

// Registry maps broker names to their factory functions so cmd/engine can
// select an implementation by config without a compile-time dependency.
var Registry = map[string]func(configJSON []byte) (Broker, error){}

// New creates a broker instance by name using the registry.
func New(name string, configJSON []byte) (Broker, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("broker: unknown broker %q, registered: %v", name, registeredNames())
	}
	return factory(configJSON)
}

func registeredNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}
