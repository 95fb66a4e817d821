// Package broker - demo.go implements a self-contained demo broker.
//
// Demo simulates a CFD-style demo account: synthetic symbols with a random
// walk price series, immediate market fills, and floating P/L computed from
// tick value. It implements the same Broker interface as any live connector
// so engine logic is identical between demo and live modes; only the
// connector changes.
package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Demo simulates broker operations for paper trading against synthetic
// price series. Orders are filled immediately at the current quote.
type Demo struct {
	mu sync.Mutex

	rng *rand.Rand

	symbols map[string]*SymbolMeta
	prices  map[string]float64 // current mid price per symbol

	positions  map[string]*Position
	deals      []Deal
	nextTicket int64

	account AccountInfo
}

// NewDemo creates a demo broker seeded with the given symbol universe and
// starting account balance. seed controls the synthetic price walk so tests
// are reproducible.
func NewDemo(symbols []SymbolMeta, initialBalance float64, seed int64) *Demo {
	d := &Demo{
		rng:       rand.New(rand.NewSource(seed)),
		symbols:   make(map[string]*SymbolMeta, len(symbols)),
		prices:    make(map[string]float64, len(symbols)),
		positions: make(map[string]*Position),
		account: AccountInfo{
			Login:     1000001,
			Server:    "Demo-Server",
			Currency:  "USD",
			Leverage:  100,
			Balance:   initialBalance,
			Equity:    initialBalance,
			TradeMode: AccountModeDemo,
			Name:      "Demo Account",
			Company:   "Demo Broker",
		},
	}
	for i := range symbols {
		meta := symbols[i]
		d.symbols[meta.Name] = &meta
		d.prices[meta.Name] = seedPrice(meta)
	}
	return d
}

// seedPrice picks a plausible starting mid price per asset class so the
// synthetic walk produces realistic-looking quotes.
func seedPrice(meta SymbolMeta) float64 {
	switch meta.AssetClass {
	case AssetClassForex:
		return 1.10
	case AssetClassMetals:
		return 2000.0
	case AssetClassIndices:
		return 15000.0
	default:
		return 100.0
	}
}

func (d *Demo) DiscoverSymbols(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.symbols))
	for name := range d.symbols {
		names = append(names, name)
	}
	return names, nil
}

func (d *Demo) SymbolInfo(_ context.Context, symbol string) (*SymbolMeta, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	meta, ok := d.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("demo broker: unknown symbol %q", symbol)
	}
	cp := *meta
	cp.SpreadPoints = meta.SpreadPoints
	return &cp, nil
}

// Candles generates a synthetic OHLCV series ending at the current walked
// price. Each call advances the walk by one bar so repeated polling looks
// like a live feed.
func (d *Demo) Candles(_ context.Context, symbol, timeframe string, count int) ([]Candle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	meta, ok := d.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("demo broker: unknown symbol %q", symbol)
	}

	step := timeframeDuration(timeframe)
	now := time.Now().UTC().Truncate(step)
	candles := make([]Candle, count)
	price := d.prices[symbol]

	// Walk backwards from the current price to build a plausible history,
	// then restore forward so the last candle matches the live price.
	walk := make([]float64, count)
	p := price
	for i := count - 1; i >= 0; i-- {
		walk[i] = p
		p -= d.randomDelta(meta) * float64(count-i)
	}

	for i, mid := range walk {
		high := mid + math.Abs(d.randomDelta(meta))
		low := mid - math.Abs(d.randomDelta(meta))
		candles[i] = Candle{
			OpenTime: now.Add(-time.Duration(count-1-i) * step),
			Open:     mid - d.randomDelta(meta)/2,
			High:     high,
			Low:      low,
			Close:    mid,
			Volume:   1000 + d.rng.Float64()*500,
		}
	}

	// Advance the live price by one more step so the next poll differs.
	d.prices[symbol] = price + d.randomDelta(meta)

	return candles, nil
}

func (d *Demo) randomDelta(meta *SymbolMeta) float64 {
	vol := meta.Point * 50
	if vol == 0 {
		vol = 0.01
	}
	return (d.rng.Float64() - 0.5) * vol
}

func timeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "M1":
		return time.Minute
	case "M5":
		return 5 * time.Minute
	case "M15":
		return 15 * time.Minute
	case "H1":
		return time.Hour
	case "H4":
		return 4 * time.Hour
	case "D1":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func (d *Demo) GetQuote(_ context.Context, symbol string) (*Quote, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	meta, ok := d.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("demo broker: unknown symbol %q", symbol)
	}
	mid := d.prices[symbol]
	spread := meta.SpreadPoints * meta.Point
	return &Quote{
		Symbol:       symbol,
		Bid:          mid - spread/2,
		Ask:          mid + spread/2,
		TimeUTC:      time.Now().UTC(),
		SpreadPoints: meta.SpreadPoints,
	}, nil
}

func (d *Demo) ListPositions(_ context.Context) ([]Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	positions := make([]Position, 0, len(d.positions))
	for _, p := range d.positions {
		cp := *p
		cp.Profit = d.floatingProfit(p)
		positions = append(positions, cp)
	}
	return positions, nil
}

func (d *Demo) floatingProfit(p *Position) float64 {
	meta, ok := d.symbols[p.Symbol]
	if !ok {
		return p.Profit
	}
	mid := d.prices[p.Symbol]
	diff := mid - p.PriceOpen
	if p.Side == SideShort {
		diff = -diff
	}
	tickValue := meta.TradeTickValue
	tickSize := meta.TradeTickSize
	if tickSize == 0 {
		tickSize = meta.Point
	}
	if tickSize == 0 || tickValue == 0 {
		return 0
	}
	return diff / tickSize * tickValue * p.Volume
}

// PlaceOrder opens a new position at the current quote, or closes an
// existing one when req.PositionID is set, mirroring how a real MT5-style
// broker treats an opposite-side order tagged with a position id as a close
// rather than a net-new position.
func (d *Demo) PlaceOrder(_ context.Context, req OrderRequest) (*OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.PositionID != "" {
		return d.closePosition(req)
	}

	meta, ok := d.symbols[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("demo broker: unknown symbol %q", req.Symbol)
	}
	if !meta.TradeAllowed {
		return &OrderResult{Success: false, Retcode: 10018, Comment: "trade disabled"}, nil
	}

	mid := d.prices[req.Symbol]
	spread := meta.SpreadPoints * meta.Point
	fillPrice := mid + spread/2
	if req.Side == SideShort {
		fillPrice = mid - spread/2
	}

	d.nextTicket++
	ticket := d.nextTicket
	positionID := fmt.Sprintf("%d", ticket)

	pos := &Position{
		PositionID: positionID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		PriceOpen:  fillPrice,
		SL:         req.SL,
		TP:         req.TP,
		TimeUTC:    time.Now().UTC(),
		Magic:      req.Magic,
		Comment:    req.Comment,
	}
	d.positions[positionID] = pos

	d.deals = append(d.deals, Deal{
		DealTicket:  d.nextTicket,
		PositionID:  positionID,
		OrderTicket: ticket,
		TimeUTC:     pos.TimeUTC,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Entry:       "in",
		Volume:      req.Volume,
		Price:       fillPrice,
		Magic:       req.Magic,
		Comment:     req.Comment,
	})

	return &OrderResult{
		Success:     true,
		Retcode:     10009, // TRADE_RETCODE_DONE
		OrderTicket: ticket,
		PositionID:  positionID,
		Comment:     "demo fill",
	}, nil
}

// ModifyPosition adjusts SL/TP on an existing position. It is not invoked by
// the core trading loop today; the capability is carried forward for future
// stop-management logic (trailing stops, break-even moves).
func (d *Demo) ModifyPosition(_ context.Context, req OrderRequest) (*OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos, ok := d.positions[req.PositionID]
	if !ok {
		return &OrderResult{Success: false, Retcode: 10013, Comment: "position not found"}, nil
	}
	pos.SL = req.SL
	pos.TP = req.TP
	return &OrderResult{Success: true, Retcode: 10009, PositionID: pos.PositionID, Comment: "modified"}, nil
}

// closePosition realizes floating profit into a deal and removes the
// position from the book. Called from PlaceOrder when req.PositionID is
// set; d.mu must already be held.
func (d *Demo) closePosition(req OrderRequest) (*OrderResult, error) {
	pos, ok := d.positions[req.PositionID]
	if !ok {
		return &OrderResult{Success: false, Retcode: 10013, Comment: "position not found"}, nil
	}

	meta := d.symbols[pos.Symbol]
	mid := d.prices[pos.Symbol]
	spread := 0.0
	if meta != nil {
		spread = meta.SpreadPoints * meta.Point
	}
	closePrice := mid - spread/2
	if pos.Side == SideShort {
		closePrice = mid + spread/2
	}
	profit := d.floatingProfit(pos)

	d.nextTicket++
	d.deals = append(d.deals, Deal{
		DealTicket:  d.nextTicket,
		PositionID:  pos.PositionID,
		OrderTicket: d.nextTicket,
		TimeUTC:     time.Now().UTC(),
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Entry:       "out",
		Volume:      pos.Volume,
		Price:       closePrice,
		Profit:      profit,
		Magic:       req.Magic,
		Comment:     req.Comment,
	})

	d.account.Balance += profit
	d.account.Equity = d.account.Balance
	delete(d.positions, pos.PositionID)

	return &OrderResult{Success: true, Retcode: 10009, PositionID: pos.PositionID, Comment: "closed"}, nil
}

func (d *Demo) ListDeals(_ context.Context, since time.Time) ([]Deal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Deal, 0, len(d.deals))
	for _, deal := range d.deals {
		if !deal.TimeUTC.Before(since) {
			result = append(result, deal)
		}
	}
	return result, nil
}

func (d *Demo) Account(_ context.Context) (*AccountInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	floating := 0.0
	for _, p := range d.positions {
		floating += d.floatingProfit(p)
	}
	acc := d.account
	acc.Equity = d.account.Balance + floating
	return &acc, nil
}

func (d *Demo) Shutdown(_ context.Context) error {
	return nil
}
