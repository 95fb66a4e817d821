package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

type fakeBroker struct {
	account         *broker.AccountInfo
	placeErr        error
	placeFailures   int // number of RetryableError failures before success
	placeCalls      int
	modifyErr       error
	positions       []broker.Position
}

func (f *fakeBroker) DiscoverSymbols(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeBroker) SymbolInfo(ctx context.Context, symbol string) (*broker.SymbolMeta, error) {
	return nil, nil
}
func (f *fakeBroker) Candles(ctx context.Context, symbol, timeframe string, count int) ([]broker.Candle, error) {
	return nil, nil
}
func (f *fakeBroker) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	return nil, nil
}
func (f *fakeBroker) ListPositions(ctx context.Context) ([]broker.Position, error) {
	return f.positions, nil
}
func (f *fakeBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	f.placeCalls++
	if f.placeCalls <= f.placeFailures {
		return nil, &broker.RetryableError{Err: errors.New("timeout")}
	}
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return &broker.OrderResult{Success: true, OrderTicket: 42}, nil
}
func (f *fakeBroker) ModifyPosition(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	if f.modifyErr != nil {
		return nil, f.modifyErr
	}
	return &broker.OrderResult{Success: true}, nil
}
func (f *fakeBroker) ListDeals(ctx context.Context, since time.Time) ([]broker.Deal, error) {
	return nil, nil
}
func (f *fakeBroker) Account(ctx context.Context) (*broker.AccountInfo, error) {
	return f.account, nil
}
func (f *fakeBroker) Shutdown(ctx context.Context) error { return nil }

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]Decision
	statusN int
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]Decision)} }

func (s *fakeStore) TryInsert(ctx context.Context, d Decision) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[d.IdempotencyKey]; exists {
		return false, nil
	}
	s.rows[d.IdempotencyKey] = d
	return true, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, key string, status DecisionStatus, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusN++
	d := s.rows[key]
	d.Status = status
	d.Result = result
	s.rows[key] = d
	return nil
}

func demoAccount() *broker.AccountInfo {
	return &broker.AccountInfo{TradeMode: broker.AccountModeDemo}
}

func testExecutor(br broker.Broker, store DecisionStore) *Executor {
	return NewExecutor(br, store, NewIdempotencyCache(), Config{
		TradingEnabled:   true,
		RetryMaxAttempts: 3,
		RetryBackoff:     []time.Duration{time.Millisecond},
	}, nil)
}

func TestOpenTrade_Succeeds(t *testing.T) {
	br := &fakeBroker{account: demoAccount()}
	store := newFakeStore()
	e := testExecutor(br, store)

	rep := e.OpenTrade(context.Background(), OpenParams{
		Symbol: "EURUSD", Side: broker.SideLong, Volume: 1,
		IdempotencyKey: "key1",
	})
	if !rep.Success {
		t.Fatalf("expected success, got %+v", rep)
	}
	if store.rows["key1"].Status != DecisionOpened {
		t.Errorf("expected decision status opened, got %v", store.rows["key1"].Status)
	}
}

func TestOpenTrade_RejectsDuplicateIdempotencyKey(t *testing.T) {
	br := &fakeBroker{account: demoAccount()}
	store := newFakeStore()
	e := testExecutor(br, store)

	params := OpenParams{Symbol: "EURUSD", Side: broker.SideLong, Volume: 1, IdempotencyKey: "dup"}
	first := e.OpenTrade(context.Background(), params)
	if !first.Success {
		t.Fatalf("expected first open to succeed, got %+v", first)
	}
	second := e.OpenTrade(context.Background(), params)
	if second.Success || second.Reason != "duplicate idempotency key" {
		t.Errorf("expected duplicate rejection, got %+v", second)
	}
	if br.placeCalls != 1 {
		t.Errorf("expected broker only called once, got %d calls", br.placeCalls)
	}
}

func TestOpenTrade_RejectsWhenTradingDisabled(t *testing.T) {
	br := &fakeBroker{account: demoAccount()}
	store := newFakeStore()
	e := NewExecutor(br, store, NewIdempotencyCache(), Config{TradingEnabled: false}, nil)

	rep := e.OpenTrade(context.Background(), OpenParams{Symbol: "EURUSD", IdempotencyKey: "k"})
	if rep.Success || rep.Reason != "trading disabled" {
		t.Errorf("expected trading-disabled rejection, got %+v", rep)
	}
}

func TestOpenTrade_RejectsOnRealAccount(t *testing.T) {
	br := &fakeBroker{account: &broker.AccountInfo{TradeMode: broker.AccountModeReal}}
	store := newFakeStore()
	e := testExecutor(br, store)

	rep := e.OpenTrade(context.Background(), OpenParams{Symbol: "EURUSD", IdempotencyKey: "k"})
	if rep.Success {
		t.Errorf("expected rejection on real account, got %+v", rep)
	}
}

func TestOpenTrade_RetriesTransientFailureThenSucceeds(t *testing.T) {
	br := &fakeBroker{account: demoAccount(), placeFailures: 2}
	store := newFakeStore()
	e := testExecutor(br, store)

	rep := e.OpenTrade(context.Background(), OpenParams{Symbol: "EURUSD", IdempotencyKey: "k"})
	if !rep.Success {
		t.Fatalf("expected eventual success after retries, got %+v", rep)
	}
	if br.placeCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", br.placeCalls)
	}
}

func TestOpenTrade_MarksErrorOnBrokerRejection(t *testing.T) {
	br := &fakeBroker{account: demoAccount(), placeErr: errors.New("invalid symbol")}
	store := newFakeStore()
	e := testExecutor(br, store)

	rep := e.OpenTrade(context.Background(), OpenParams{Symbol: "EURUSD", IdempotencyKey: "k"})
	if rep.Success {
		t.Errorf("expected failure, got %+v", rep)
	}
	if store.rows["k"].Status != DecisionError {
		t.Errorf("expected decision status error, got %v", store.rows["k"].Status)
	}
}

func TestCloseTrade_Succeeds(t *testing.T) {
	br := &fakeBroker{account: demoAccount()}
	store := newFakeStore()
	e := testExecutor(br, store)

	rep := e.CloseTrade(context.Background(), CloseParams{
		Symbol: "EURUSD", PositionID: "p1", CloseSide: broker.SideShort, Volume: 1,
		IdempotencyKey: "close1", Reason: "exit signal",
	})
	if !rep.Success {
		t.Fatalf("expected close success, got %+v", rep)
	}
	if store.rows["close1"].Status != DecisionClosed {
		t.Errorf("expected decision status closed, got %v", store.rows["close1"].Status)
	}
}
