package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyhedge/internal/application/ledger"
	"github.com/alejandrodnm/polyhedge/internal/domain"
)

type fakeHedge struct {
	mu       sync.Mutex
	quotes   map[string]domain.Quote
	quoteErr error
	funding  float64
	closed   []string
	closeErr error
}

func (f *fakeHedge) GetQuote(ctx context.Context, asset string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return domain.Quote{}, f.quoteErr
	}
	return f.quotes[asset], nil
}

func (f *fakeHedge) GetOrderBook(ctx context.Context, asset string) (domain.OrderBook, error) {
	return domain.OrderBook{}, nil
}

func (f *fakeHedge) GetFundingRate(ctx context.Context, asset string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.funding, nil
}

func (f *fakeHedge) PlaceOrder(ctx context.Context, req domain.HedgeOrderRequest) (string, error) {
	return "h-1", nil
}

func (f *fakeHedge) CancelOrder(ctx context.Context, orderID, asset string) error { return nil }

func (f *fakeHedge) GetOrderStatus(ctx context.Context, orderID, asset string) (domain.OrderFill, error) {
	return domain.OrderFill{}, nil
}

func (f *fakeHedge) GetPositions(ctx context.Context) ([]domain.PerpPosition, error) {
	return nil, nil
}

func (f *fakeHedge) ClosePosition(ctx context.Context, asset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, asset)
	return nil
}

func (f *fakeHedge) SetLeverage(ctx context.Context, asset string, leverage float64) error {
	return nil
}

func (f *fakeHedge) GetBalance(ctx context.Context) (float64, error) { return 1e6, nil }

func (f *fakeHedge) closedAssets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.closed))
	copy(out, f.closed)
	return out
}

func (f *fakeHedge) setQuote(asset string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quotes == nil {
		f.quotes = make(map[string]domain.Quote)
	}
	f.quotes[asset] = domain.Quote{Bid: bid, Ask: ask}
}

func monitorNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestLedger() *ledger.Ledger {
	l := ledger.New(ledger.Config{
		Limits: domain.RiskLimits{
			MaxConcurrentPositions: 10,
			MaxDailyTrades:         100,
		},
		BreakerMaxLosses: 10,
		BreakerCooldown:  time.Minute,
		MaxDrawdownUSD:   1e6,
	})
	l.SetClock(monitorNow)
	return l
}

func newTestMonitor(hedge *fakeHedge, l *ledger.Ledger) *Monitor {
	m := New(hedge, l, Config{
		Interval:             5 * time.Second,
		FundingRateThreshold: 0.01,
		HardFundingMultiple:  3,
	})
	m.SetClock(monitorNow)
	return m
}

func openLongPosition(id string) *domain.Position {
	return &domain.Position{
		ID:              id,
		Status:          domain.StatusOpen,
		Asset:           "BTC",
		ContractID:      "btc-above-62k",
		HedgeSide:       domain.SideLong,
		HedgeEntryPrice: 60000,
		HedgeQuantity:   0.01,
		StopLossPrice:   59760,
		TakeProfitPrice: 60200,
		OpenedAt:        monitorNow().Add(-time.Hour),
		ExpiresAt:       monitorNow().Add(24 * time.Hour),
	}
}

func TestTickHoldsInsideBounds(t *testing.T) {
	hedge := &fakeHedge{}
	hedge.setQuote("BTC", 59990, 60010) // mid 60000, between stop and TP
	l := newTestLedger()
	require.NoError(t, l.Register(openLongPosition("p1")))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	assert.Empty(t, hedge.closedAssets())
	assert.Equal(t, 1, l.ActiveCount())
}

func TestTickClosesOnExpiry(t *testing.T) {
	hedge := &fakeHedge{}
	hedge.setQuote("BTC", 59990, 60010)
	l := newTestLedger()
	p := openLongPosition("p1")
	p.ExpiresAt = monitorNow().Add(-time.Minute)
	require.NoError(t, l.Register(p))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	assert.Equal(t, []string{"BTC"}, hedge.closedAssets())
	assert.Equal(t, 0, l.ActiveCount())

	history := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusClosed, history[0].Status)
	assert.Equal(t, "expired", history[0].CloseReason)
	require.NotNil(t, history[0].ClosedAt)
}

func TestTickClosesLongOnStopLoss(t *testing.T) {
	hedge := &fakeHedge{}
	hedge.setQuote("BTC", 59700, 59720) // mid 59710, below the 59760 stop
	l := newTestLedger()
	require.NoError(t, l.Register(openLongPosition("p1")))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	history := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, "stop_loss", history[0].CloseReason)
	// Realized P&L carries the loss at the close price.
	assert.InDelta(t, 0.01*(59710-60000), history[0].RealizedPnL, 1e-9)
}

func TestTickClosesLongOnTakeProfit(t *testing.T) {
	hedge := &fakeHedge{}
	hedge.setQuote("BTC", 60290, 60310) // mid 60300, above the 60200 TP
	l := newTestLedger()
	require.NoError(t, l.Register(openLongPosition("p1")))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	history := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, "take_profit", history[0].CloseReason)
	assert.Positive(t, history[0].RealizedPnL)
}

func TestTickClosesShortWithInvertedBounds(t *testing.T) {
	hedge := &fakeHedge{}
	hedge.setQuote("BTC", 60490, 60510) // mid 60500, above the short's stop
	l := newTestLedger()

	p := openLongPosition("p1")
	p.HedgeSide = domain.SideShort
	p.StopLossPrice = 60240   // above entry for a short
	p.TakeProfitPrice = 59800 // below entry for a short
	require.NoError(t, l.Register(p))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	history := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, "stop_loss", history[0].CloseReason)
}

func TestTickClosesOnHardFunding(t *testing.T) {
	hedge := &fakeHedge{funding: 0.05} // beyond 3 * 0.01
	hedge.setQuote("BTC", 59990, 60010)
	l := newTestLedger()
	require.NoError(t, l.Register(openLongPosition("p1")))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	history := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, "funding", history[0].CloseReason)
}

func TestTickSkipsPositionWhenQuoteUnavailable(t *testing.T) {
	hedge := &fakeHedge{quoteErr: errors.New("timeout")}
	l := newTestLedger()
	require.NoError(t, l.Register(openLongPosition("p1")))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	// Nothing closed; retried on the next tick.
	assert.Empty(t, hedge.closedAssets())
	assert.Equal(t, 1, l.ActiveCount())
}

func TestTickOnePositionFailureDoesNotAffectOthers(t *testing.T) {
	hedge := &fakeHedge{}
	hedge.setQuote("BTC", 59990, 60010)
	l := newTestLedger()

	// ETH has no quote (mid 0) and errors; BTC expires and must still close.
	broken := openLongPosition("p-eth")
	broken.Asset = "ETH"
	require.NoError(t, l.Register(broken))

	expiring := openLongPosition("p-btc")
	expiring.ExpiresAt = monitorNow().Add(-time.Minute)
	require.NoError(t, l.Register(expiring))

	m := newTestMonitor(hedge, l)
	m.Tick(context.Background())

	assert.Equal(t, []string{"BTC"}, hedge.closedAssets())
	assert.Equal(t, 1, l.ActiveCount())
}

func TestClosePositionFailureLeavesPositionOpen(t *testing.T) {
	hedge := &fakeHedge{closeErr: errors.New("venue rejected")}
	hedge.setQuote("BTC", 59990, 60010)
	l := newTestLedger()
	require.NoError(t, l.Register(openLongPosition("p1")))

	m := newTestMonitor(hedge, l)
	err := m.ClosePosition(context.Background(), "p1", "manual")
	require.Error(t, err)

	// Still active: the hedge leg was not closed, state must not lie.
	assert.Equal(t, 1, l.ActiveCount())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	hedge := &fakeHedge{}
	l := newTestLedger()
	m := New(hedge, l, Config{Interval: time.Millisecond})
	m.SetClock(monitorNow)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on context cancel")
	}
}
