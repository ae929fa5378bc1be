package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxConcurrentPositions:   2,
		MaxDailyTrades:           3,
		MaxPositionSizeUSD:       5000,
		MaxAssetConcentrationUSD: 10000,
		FundingRateThreshold:     0.01,
	}
}

func testLedger() (*Ledger, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{
		Limits:           testLimits(),
		BreakerMaxLosses: 2,
		BreakerCooldown:  30 * time.Minute,
		MaxDrawdownUSD:   500,
	})
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func openPosition(id, asset string, notional float64) *domain.Position {
	return &domain.Position{
		ID:              id,
		Status:          domain.StatusOpen,
		Asset:           asset,
		HedgeQuantity:   notional / 60000,
		HedgeEntryPrice: 60000,
		HedgeSide:       domain.SideLong,
		OpenedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testOpportunity(asset string, notional float64) domain.Opportunity {
	return domain.Opportunity{
		ID:            "opp-" + asset,
		Contract:      domain.PredictionContract{ID: "c1", Asset: asset},
		HedgeQuantity: notional / 60000,
		HedgePrice:    60000,
	}
}

func TestCanExecutePassesWhenUnderLimits(t *testing.T) {
	l, _ := testLedger()
	assert.NoError(t, l.CanExecute(testOpportunity("BTC", 1000)))
}

func TestCanExecuteRejectsConcurrentCap(t *testing.T) {
	l, _ := testLedger()
	require.NoError(t, l.Register(openPosition("p1", "BTC", 1000)))
	require.NoError(t, l.Register(openPosition("p2", "ETH", 1000)))

	err := l.CanExecute(testOpportunity("BTC", 1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrent position cap")
}

func TestCanExecuteRejectsDailyCap(t *testing.T) {
	l, _ := testLedger()

	// Three registered and archived trades exhaust the daily cap even with
	// no active positions left.
	for _, id := range []string{"p1", "p2", "p3"} {
		p := openPosition(id, "BTC", 100)
		require.NoError(t, l.Register(p))
		require.NoError(t, p.Transition(domain.StatusClosed))
		p.RealizedPnL = 10
		require.NoError(t, l.Archive(id))
	}

	err := l.CanExecute(testOpportunity("BTC", 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily trade cap")
}

func TestCanExecuteRejectsAssetConcentration(t *testing.T) {
	l, _ := testLedger()
	require.NoError(t, l.Register(openPosition("p1", "BTC", 9000)))

	err := l.CanExecute(testOpportunity("BTC", 2000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concentration")

	// Otro activo no computa contra la concentración de BTC.
	assert.NoError(t, l.CanExecute(testOpportunity("ETH", 2000)))
}

func TestDailyCounterResetsOncePerUTCDate(t *testing.T) {
	l, now := testLedger()
	require.NoError(t, l.Register(openPosition("p1", "BTC", 100)))
	require.NoError(t, l.Register(openPosition("p2", "ETH", 100)))
	assert.Equal(t, 2, l.DailyTrades())

	// Cross midnight UTC.
	*now = now.Add(13 * time.Hour)
	assert.Equal(t, 0, l.DailyTrades())

	// Repeated reads within the same date do not reset again.
	require.NoError(t, l.Register(openPosition("p3", "BTC", 100)))
	*now = now.Add(time.Hour)
	assert.Equal(t, 1, l.DailyTrades())
}

func TestSetClockRebasesDailyWindow(t *testing.T) {
	l, now := testLedger()

	// La fecha contable sigue al reloj inyectado, no al del sistema.
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), l.Summary().Date)

	require.NoError(t, l.Register(openPosition("p1", "BTC", 100)))
	assert.Equal(t, 1, l.DailyTrades())

	*now = now.Add(24 * time.Hour)
	assert.Equal(t, 0, l.DailyTrades())
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), l.Summary().Date)
}

func TestMutateSerializesStatusChanges(t *testing.T) {
	l, _ := testLedger()
	require.NoError(t, l.Register(openPosition("p1", "BTC", 100)))

	err := l.Mutate("p1", func(p *domain.Position) error {
		return p.Transition(domain.StatusClosed)
	})
	require.NoError(t, err)

	// Backward transition is refused by the position itself.
	err = l.Mutate("p1", func(p *domain.Position) error {
		return p.Transition(domain.StatusOpen)
	})
	assert.Error(t, err)
}

func TestMutateUnknownPosition(t *testing.T) {
	l, _ := testLedger()
	err := l.Mutate("ghost", func(p *domain.Position) error { return nil })
	assert.Error(t, err)
}

func TestArchiveRequiresTerminalStatus(t *testing.T) {
	l, _ := testLedger()
	require.NoError(t, l.Register(openPosition("p1", "BTC", 100)))

	err := l.Archive("p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}

func TestArchiveMovesToHistoryAndUpdatesSummary(t *testing.T) {
	l, _ := testLedger()
	p := openPosition("p1", "BTC", 100)
	require.NoError(t, l.Register(p))

	require.NoError(t, l.Mutate("p1", func(p *domain.Position) error {
		p.RealizedPnL = 75
		return p.Transition(domain.StatusClosed)
	}))
	require.NoError(t, l.Archive("p1"))

	assert.Equal(t, 0, l.ActiveCount())
	assert.Equal(t, 1, l.HistoryCount())

	s := l.Summary()
	assert.Equal(t, 1, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.InDelta(t, 75, s.NetPnL, 1e-9)
}

func TestBreakerTripsAfterConsecutiveLosses(t *testing.T) {
	l, _ := testLedger()

	for _, id := range []string{"p1", "p2"} {
		p := openPosition(id, "BTC", 100)
		require.NoError(t, l.Register(p))
		require.NoError(t, l.Mutate(id, func(p *domain.Position) error {
			p.RealizedPnL = -50
			return p.Transition(domain.StatusClosed)
		}))
		require.NoError(t, l.Archive(id))
	}

	// Two losses with BreakerMaxLosses=2 start the cooldown.
	err := l.CanExecute(testOpportunity("BTC", 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
}

func TestBreakerCooldownExpires(t *testing.T) {
	l, now := testLedger()

	for _, id := range []string{"p1", "p2"} {
		p := openPosition(id, "BTC", 100)
		require.NoError(t, l.Register(p))
		require.NoError(t, l.Mutate(id, func(p *domain.Position) error {
			p.RealizedPnL = -50
			return p.Transition(domain.StatusClosed)
		}))
		require.NoError(t, l.Archive(id))
	}
	require.Error(t, l.CanExecute(testOpportunity("BTC", 100)))

	*now = now.Add(31 * time.Minute)
	assert.NoError(t, l.CanExecute(testOpportunity("BTC", 100)))
}

func TestDiscardRecordsCancelledInSummary(t *testing.T) {
	l, _ := testLedger()

	l.Discard(domain.Position{ID: "p1", Status: domain.StatusCancelled})
	l.Discard(domain.Position{ID: "p2", Status: domain.StatusError})

	s := l.Summary()
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, 1, s.Errored)
	assert.Equal(t, 2, l.HistoryCount())
}

type recordingStorage struct {
	positions []domain.Position
	summaries []domain.DailySummary
}

func (r *recordingStorage) SaveClosedPosition(ctx context.Context, p domain.Position) error {
	r.positions = append(r.positions, p)
	return nil
}

func (r *recordingStorage) SaveDailySummary(ctx context.Context, d domain.DailySummary) error {
	r.summaries = append(r.summaries, d)
	return nil
}

func (r *recordingStorage) GetHistory(ctx context.Context, from, to time.Time) ([]domain.Position, error) {
	return r.positions, nil
}

func (r *recordingStorage) Close() error { return nil }

func TestArchivePersistsPositionAndRolloverPersistsSummary(t *testing.T) {
	storage := &recordingStorage{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(Config{
		Limits:           testLimits(),
		BreakerMaxLosses: 3,
		BreakerCooldown:  30 * time.Minute,
		MaxDrawdownUSD:   500,
		Storage:          storage,
	})
	l.SetClock(func() time.Time { return now })

	p := openPosition("p1", "BTC", 100)
	require.NoError(t, l.Register(p))
	require.NoError(t, l.Mutate("p1", func(p *domain.Position) error {
		p.RealizedPnL = 20
		return p.Transition(domain.StatusClosed)
	}))
	require.NoError(t, l.Archive("p1"))
	require.Len(t, storage.positions, 1)
	assert.Equal(t, "p1", storage.positions[0].ID)

	now = now.Add(13 * time.Hour) // crosses midnight UTC
	l.DailyTrades()
	require.Len(t, storage.summaries, 1)
	assert.Equal(t, 1, storage.summaries[0].Trades)
}
