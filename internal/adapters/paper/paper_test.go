package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyhedge/internal/domain"
	"github.com/alejandrodnm/polyhedge/internal/ports"
)

var (
	_ ports.PredictionMarketPort = (*Prediction)(nil)
	_ ports.HedgeMarketPort      = (*Hedge)(nil)
)

func seedContract() domain.PredictionContract {
	return domain.PredictionContract{
		ID:            "btc-above-62k",
		Asset:         "BTC",
		TargetPrice:   62000,
		ExpiresAt:     time.Now().Add(24 * time.Hour),
		UpPrice:       0.55,
		DownPrice:     0.40,
		UpLiquidity:   10000,
		DownLiquidity: 10000,
	}
}

func TestPredictionMarketOrderFillsAtSidePrice(t *testing.T) {
	p := NewPrediction(10000, 0.002)
	p.SeedContract(seedContract())

	orderID, err := p.PlaceOrder(context.Background(), domain.PredictionOrderRequest{
		ContractID: "btc-above-62k",
		Side:       domain.SideDown,
		Type:       domain.OrderMarket,
		Quantity:   100,
	})
	require.NoError(t, err)

	fill, err := p.GetOrderStatus(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, fill.Filled())
	assert.Equal(t, 0.40, fill.AvgPrice)
	assert.InDelta(t, 100*0.40*0.002, fill.Fees, 1e-9)

	balance, err := p.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000-40-0.08, balance, 1e-9)
}

func TestPredictionRejectsOverdraft(t *testing.T) {
	p := NewPrediction(10, 0.002)
	p.SeedContract(seedContract())

	_, err := p.PlaceOrder(context.Background(), domain.PredictionOrderRequest{
		ContractID: "btc-above-62k",
		Side:       domain.SideDown,
		Type:       domain.OrderMarket,
		Quantity:   1000,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestHedgeLongMarketOrderPaysHalfSpread(t *testing.T) {
	h := NewHedge(1e6, 0.001, 0.0003, 0.0002)
	h.SetPrice("BTC", 60000)

	orderID, err := h.PlaceOrder(context.Background(), domain.HedgeOrderRequest{
		Asset:    "BTC",
		Side:     domain.SideLong,
		Type:     domain.OrderMarket,
		Quantity: 0.5,
	})
	require.NoError(t, err)

	fill, err := h.GetOrderStatus(context.Background(), orderID, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 60030, fill.AvgPrice, 1e-9) // mid + half spread

	positions, err := h.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.5, positions[0].Size, 1e-9)
}

func TestHedgeLimitOrdersPayMakerFee(t *testing.T) {
	h := NewHedge(1e6, 0.001, 0.0003, 0.0002)
	h.SetPrice("BTC", 60000)

	limitID, err := h.PlaceOrder(context.Background(), domain.HedgeOrderRequest{
		Asset:    "BTC",
		Side:     domain.SideLong,
		Type:     domain.OrderLimit,
		Price:    59990,
		Quantity: 1,
	})
	require.NoError(t, err)

	limitFill, err := h.GetOrderStatus(context.Background(), limitID, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 59990*0.0002, limitFill.Fees, 1e-9)

	marketID, err := h.PlaceOrder(context.Background(), domain.HedgeOrderRequest{
		Asset:    "BTC",
		Side:     domain.SideLong,
		Type:     domain.OrderMarket,
		Quantity: 1,
	})
	require.NoError(t, err)

	marketFill, err := h.GetOrderStatus(context.Background(), marketID, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 60030*0.0003, marketFill.Fees, 1e-9)
}

func TestHedgeClosePositionRealizesPnL(t *testing.T) {
	h := NewHedge(1000, 0, 0, 0)
	h.SetPrice("BTC", 60000)

	_, err := h.PlaceOrder(context.Background(), domain.HedgeOrderRequest{
		Asset: "BTC", Side: domain.SideLong, Type: domain.OrderMarket, Quantity: 0.1,
	})
	require.NoError(t, err)

	h.SetPrice("BTC", 61000)
	require.NoError(t, h.ClosePosition(context.Background(), "BTC"))

	balance, err := h.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1100, balance, 1e-9) // 0.1 * 1000 de ganancia

	positions, err := h.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	// Segundo close: no-op, no double-unwind.
	require.NoError(t, h.ClosePosition(context.Background(), "BTC"))
}

func TestHedgeShortsReduceNetSize(t *testing.T) {
	h := NewHedge(1e6, 0, 0, 0)
	h.SetPrice("ETH", 3000)

	_, err := h.PlaceOrder(context.Background(), domain.HedgeOrderRequest{
		Asset: "ETH", Side: domain.SideLong, Type: domain.OrderMarket, Quantity: 2,
	})
	require.NoError(t, err)
	_, err = h.PlaceOrder(context.Background(), domain.HedgeOrderRequest{
		Asset: "ETH", Side: domain.SideShort, Type: domain.OrderMarket, Quantity: 2,
	})
	require.NoError(t, err)

	positions, err := h.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions) // flat
}

func TestSpotHedgeHasNoFunding(t *testing.T) {
	h := NewSpotHedge(1e6, 0.001, 0.001, 0.0005)
	h.SetPrice("BTC", 60000)

	_, err := h.GetFundingRate(context.Background(), "BTC")
	assert.True(t, errors.Is(err, ports.ErrFundingUnavailable))

	// SetLeverage se acepta y se ignora.
	assert.NoError(t, h.SetLeverage(context.Background(), "BTC", 5))
}
