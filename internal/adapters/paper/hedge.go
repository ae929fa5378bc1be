package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyhedge/internal/domain"
	"github.com/alejandrodnm/polyhedge/internal/ports"
)

// Hedge es un venue de perpetuos simulado. Los precios se fijan con SetPrice;
// las órdenes market rellenan al precio actual con el spread configurado.
type Hedge struct {
	mu        sync.Mutex
	prices    map[string]float64 // mid por asset
	fundings  map[string]float64
	spreadPct float64
	takerFee  float64
	makerFee  float64
	balance   float64
	spot      bool // venue sin funding ni leverage

	orders    map[string]domain.OrderFill
	positions map[string]*domain.PerpPosition // por asset
	leverages map[string]float64
}

// NewHedge crea el venue con el balance inicial dado.
func NewHedge(balance, spreadPct, takerFee, makerFee float64) *Hedge {
	return &Hedge{
		prices:    make(map[string]float64),
		fundings:  make(map[string]float64),
		spreadPct: spreadPct,
		takerFee:  takerFee,
		makerFee:  makerFee,
		balance:   balance,
		orders:    make(map[string]domain.OrderFill),
		positions: make(map[string]*domain.PerpPosition),
		leverages: make(map[string]float64),
	}
}

// NewSpotHedge crea un venue spot: sin funding (ErrFundingUnavailable) y con
// leverage ignorado.
func NewSpotHedge(balance, spreadPct, takerFee, makerFee float64) *Hedge {
	h := NewHedge(balance, spreadPct, takerFee, makerFee)
	h.spot = true
	return h
}

// SetPrice fija el precio mid de un asset.
func (h *Hedge) SetPrice(asset string, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prices[asset] = price
}

// SetFunding fija la funding rate por periodo de un asset.
func (h *Hedge) SetFunding(asset string, rate float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fundings[asset] = rate
}

func (h *Hedge) GetQuote(ctx context.Context, asset string) (domain.Quote, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mid, ok := h.prices[asset]
	if !ok {
		return domain.Quote{}, fmt.Errorf("paper: no price for %s", asset)
	}
	half := mid * h.spreadPct / 2
	return domain.Quote{
		Venue:     "paper",
		Symbol:    asset,
		Bid:       mid - half,
		Ask:       mid + half,
		Last:      mid,
		Timestamp: time.Now(),
	}, nil
}

func (h *Hedge) GetOrderBook(ctx context.Context, asset string) (domain.OrderBook, error) {
	quote, err := h.GetQuote(ctx, asset)
	if err != nil {
		return domain.OrderBook{}, err
	}
	return domain.OrderBook{
		Bids: []domain.BookEntry{{Price: quote.Bid, Size: 100}},
		Asks: []domain.BookEntry{{Price: quote.Ask, Size: 100}},
	}, nil
}

func (h *Hedge) GetFundingRate(ctx context.Context, asset string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.spot {
		return 0, ports.ErrFundingUnavailable
	}
	return h.fundings[asset], nil
}

// PlaceOrder rellena inmediatamente: market al precio con spread y con
// comisión taker, limit al precio pedido con comisión maker. Actualiza la
// posición neta del asset.
func (h *Hedge) PlaceOrder(ctx context.Context, req domain.HedgeOrderRequest) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mid, ok := h.prices[req.Asset]
	if !ok {
		return "", fmt.Errorf("paper: no price for %s", req.Asset)
	}

	price := req.Price
	rate := h.makerFee
	if req.Type == domain.OrderMarket || price <= 0 {
		rate = h.takerFee
		half := mid * h.spreadPct / 2
		if req.Side == domain.SideLong {
			price = mid + half
		} else {
			price = mid - half
		}
	}

	fees := req.Quantity * price * rate
	if fees > h.balance {
		return "", fmt.Errorf("paper: insufficient balance for fees")
	}
	h.balance -= fees

	signed := req.Quantity
	if req.Side == domain.SideShort {
		signed = -signed
	}
	h.applyFill(req.Asset, signed, price)

	orderID := uuid.New().String()
	h.orders[orderID] = domain.OrderFill{
		OrderID:        orderID,
		State:          domain.OrderStateFilled,
		FilledQuantity: req.Quantity,
		AvgPrice:       price,
		Fees:           fees,
	}
	return orderID, nil
}

func (h *Hedge) applyFill(asset string, signedQty, price float64) {
	pos, ok := h.positions[asset]
	if !ok {
		h.positions[asset] = &domain.PerpPosition{Asset: asset, Size: signedQty, EntryPrice: price}
		return
	}
	newSize := pos.Size + signedQty
	if newSize == 0 {
		delete(h.positions, asset)
		return
	}
	// Promediar entry solo cuando la posición crece en la misma dirección.
	if (pos.Size > 0) == (signedQty > 0) {
		pos.EntryPrice = (pos.EntryPrice*pos.Size + price*signedQty) / newSize
	}
	pos.Size = newSize
}

func (h *Hedge) CancelOrder(ctx context.Context, orderID, asset string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	fill, ok := h.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s not found", orderID)
	}
	if fill.State == domain.OrderStateFilled {
		return nil
	}
	fill.State = domain.OrderStateCancelled
	h.orders[orderID] = fill
	return nil
}

func (h *Hedge) GetOrderStatus(ctx context.Context, orderID, asset string) (domain.OrderFill, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fill, ok := h.orders[orderID]
	if !ok {
		return domain.OrderFill{}, fmt.Errorf("paper: order %s not found", orderID)
	}
	return fill, nil
}

func (h *Hedge) GetPositions(ctx context.Context) ([]domain.PerpPosition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.PerpPosition, 0, len(h.positions))
	for _, p := range h.positions {
		out = append(out, *p)
	}
	return out, nil
}

// ClosePosition cierra la posición del asset al precio actual y realiza el
// P&L contra el balance.
func (h *Hedge) ClosePosition(ctx context.Context, asset string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pos, ok := h.positions[asset]
	if !ok {
		return nil // nada que cerrar, idempotente
	}
	mid, ok := h.prices[asset]
	if !ok {
		return fmt.Errorf("paper: no price for %s", asset)
	}

	h.balance += pos.Size * (mid - pos.EntryPrice)
	delete(h.positions, asset)
	return nil
}

func (h *Hedge) SetLeverage(ctx context.Context, asset string, leverage float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.spot {
		return nil // aceptar y ignorar
	}
	h.leverages[asset] = leverage
	return nil
}

func (h *Hedge) GetBalance(ctx context.Context) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.balance, nil
}
