// Package paper contiene venues simulados para probar el motor completo sin
// tocar dinero real. Los fills son inmediatos al precio pedido (o al precio
// del lado, para órdenes market) con las fees configuradas.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// Prediction es un venue de contratos de predicción simulado.
type Prediction struct {
	mu        sync.Mutex
	contracts map[string][]domain.PredictionContract // por asset
	byID      map[string]domain.PredictionContract
	orders    map[string]domain.OrderFill
	balance   float64
	feeRate   float64
}

// NewPrediction crea el venue con el balance inicial y la fee rate dados.
func NewPrediction(balance, feeRate float64) *Prediction {
	return &Prediction{
		contracts: make(map[string][]domain.PredictionContract),
		byID:      make(map[string]domain.PredictionContract),
		orders:    make(map[string]domain.OrderFill),
		balance:   balance,
		feeRate:   feeRate,
	}
}

// SeedContract registra un contrato simulado.
func (p *Prediction) SeedContract(c domain.PredictionContract) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contracts[c.Asset] = append(p.contracts[c.Asset], c)
	p.byID[c.ID] = c
}

func (p *Prediction) ListContracts(ctx context.Context, asset string) ([]domain.PredictionContract, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PredictionContract, len(p.contracts[asset]))
	copy(out, p.contracts[asset])
	return out, nil
}

// GetOrderBook sintetiza un book simétrico alrededor del precio del lado,
// con la liquidez declarada por el contrato.
func (p *Prediction) GetOrderBook(ctx context.Context, contractID string, side domain.Side) (domain.OrderBook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.byID[contractID]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("paper: contract %s not found", contractID)
	}

	price := c.SidePrice(side)
	liquidity := c.SideLiquidity(side)
	return domain.OrderBook{
		Bids: []domain.BookEntry{{Price: price - 0.01, Size: liquidity / 2}, {Price: price - 0.02, Size: liquidity / 2}},
		Asks: []domain.BookEntry{{Price: price + 0.01, Size: liquidity / 2}, {Price: price + 0.02, Size: liquidity / 2}},
	}, nil
}

// PlaceOrder rellena la orden inmediatamente. Market usa el precio del lado;
// limit usa el precio pedido.
func (p *Prediction) PlaceOrder(ctx context.Context, req domain.PredictionOrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.byID[req.ContractID]
	if !ok {
		return "", fmt.Errorf("paper: contract %s not found", req.ContractID)
	}

	price := req.Price
	if req.Type == domain.OrderMarket || price <= 0 {
		price = c.SidePrice(req.Side)
	}

	cost := req.Quantity * price
	fees := cost * p.feeRate
	if cost+fees > p.balance {
		return "", fmt.Errorf("paper: insufficient balance ($%.2f < $%.2f)", p.balance, cost+fees)
	}
	p.balance -= cost + fees

	orderID := uuid.New().String()
	p.orders[orderID] = domain.OrderFill{
		OrderID:        orderID,
		State:          domain.OrderStateFilled,
		FilledQuantity: req.Quantity,
		AvgPrice:       price,
		Fees:           fees,
	}
	return orderID, nil
}

func (p *Prediction) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fill, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s not found", orderID)
	}
	if fill.State == domain.OrderStateFilled {
		return nil // ya rellenada, cancel es un no-op
	}
	fill.State = domain.OrderStateCancelled
	p.orders[orderID] = fill
	return nil
}

func (p *Prediction) GetOrderStatus(ctx context.Context, orderID string) (domain.OrderFill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fill, ok := p.orders[orderID]
	if !ok {
		return domain.OrderFill{}, fmt.Errorf("paper: order %s not found", orderID)
	}
	return fill, nil
}

func (p *Prediction) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}
