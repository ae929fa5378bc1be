package ports

import (
	"context"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// PredictionMarketPort is the capability set the engine needs from the
// prediction-contract venue. Wire clients implementing it live outside this
// module.
type PredictionMarketPort interface {
	// ListContracts returns the active binary contracts for an asset.
	ListContracts(ctx context.Context, asset string) ([]domain.PredictionContract, error)

	// GetOrderBook returns the book for one side of a contract.
	GetOrderBook(ctx context.Context, contractID string, side domain.Side) (domain.OrderBook, error)

	// PlaceOrder submits an order and returns the venue order id.
	PlaceOrder(ctx context.Context, req domain.PredictionOrderRequest) (string, error)

	// CancelOrder cancels an order by venue id. Best effort.
	CancelOrder(ctx context.Context, orderID string) error

	// GetOrderStatus returns the current fill snapshot for an order.
	GetOrderStatus(ctx context.Context, orderID string) (domain.OrderFill, error)

	// GetBalance returns the available collateral in USD.
	GetBalance(ctx context.Context) (float64, error)
}
