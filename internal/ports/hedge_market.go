package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// ErrFundingUnavailable is returned by GetFundingRate on venues without a
// perpetual funding mechanism (plain spot). Callers treat it as zero funding.
var ErrFundingUnavailable = errors.New("funding rate not available on this venue")

// HedgeMarketPort is the capability set the engine needs from the hedge
// venue (spot or perpetual). Venue differences (funding, leverage, fee
// schedule) surface through this interface, not through parallel code paths.
type HedgeMarketPort interface {
	// GetQuote returns the current top-of-book snapshot for an asset.
	GetQuote(ctx context.Context, asset string) (domain.Quote, error)

	// GetOrderBook returns the full book for an asset.
	GetOrderBook(ctx context.Context, asset string) (domain.OrderBook, error)

	// GetFundingRate returns the current per-period funding rate, or
	// ErrFundingUnavailable on spot venues.
	GetFundingRate(ctx context.Context, asset string) (float64, error)

	// PlaceOrder submits an order and returns the venue order id.
	PlaceOrder(ctx context.Context, req domain.HedgeOrderRequest) (string, error)

	// CancelOrder cancels an order by venue id. Best effort.
	CancelOrder(ctx context.Context, orderID, asset string) error

	// GetOrderStatus returns the current fill snapshot for an order.
	GetOrderStatus(ctx context.Context, orderID, asset string) (domain.OrderFill, error)

	// GetPositions returns all open positions on the venue.
	GetPositions(ctx context.Context) ([]domain.PerpPosition, error)

	// ClosePosition closes the venue position for an asset with a
	// reduce-only order.
	ClosePosition(ctx context.Context, asset string) error

	// SetLeverage sets the leverage for an asset. Venues without leverage
	// accept and ignore it.
	SetLeverage(ctx context.Context, asset string, leverage float64) error

	// GetBalance returns the available margin balance in USD.
	GetBalance(ctx context.Context) (float64, error)
}
