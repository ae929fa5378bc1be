package domain

import (
	"fmt"
	"time"
)

// Side identifies the direction of a leg. Prediction legs use UP/DOWN,
// hedge legs use LONG/SHORT.
type Side string

const (
	SideUp    Side = "UP"
	SideDown  Side = "DOWN"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the closing side for a leg.
func (s Side) Opposite() Side {
	switch s {
	case SideUp:
		return SideDown
	case SideDown:
		return SideUp
	case SideLong:
		return SideShort
	default:
		return SideLong
	}
}

// OrderType is the order style requested on a venue.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// Quote is an immutable snapshot of a hedge instrument's top of book.
type Quote struct {
	Venue     string
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Volume24h float64
	Timestamp time.Time
}

// Mid returns the midpoint between bid and ask.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns the bid-ask spread.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// SpreadPct returns the spread as a percentage of mid.
func (q Quote) SpreadPct() float64 {
	mid := q.Mid()
	if mid == 0 {
		return 0
	}
	return q.Spread() / mid * 100
}

// PredictionContract is a binary contract that settles to $1 on the winning
// side at expiry. UpPrice and DownPrice are quoted independently and need
// not sum to 1.
type PredictionContract struct {
	ID            string
	Asset         string // BTC, ETH, ...
	Question      string
	TargetPrice   float64
	ExpiresAt     time.Time
	UpPrice       float64 // in [0,1]
	DownPrice     float64 // in [0,1]
	UpLiquidity   float64 // USD available on the UP side
	DownLiquidity float64
	Volume24h     float64
	OpenInterest  float64
}

// Validate checks the side-price invariant.
func (c PredictionContract) Validate() error {
	if c.UpPrice < 0 || c.UpPrice > 1 || c.DownPrice < 0 || c.DownPrice > 1 {
		return fmt.Errorf("contract %s: side prices must be in [0,1] (up=%.4f down=%.4f)",
			c.ID, c.UpPrice, c.DownPrice)
	}
	return nil
}

// HoursToExpiry returns the hours remaining until expiry as of now.
// Negative or zero means expired.
func (c PredictionContract) HoursToExpiry(now time.Time) float64 {
	return c.ExpiresAt.Sub(now).Hours()
}

// Expired reports whether the contract is past expiry as of now.
func (c PredictionContract) Expired(now time.Time) bool {
	return c.HoursToExpiry(now) <= 0
}

// SidePrice returns the quoted price for the given prediction side.
func (c PredictionContract) SidePrice(side Side) float64 {
	if side == SideUp {
		return c.UpPrice
	}
	return c.DownPrice
}

// SideLiquidity returns the available liquidity for the given prediction side.
func (c PredictionContract) SideLiquidity(side Side) float64 {
	if side == SideUp {
		return c.UpLiquidity
	}
	return c.DownLiquidity
}
