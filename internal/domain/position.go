package domain

import (
	"fmt"
	"time"
)

// PositionStatus is the lifecycle state of an executed position.
//
// The machine only moves forward:
//
//	PENDING → OPEN | PARTIAL | CANCELLED | ERROR
//	OPEN    → PARTIAL | CLOSED | CANCELLED | ERROR
//	PARTIAL → OPEN | CLOSED | CANCELLED | ERROR
//
// CLOSED, CANCELLED and ERROR are terminal. PARTIAL is a transient state
// while one leg is being retried or unwound; it must always resolve.
type PositionStatus string

const (
	StatusPending   PositionStatus = "PENDING"
	StatusOpen      PositionStatus = "OPEN"
	StatusPartial   PositionStatus = "PARTIAL"
	StatusClosed    PositionStatus = "CLOSED"
	StatusCancelled PositionStatus = "CANCELLED"
	StatusError     PositionStatus = "ERROR"
)

// Terminal reports whether no further transition is allowed from s.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled || s == StatusError
}

// CanTransitionTo reports whether s → next is a legal forward move.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	if s.Terminal() || s == next {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusOpen || next == StatusPartial ||
			next == StatusCancelled || next == StatusError
	case StatusOpen, StatusPartial:
		return next == StatusOpen || next == StatusPartial ||
			next == StatusClosed || next == StatusCancelled || next == StatusError
	}
	return false
}

// Position is the mutable entity produced by executing an opportunity.
// It is created by the execution engine and afterwards mutated only through
// the ledger's serialized accessor.
type Position struct {
	ID            string
	OpportunityID string
	Status        PositionStatus

	// Identifiers kept for correct rollback and monitoring. ContractID is the
	// prediction venue's market id, never the opportunity id.
	Asset      string
	ContractID string

	// Prediction leg.
	PredictionOrderID    string
	PredictionSide       Side
	PredictionEntryPrice float64
	PredictionQuantity   float64
	PredictionFees       float64

	// Hedge leg.
	HedgeVenue      string
	HedgeSymbol     string
	HedgeOrderID    string
	HedgeSide       Side
	HedgeEntryPrice float64
	HedgeQuantity   float64
	HedgeFees       float64
	Leverage        float64

	// Risk bounds set when the position opens.
	StopLossPrice   float64
	TakeProfitPrice float64
	MaxLossUSD      float64

	OpenedAt    time.Time
	ClosedAt    *time.Time
	ExpiresAt   time.Time
	CloseReason string

	RealizedPnL   float64
	UnrealizedPnL float64
}

// Transition moves the position to next, enforcing the forward-only machine.
func (p *Position) Transition(next PositionStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("position %s: illegal transition %s → %s", p.ID, p.Status, next)
	}
	p.Status = next
	return nil
}

// IsOpen reports whether the position still carries live exposure.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen || p.Status == StatusPartial
}

// TotalFees is the sum of both legs' fees.
func (p *Position) TotalFees() float64 {
	return p.PredictionFees + p.HedgeFees
}

// NetPnL is realized plus unrealized P&L minus fees.
func (p *Position) NetPnL() float64 {
	return p.RealizedPnL + p.UnrealizedPnL - p.TotalFees()
}

// HedgeNotional is the current hedge-leg notional at entry price.
func (p *Position) HedgeNotional() float64 {
	return p.HedgeQuantity * p.HedgeEntryPrice
}

// DurationHours is the position's lifetime; open positions measure to now.
func (p *Position) DurationHours(now time.Time) float64 {
	end := now
	if p.ClosedAt != nil {
		end = *p.ClosedAt
	}
	return end.Sub(p.OpenedAt).Hours()
}

// HedgePnLAt returns the hedge leg's P&L at the given mark price, signed by
// side.
func (p *Position) HedgePnLAt(price float64) float64 {
	if p.HedgeSide == SideLong {
		return p.HedgeQuantity * (price - p.HedgeEntryPrice)
	}
	return p.HedgeQuantity * (p.HedgeEntryPrice - price)
}
