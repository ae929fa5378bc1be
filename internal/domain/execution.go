package domain

import "time"

// ExecutionMode selects how aggressively the engine works both legs.
type ExecutionMode string

const (
	ModeAggressive ExecutionMode = "AGGRESSIVE" // market orders, short budget
	ModePassive    ExecutionMode = "PASSIVE"    // post-only limits, long budget
	ModeAdaptive   ExecutionMode = "ADAPTIVE"   // market near expiry / high profit
	ModeTimeSliced ExecutionMode = "TIMESLICED" // TWAP-style chunked entry
)

// ParseExecutionMode maps a config string to a mode, defaulting to adaptive.
func ParseExecutionMode(s string) ExecutionMode {
	switch ExecutionMode(s) {
	case ModeAggressive, ModePassive, ModeAdaptive, ModeTimeSliced:
		return ExecutionMode(s)
	default:
		return ModeAdaptive
	}
}

// ExecutionPlan is the concrete recipe for entering both legs. It is a fixed
// value type, built once per execution and never persisted.
type ExecutionPlan struct {
	Mode             ExecutionMode
	UseMarketOrders  bool
	PostOnly         bool
	PredictionChunks int
	HedgeChunks      int
	Leverage         float64
	TimeBudget       time.Duration
}

// OrderState is the venue-reported lifecycle of a single order.
type OrderState string

const (
	OrderStateOpen      OrderState = "OPEN"
	OrderStatePartial   OrderState = "PARTIAL"
	OrderStateFilled    OrderState = "FILLED"
	OrderStateCancelled OrderState = "CANCELLED"
	OrderStateRejected  OrderState = "REJECTED"
)

// OrderFill is a venue order-status snapshot with explicit fields.
type OrderFill struct {
	OrderID        string
	State          OrderState
	FilledQuantity float64
	AvgPrice       float64
	Fees           float64
}

// Filled reports whether the order is completely filled.
func (f OrderFill) Filled() bool {
	return f.State == OrderStateFilled
}

// PredictionOrderRequest is sent to the prediction venue port.
// Price 0 means a market order.
type PredictionOrderRequest struct {
	ContractID string
	Side       Side // UP or DOWN
	Type       OrderType
	Quantity   float64
	Price      float64
}

// HedgeOrderRequest is sent to the hedge venue port.
// Price 0 means a market order; Leverage 0 means the venue default.
type HedgeOrderRequest struct {
	Asset      string
	Side       Side // LONG or SHORT
	Type       OrderType
	Quantity   float64
	Price      float64
	Leverage   float64
	ReduceOnly bool
	PostOnly   bool
}

// PerpPosition is an open position reported by the hedge venue.
// Size is signed: positive long, negative short.
type PerpPosition struct {
	Asset      string
	Size       float64
	EntryPrice float64
}

// ExecutionStats aggregates engine performance counters.
type ExecutionStats struct {
	AvgExecutionTime time.Duration
	AvgSlippage      float64 // mean relative entry drift across both legs
	SuccessRate      float64 // opened / attempted
	ActiveCount      int
	HistoryCount     int
}
