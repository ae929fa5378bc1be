package domain

import "time"

// Opportunity is the immutable result of one detection pass over a
// contract/quote pair. Re-evaluation produces a new Opportunity; nothing
// mutates one after creation.
type Opportunity struct {
	ID       string
	Contract PredictionContract
	Hedge    Quote

	// Prediction leg as sized at detection time.
	PredictionSide     Side // UP or DOWN
	PredictionPrice    float64
	PredictionQuantity float64

	// Hedge leg as sized at detection time.
	HedgeSide     Side // LONG or SHORT
	HedgePrice    float64
	HedgeQuantity float64

	// Profit model. ExpectedProfitUSD is the ranking value and always equals
	// probability*win - (1-probability)*loss - fees as computed at detection.
	ExpectedProfitUSD float64
	ExpectedProfitPct float64
	BreakevenPrice    float64
	MaxRiskUSD        float64

	ProbabilityOfProfit float64 // in [0,1]
	SharpeRatio         float64 // 0 when MaxRiskUSD is 0
	FundingRate         float64 // per-period rate at detection, 0 on spot venues

	DetectedAt time.Time
	ExpiresAt  time.Time // copied from the contract
}

// RankKey is the sort key for scan output: risk-weighted expected profit.
func (o Opportunity) RankKey() float64 {
	return o.ExpectedProfitUSD * o.ProbabilityOfProfit
}

// RiskRewardRatio degenerates to 0 when there is no modeled risk.
func (o Opportunity) RiskRewardRatio() float64 {
	if o.MaxRiskUSD == 0 {
		return 0
	}
	return o.ExpectedProfitUSD / o.MaxRiskUSD
}

// PredictionCapital is the stake the prediction leg requires.
func (o Opportunity) PredictionCapital() float64 {
	return o.PredictionQuantity * o.PredictionPrice
}

// HedgeNotional is the full notional of the hedge leg before leverage.
func (o Opportunity) HedgeNotional() float64 {
	return o.HedgeQuantity * o.HedgePrice
}

// HedgeCapital is the margin the hedge leg requires at the given leverage.
func (o Opportunity) HedgeCapital(leverage float64) float64 {
	if leverage < 1 {
		leverage = 1
	}
	return o.HedgeNotional() / leverage
}

// Expired reports whether the underlying contract is past expiry as of now.
func (o Opportunity) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
