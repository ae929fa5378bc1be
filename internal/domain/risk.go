package domain

import "time"

// RiskLimits bounds what the execution engine may do. Passed explicitly into
// constructors; there is no global configuration.
type RiskLimits struct {
	MaxConcurrentPositions   int
	MaxDailyTrades           int
	MaxPositionSizeUSD       float64
	MaxAssetConcentrationUSD float64 // sum of hedge notionals per asset
	FundingRateThreshold     float64 // per-period; execution rejects at 2x
}

// CircuitBreaker tracks consecutive losing closes and enforces trading pauses.
type CircuitBreaker struct {
	ConsecutiveLosses int
	MaxLosses         int
	CooldownUntil     time.Time
	CooldownDuration  time.Duration
	TotalPnL          float64
	MaxDrawdown       float64 // negative dollar amount threshold
	Triggered         bool
	TriggeredReason   string
}

// IsOpen returns true if trading is allowed (circuit not triggered).
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	if cb.Triggered {
		return false
	}
	return !now.Before(cb.CooldownUntil)
}

// RecordClose feeds a closed position's net P&L into the breaker. A run of
// losses starts a cooldown; breaching the drawdown bound trips it for good.
func (cb *CircuitBreaker) RecordClose(pnl float64, now time.Time) {
	cb.TotalPnL += pnl
	if pnl >= 0 {
		cb.ConsecutiveLosses = 0
		return
	}
	cb.ConsecutiveLosses++
	if cb.MaxLosses > 0 && cb.ConsecutiveLosses >= cb.MaxLosses {
		cb.CooldownUntil = now.Add(cb.CooldownDuration)
		cb.ConsecutiveLosses = 0
		cb.TriggeredReason = "consecutive losses"
	}
	if cb.MaxDrawdown < 0 && cb.TotalPnL < cb.MaxDrawdown {
		cb.Triggered = true
		cb.TriggeredReason = "max drawdown exceeded"
	}
}

// DailySummary is the per-UTC-day aggregate the ledger produces when the
// date rolls over.
type DailySummary struct {
	Date      time.Time // midnight UTC
	Trades    int
	Wins      int
	Losses    int
	NetPnL    float64
	FeesPaid  float64
	Cancelled int
	Errored   int
}
