package executor

import (
	"math"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// PlannerConfig parametriza la construcción de planes de ejecución.
type PlannerConfig struct {
	DefaultLeverage float64
	MaxLeverage     float64
	HighProfitPct   float64 // adaptive: above this, pay the spread
	TimeBudget      time.Duration
}

// Chunk-count bounds for time-sliced entries.
const (
	minChunks        = 2
	maxChunks        = 10
	chunkNotionalUSD = 1000 // one chunk per this much hedge notional
)

// BuildPlan maps an opportunity and a mode to a concrete plan. Pure function,
// no I/O: everything it needs travels in through the arguments.
func BuildPlan(opp domain.Opportunity, mode domain.ExecutionMode, cfg PlannerConfig, now time.Time) domain.ExecutionPlan {
	plan := domain.ExecutionPlan{
		Mode:             mode,
		Leverage:         cfg.DefaultLeverage,
		PredictionChunks: 1,
		HedgeChunks:      1,
		TimeBudget:       cfg.TimeBudget,
	}

	switch mode {
	case domain.ModeAggressive:
		plan.UseMarketOrders = true
		plan.TimeBudget = cfg.TimeBudget / 2

	case domain.ModePassive:
		plan.PostOnly = true
		plan.TimeBudget = cfg.TimeBudget * 2

	case domain.ModeTimeSliced:
		chunks := int(math.Ceil(opp.HedgeNotional() / chunkNotionalUSD))
		if chunks < minChunks {
			chunks = minChunks
		}
		if chunks > maxChunks {
			chunks = maxChunks
		}
		plan.PredictionChunks = chunks
		plan.HedgeChunks = chunks
		plan.TimeBudget = cfg.TimeBudget * 2

	default: // adaptive
		hoursLeft := opp.Contract.HoursToExpiry(now)
		urgent := hoursLeft < 2
		richEnough := opp.ExpectedProfitPct > cfg.HighProfitPct

		if urgent || richEnough {
			plan.UseMarketOrders = true
			if richEnough {
				// El edge paga apalancarse algo más, dentro del límite.
				plan.Leverage = math.Min(cfg.DefaultLeverage*1.5, cfg.MaxLeverage)
			}
		}
	}

	if plan.Leverage <= 0 {
		plan.Leverage = 1
	}
	return plan
}
