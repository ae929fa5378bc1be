package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

func plannerConfig() PlannerConfig {
	return PlannerConfig{
		DefaultLeverage: 5,
		MaxLeverage:     10,
		HighProfitPct:   5.0,
		TimeBudget:      time.Minute,
	}
}

func plannerOpportunity(hoursToExpiry float64, profitPct, hedgeNotional float64) domain.Opportunity {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Opportunity{
		Contract: domain.PredictionContract{
			ID:        "c1",
			Asset:     "BTC",
			ExpiresAt: now.Add(time.Duration(hoursToExpiry * float64(time.Hour))),
		},
		ExpectedProfitPct: profitPct,
		HedgePrice:        60000,
		HedgeQuantity:     hedgeNotional / 60000,
		DetectedAt:        now,
	}
}

func plannerNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestBuildPlanAggressive(t *testing.T) {
	plan := BuildPlan(plannerOpportunity(24, 2, 3000), domain.ModeAggressive, plannerConfig(), plannerNow())

	assert.True(t, plan.UseMarketOrders)
	assert.False(t, plan.PostOnly)
	assert.Equal(t, 30*time.Second, plan.TimeBudget)
	assert.Equal(t, 1, plan.PredictionChunks)
}

func TestBuildPlanPassive(t *testing.T) {
	plan := BuildPlan(plannerOpportunity(24, 2, 3000), domain.ModePassive, plannerConfig(), plannerNow())

	assert.False(t, plan.UseMarketOrders)
	assert.True(t, plan.PostOnly)
	assert.Equal(t, 2*time.Minute, plan.TimeBudget)
}

func TestBuildPlanAdaptiveCalmMarketUsesLimits(t *testing.T) {
	plan := BuildPlan(plannerOpportunity(24, 2, 3000), domain.ModeAdaptive, plannerConfig(), plannerNow())

	assert.False(t, plan.UseMarketOrders)
	assert.Equal(t, 5.0, plan.Leverage)
	assert.Equal(t, time.Minute, plan.TimeBudget)
}

func TestBuildPlanAdaptiveNearExpiryGoesMarket(t *testing.T) {
	plan := BuildPlan(plannerOpportunity(1.5, 2, 3000), domain.ModeAdaptive, plannerConfig(), plannerNow())

	assert.True(t, plan.UseMarketOrders)
	assert.Equal(t, 5.0, plan.Leverage) // urgency alone does not add leverage
}

func TestBuildPlanAdaptiveHighProfitAddsLeverage(t *testing.T) {
	plan := BuildPlan(plannerOpportunity(24, 8, 3000), domain.ModeAdaptive, plannerConfig(), plannerNow())

	assert.True(t, plan.UseMarketOrders)
	assert.Equal(t, 7.5, plan.Leverage) // 5 * 1.5, below the max of 10
}

func TestBuildPlanAdaptiveLeverageCappedAtMax(t *testing.T) {
	cfg := plannerConfig()
	cfg.DefaultLeverage = 8

	plan := BuildPlan(plannerOpportunity(24, 8, 3000), domain.ModeAdaptive, cfg, plannerNow())
	assert.Equal(t, 10.0, plan.Leverage)
}

func TestBuildPlanTimeSlicedChunksScaleWithNotional(t *testing.T) {
	cfg := plannerConfig()

	small := BuildPlan(plannerOpportunity(24, 2, 500), domain.ModeTimeSliced, cfg, plannerNow())
	assert.Equal(t, minChunks, small.PredictionChunks)

	medium := BuildPlan(plannerOpportunity(24, 2, 4500), domain.ModeTimeSliced, cfg, plannerNow())
	assert.Equal(t, 5, medium.PredictionChunks)
	assert.Equal(t, 5, medium.HedgeChunks)

	huge := BuildPlan(plannerOpportunity(24, 2, 500000), domain.ModeTimeSliced, cfg, plannerNow())
	assert.Equal(t, maxChunks, huge.PredictionChunks)
}

func TestBuildPlanIsPure(t *testing.T) {
	opp := plannerOpportunity(24, 2, 3000)
	cfg := plannerConfig()
	now := plannerNow()

	a := BuildPlan(opp, domain.ModeAdaptive, cfg, now)
	b := BuildPlan(opp, domain.ModeAdaptive, cfg, now)
	assert.Equal(t, a, b)
}
