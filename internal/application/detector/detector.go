package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyhedge/internal/domain"
	"github.com/alejandrodnm/polyhedge/internal/ports"
)

// Funding settles every 8 hours on perpetual venues.
const (
	fundingPeriodHours    = 8
	fundingPeriodsPerYear = (24 / fundingPeriodHours) * 365
)

// biasedSidePriceCeiling: cuando el funding va en contra del lado natural del
// hedge, solo aceptamos la apuesta si el lado de predicción cotiza barato.
const biasedSidePriceCeiling = 0.60

// Config parametriza la detección. Se pasa explícitamente al constructor.
type Config struct {
	MinProfitUSD         float64
	MaxPositionSizeUSD   float64
	PredictionFraction   float64 // share of max size for the prediction stake
	HedgeFraction        float64 // share of max size for hedge margin
	LiquidityFraction    float64 // max share of the chosen side's liquidity
	MaxSidePrice         float64 // sides quoted above this are low-profit
	MinTargetDistancePct float64 // closer than this to target is a coin flip
	FundingRateThreshold float64
	PredictionFeeRate    float64
	HedgeTakerFeeRate    float64
	DefaultLeverage      float64
	RiskFreeRate         float64
	Workers              int
	RequestsPerSecond    float64
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		MinProfitUSD:         50,
		MaxPositionSizeUSD:   5000,
		PredictionFraction:   0.4,
		HedgeFraction:        0.6,
		LiquidityFraction:    0.1,
		MaxSidePrice:         0.90,
		MinTargetDistancePct: 1.0,
		FundingRateThreshold: 0.01,
		PredictionFeeRate:    0.002,
		HedgeTakerFeeRate:    0.0003,
		DefaultLeverage:      5,
		RiskFreeRate:         0.05,
		RequestsPerSecond:    5,
	}
}

// Detector pairs prediction contracts with a hedge quote and emits ranked
// opportunities. Detection is a pure function of its inputs: the same
// contract/quote/funding triple always produces the same numbers (only the
// generated id and timestamp differ).
type Detector struct {
	prediction ports.PredictionMarketPort
	hedge      ports.HedgeMarketPort
	cfg        Config
	limiter    *rate.Limiter
	now        func() time.Time
}

// New crea un Detector con todas las dependencias inyectadas.
func New(prediction ports.PredictionMarketPort, hedge ports.HedgeMarketPort, cfg Config) *Detector {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	return &Detector{
		prediction: prediction,
		hedge:      hedge,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		now:        time.Now,
	}
}

// SetClock replaces the time source (tests).
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

// Scan evaluates every active contract for every asset and returns
// opportunities ordered by expected profit × probability of profit.
// A fetch failure skips the affected asset and never aborts the scan.
func (d *Detector) Scan(ctx context.Context, assets []string) ([]domain.Opportunity, error) {
	start := d.now()
	var opportunities []domain.Opportunity

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contracts, quote, funding, err := d.fetchAssetData(ctx, asset)
		if err != nil {
			slog.Warn("detector: skipping asset", "asset", asset, "err", err)
			continue
		}
		if len(contracts) == 0 {
			slog.Debug("detector: no active contracts", "asset", asset)
			continue
		}

		opps := analyzeContractsConcurrent(ctx, d, contracts, quote, funding, d.cfg.Workers)
		opportunities = append(opportunities, opps...)
	}

	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].RankKey() > opportunities[j].RankKey()
	})

	slog.Info("detector: scan complete",
		"assets", len(assets),
		"opportunities", len(opportunities),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return opportunities, nil
}

// fetchAssetData gathers contracts, hedge quote and funding for one asset.
// Every venue call passes through the rate limiter.
func (d *Detector) fetchAssetData(ctx context.Context, asset string) ([]domain.PredictionContract, domain.Quote, float64, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, domain.Quote{}, 0, err
	}
	contracts, err := d.prediction.ListContracts(ctx, asset)
	if err != nil {
		return nil, domain.Quote{}, 0, fmt.Errorf("list contracts: %w", err)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, domain.Quote{}, 0, err
	}
	quote, err := d.hedge.GetQuote(ctx, asset)
	if err != nil {
		return nil, domain.Quote{}, 0, fmt.Errorf("hedge quote: %w", err)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, domain.Quote{}, 0, err
	}
	funding, err := d.hedge.GetFundingRate(ctx, asset)
	if err != nil {
		if !errors.Is(err, ports.ErrFundingUnavailable) {
			return nil, domain.Quote{}, 0, fmt.Errorf("funding rate: %w", err)
		}
		funding = 0 // spot venue
	}

	return contracts, quote, funding, nil
}

// Analyze evaluates one contract against the hedge quote. It returns an
// error (not an opportunity) for every reject reason; callers log at debug
// and move on.
func (d *Detector) Analyze(contract domain.PredictionContract, quote domain.Quote, funding float64) (domain.Opportunity, error) {
	now := d.now()

	if err := contract.Validate(); err != nil {
		return domain.Opportunity{}, err
	}

	hours := contract.HoursToExpiry(now)
	if hours <= 0 {
		return domain.Opportunity{}, fmt.Errorf("contract %s expired", contract.ID)
	}

	mid := quote.Mid()
	if mid <= 0 {
		return domain.Opportunity{}, fmt.Errorf("contract %s: hedge mid is zero", contract.ID)
	}

	fundingPeriods := math.Floor(hours / fundingPeriodHours)
	fundingCostPct := funding * fundingPeriods
	if fundingCostPct < -d.cfg.FundingRateThreshold {
		return domain.Opportunity{}, fmt.Errorf("contract %s: funding cost %.4f%% too negative", contract.ID, fundingCostPct*100)
	}

	predictionSide, hedgeSide, err := d.selectSides(mid, contract, funding)
	if err != nil {
		return domain.Opportunity{}, err
	}

	sidePrice := contract.SidePrice(predictionSide)
	if sidePrice <= 0 {
		return domain.Opportunity{}, fmt.Errorf("contract %s: %s side unquoted", contract.ID, predictionSide)
	}
	if sidePrice > d.cfg.MaxSidePrice {
		return domain.Opportunity{}, fmt.Errorf("contract %s: %s side at %.2f, low profit potential", contract.ID, predictionSide, sidePrice)
	}

	predictionQty, hedgeQty, err := d.sizeLegs(contract, mid, predictionSide, sidePrice, fundingCostPct)
	if err != nil {
		return domain.Opportunity{}, err
	}

	probability := probabilityOfProfit(mid, contract.TargetPrice, hours, predictionSide, funding)

	profit := expectedProfit(profitInputs{
		predictionQty:  predictionQty,
		predictionPx:   sidePrice,
		hedgeQty:       hedgeQty,
		currentPx:      mid,
		targetPx:       contract.TargetPrice,
		hedgeSide:      hedgeSide,
		fundingCostPct: fundingCostPct,
		probability:    probability,
	})

	fees := d.cfg.PredictionFeeRate*predictionQty*sidePrice +
		d.cfg.HedgeTakerFeeRate*2*hedgeQty*mid // taker in and out
	netProfit := profit.expected - fees

	if netProfit < d.cfg.MinProfitUSD {
		return domain.Opportunity{}, fmt.Errorf("contract %s: expected profit $%.2f below threshold", contract.ID, netProfit)
	}

	totalCapital := predictionQty*sidePrice + hedgeQty*mid/math.Max(d.cfg.DefaultLeverage, 1)
	profitPct := 0.0
	if totalCapital > 0 {
		profitPct = netProfit / totalCapital * 100
	}

	opp := domain.Opportunity{
		ID:                  uuid.New().String(),
		Contract:            contract,
		Hedge:               quote,
		PredictionSide:      predictionSide,
		PredictionPrice:     sidePrice,
		PredictionQuantity:  predictionQty,
		HedgeSide:           hedgeSide,
		HedgePrice:          mid,
		HedgeQuantity:       hedgeQty,
		ExpectedProfitUSD:   netProfit,
		ExpectedProfitPct:   profitPct,
		BreakevenPrice:      profit.breakeven,
		MaxRiskUSD:          profit.maxRisk,
		ProbabilityOfProfit: probability,
		SharpeRatio:         sharpeRatio(netProfit, profit.maxRisk, hours, funding, d.cfg.RiskFreeRate),
		FundingRate:         funding,
		DetectedAt:          now,
		ExpiresAt:           contract.ExpiresAt,
	}

	slog.Info("detector: opportunity found",
		"asset", contract.Asset,
		"side", string(predictionSide),
		"profit", fmt.Sprintf("$%.2f", netProfit),
		"profit_pct", fmt.Sprintf("%.1f%%", profitPct),
		"probability", fmt.Sprintf("%.1f%%", probability*100),
		"funding", fmt.Sprintf("%.4f%%", fundingCostPct*100),
	)
	return opp, nil
}

// selectSides picks the prediction side and its offsetting hedge side.
// Funding biases the choice: when the flow disfavors the natural hedge side,
// the bet is only taken if the prediction side is cheap enough to pay for it.
func (d *Detector) selectSides(mid float64, contract domain.PredictionContract, funding float64) (domain.Side, domain.Side, error) {
	distancePct := math.Abs(mid-contract.TargetPrice) / mid * 100
	if distancePct < d.cfg.MinTargetDistancePct {
		return "", "", fmt.Errorf("contract %s: price within %.1f%% of target, too close to call", contract.ID, distancePct)
	}

	if mid < contract.TargetPrice {
		// Below target: bet DOWN, hedge LONG. Positive funding is paid by
		// longs, so the long hedge bleeds: require a cheap DOWN side.
		if funding > 0 && contract.DownPrice >= biasedSidePriceCeiling {
			return "", "", fmt.Errorf("contract %s: long hedge pays funding and DOWN side not cheap", contract.ID)
		}
		return domain.SideDown, domain.SideLong, nil
	}

	// Above target: bet UP, hedge SHORT. The short only collects funding when
	// the rate is positive; without that income require a cheap UP side.
	if funding <= 0 && contract.UpPrice >= biasedSidePriceCeiling {
		return "", "", fmt.Errorf("contract %s: short hedge pays funding and UP side not cheap", contract.ID)
	}
	return domain.SideUp, domain.SideShort, nil
}

// sizeLegs computes delta-neutral quantities for both legs, capped by
// liquidity and the capital budget. If the hedge margin would exceed its
// budget share, both legs scale down by the same factor.
func (d *Detector) sizeLegs(contract domain.PredictionContract, mid float64, side domain.Side, sidePrice, fundingCostPct float64) (predictionQty, hedgeQty float64, err error) {
	liquidity := contract.SideLiquidity(side)

	stake := math.Min(
		d.cfg.MaxPositionSizeUSD*d.cfg.PredictionFraction,
		liquidity*d.cfg.LiquidityFraction,
	)
	if stake <= 0 {
		return 0, 0, fmt.Errorf("contract %s: no liquidity on %s side", contract.ID, side)
	}
	predictionQty = stake / sidePrice

	// A winning prediction leg pays qty*(1-price); the hedge covers the
	// losing scenario for the same notional, adjusted for funding drag.
	fundingAdjustment := 1 + fundingCostPct
	hedgeNotional := predictionQty * (1 - sidePrice) * fundingAdjustment

	leverage := math.Max(d.cfg.DefaultLeverage, 1)
	hedgeMargin := hedgeNotional / leverage

	if budget := d.cfg.MaxPositionSizeUSD * d.cfg.HedgeFraction; hedgeMargin > budget {
		scale := budget / hedgeMargin
		predictionQty *= scale
		hedgeNotional *= scale
	}

	hedgeQty = hedgeNotional / mid
	if hedgeQty <= 0 || predictionQty <= 0 {
		return 0, 0, fmt.Errorf("contract %s: degenerate sizing", contract.ID)
	}
	return predictionQty, hedgeQty, nil
}

type profitInputs struct {
	predictionQty  float64
	predictionPx   float64
	hedgeQty       float64
	currentPx      float64
	targetPx       float64
	hedgeSide      domain.Side
	fundingCostPct float64
	probability    float64
}

type profitResult struct {
	expected  float64 // before fees
	win       float64
	loss      float64
	maxRisk   float64
	breakeven float64
}

// expectedProfit models the two settlement scenarios. The hedge's P&L at the
// target is discounted 50% because the hedge is unwound early, not held to
// the exact target print. A short hedge earns positive funding instead of
// paying it.
func expectedProfit(in profitInputs) profitResult {
	winPrediction := in.predictionQty * (1 - in.predictionPx)

	var hedgePnLAtTarget float64
	if in.hedgeSide == domain.SideLong {
		hedgePnLAtTarget = in.hedgeQty * (in.targetPx - in.currentPx)
	} else {
		hedgePnLAtTarget = in.hedgeQty * (in.currentPx - in.targetPx)
	}

	fundingCost := in.hedgeQty * in.currentPx * math.Abs(in.fundingCostPct)
	if in.hedgeSide == domain.SideShort && in.fundingCostPct > 0 {
		fundingCost = -fundingCost // income
	}

	win := winPrediction + hedgePnLAtTarget*0.5 - fundingCost
	loss := in.predictionQty * in.predictionPx

	var breakeven float64
	if in.hedgeQty > 0 {
		if in.hedgeSide == domain.SideLong {
			breakeven = in.currentPx + loss/in.hedgeQty
		} else {
			breakeven = in.currentPx - loss/in.hedgeQty
		}
	}

	return profitResult{
		expected:  in.probability*win - (1-in.probability)*loss,
		win:       win,
		loss:      loss,
		maxRisk:   loss + math.Max(fundingCost, 0),
		breakeven: breakeven,
	}
}
