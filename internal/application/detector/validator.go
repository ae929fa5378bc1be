package detector

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
	"github.com/alejandrodnm/polyhedge/internal/ports"
)

// ValidatorConfig controla los umbrales de re-validación previa a ejecución.
type ValidatorConfig struct {
	MaxPriceDriftPct     float64 // soft warning beyond this hedge price move
	FundingRateThreshold float64 // critical warning beyond 2x this
	DefaultLeverage      float64
}

// DefaultValidatorConfig mirrors production tuning.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxPriceDriftPct:     0.5,
		FundingRateThreshold: 0.01,
		DefaultLeverage:      5,
	}
}

// Validator re-checks an opportunity immediately before execution. Detection
// snapshots go stale in seconds; the validator decides whether the snapshot
// is still actionable.
//
// Hard rejects: expiry, unfetchable quote, insufficient balance on either
// venue. Soft warnings: price drift, thin book, extreme funding. Only
// critical warnings (liquidity, funding) block; a lone price-drift warning
// does not.
type Validator struct {
	prediction ports.PredictionMarketPort
	hedge      ports.HedgeMarketPort
	cfg        ValidatorConfig
	now        func() time.Time
}

// NewValidator crea un Validator con las dependencias inyectadas.
func NewValidator(prediction ports.PredictionMarketPort, hedge ports.HedgeMarketPort, cfg ValidatorConfig) *Validator {
	return &Validator{
		prediction: prediction,
		hedge:      hedge,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetClock replaces the time source (tests).
func (v *Validator) SetClock(now func() time.Time) { v.now = now }

// Validate returns (accepted, warnings). The expiry check runs before any
// venue call, so an expired opportunity costs zero round trips.
func (v *Validator) Validate(ctx context.Context, opp domain.Opportunity) (bool, []string) {
	if opp.Expired(v.now()) {
		return false, []string{"expired"}
	}

	var warnings []string

	quote, err := v.hedge.GetQuote(ctx, opp.Contract.Asset)
	if err != nil {
		slog.Warn("validator: quote fetch failed", "asset", opp.Contract.Asset, "err", err)
		return false, []string{"quote unavailable: " + err.Error()}
	}

	if mid := quote.Mid(); mid > 0 && opp.HedgePrice > 0 {
		driftPct := math.Abs(mid-opp.HedgePrice) / opp.HedgePrice * 100
		if driftPct > v.cfg.MaxPriceDriftPct {
			warnings = append(warnings, "price moved")
			slog.Debug("validator: hedge price drifted",
				"asset", opp.Contract.Asset,
				"detected", opp.HedgePrice,
				"current", mid,
				"drift_pct", driftPct,
			)
		}
	}

	if ok, reason := v.checkBalances(ctx, opp); !ok {
		return false, append(warnings, reason)
	}

	if warn := v.checkLiquidity(ctx, opp); warn != "" {
		warnings = append(warnings, warn)
	}
	if warn := v.checkFunding(ctx, opp); warn != "" {
		warnings = append(warnings, warn)
	}

	// Liquidez y funding son críticos; la deriva de precio sola no bloquea.
	for _, w := range warnings {
		if strings.HasPrefix(w, "liquidity") || strings.HasPrefix(w, "funding") {
			return false, warnings
		}
	}
	return true, warnings
}

func (v *Validator) checkBalances(ctx context.Context, opp domain.Opportunity) (bool, string) {
	predictionBalance, err := v.prediction.GetBalance(ctx)
	if err != nil {
		return false, "prediction balance unavailable: " + err.Error()
	}
	if predictionBalance < opp.PredictionCapital() {
		return false, "insufficient prediction balance"
	}

	hedgeBalance, err := v.hedge.GetBalance(ctx)
	if err != nil {
		return false, "hedge balance unavailable: " + err.Error()
	}
	if hedgeBalance < opp.HedgeCapital(v.cfg.DefaultLeverage) {
		return false, "insufficient hedge balance"
	}
	return true, ""
}

// checkLiquidity confirms the prediction book still holds the quantity the
// opportunity needs. A book fetch error is itself a liquidity warning.
func (v *Validator) checkLiquidity(ctx context.Context, opp domain.Opportunity) string {
	book, err := v.prediction.GetOrderBook(ctx, opp.Contract.ID, opp.PredictionSide)
	if err != nil {
		return "liquidity check failed: " + err.Error()
	}
	depth := book.SideDepth(opp.PredictionSide, 0)
	if depth < opp.PredictionQuantity {
		return "liquidity below required quantity"
	}
	return ""
}

// checkFunding flags funding that moved to an extreme since detection.
// Spot venues report no funding and never warn.
func (v *Validator) checkFunding(ctx context.Context, opp domain.Opportunity) string {
	funding, err := v.hedge.GetFundingRate(ctx, opp.Contract.Asset)
	if err != nil {
		return "" // spot venue or transient failure, detection already priced it
	}
	if math.Abs(funding) > v.cfg.FundingRateThreshold*2 {
		return "funding rate extreme"
	}
	return ""
}
