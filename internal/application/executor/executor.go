package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyhedge/internal/application/ledger"
	"github.com/alejandrodnm/polyhedge/internal/domain"
	"github.com/alejandrodnm/polyhedge/internal/ports"
)

// Config parametriza el motor de ejecución.
type Config struct {
	Mode               domain.ExecutionMode
	Planner            PlannerConfig
	StopLossPct        float64 // tightened by leverage on the hedge leg
	TakeProfitFraction float64 // fraction of the distance to breakeven
	FundingHardLimit   float64 // reject execution beyond this per-period rate
	PollInterval       time.Duration
}

// Engine ejecuta oportunidades: coloca ambas patas en paralelo bajo un
// deadline compartido, hace rollback ante fallos parciales y materializa la
// Position resultante en el ledger.
type Engine struct {
	prediction ports.PredictionMarketPort
	hedge      ports.HedgeMarketPort
	ledger     *ledger.Ledger
	cfg        Config
	stats      statsRecorder
	now        func() time.Time

	mu      sync.Mutex
	unwound map[string]bool // position ids already rolled back
}

// New crea un Engine con las dependencias inyectadas.
func New(prediction ports.PredictionMarketPort, hedge ports.HedgeMarketPort, l *ledger.Ledger, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Planner.TimeBudget <= 0 {
		cfg.Planner.TimeBudget = time.Minute
	}
	return &Engine{
		prediction: prediction,
		hedge:      hedge,
		ledger:     l,
		cfg:        cfg,
		now:        time.Now,
		unwound:    make(map[string]bool),
	}
}

// SetClock replaces the time source (tests).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Execute carries an opportunity through pre-checks, planning, parallel leg
// placement and position materialization. On any rejection or failure it
// returns (nil, err); the caller only ever sees a usable OPEN position or
// nothing.
func (e *Engine) Execute(ctx context.Context, opp domain.Opportunity) (*domain.Position, error) {
	start := e.now()
	e.stats.attempt()

	if err := e.preCheck(ctx, opp); err != nil {
		slog.Info("executor: opportunity rejected", "opportunity", opp.ID, "reason", err)
		return nil, err
	}

	plan := BuildPlan(opp, e.cfg.Mode, e.cfg.Planner, e.now())
	position := e.newPendingPosition(opp, plan)

	slog.Info("executor: executing",
		"opportunity", opp.ID,
		"asset", opp.Contract.Asset,
		"mode", string(plan.Mode),
		"market_orders", plan.UseMarketOrders,
		"chunks", plan.PredictionChunks,
		"budget", plan.TimeBudget,
	)

	if plan.Leverage > 1 {
		if err := e.hedge.SetLeverage(ctx, opp.Contract.Asset, plan.Leverage); err != nil {
			slog.Warn("executor: set leverage failed, continuing at venue default",
				"asset", opp.Contract.Asset, "err", err)
			plan.Leverage = 1
		}
	}

	predictionLeg, hedgeLeg := e.submitLegs(ctx, opp, plan, position)

	if !predictionLeg.ok() || !hedgeLeg.ok() {
		return nil, e.failAndRollback(ctx, position, predictionLeg, hedgeLeg)
	}

	e.materialize(position, opp, plan, predictionLeg, hedgeLeg)

	if err := e.ledger.Register(position); err != nil {
		// Shouldn't happen with uuid ids; unwind to avoid naked exposure.
		slog.Error("executor: ledger register failed, rolling back", "position", position.ID, "err", err)
		return nil, e.failAndRollback(ctx, position, predictionLeg, hedgeLeg)
	}

	elapsed := e.now().Sub(start)
	e.stats.opened(elapsed, legSlippage(opp, predictionLeg, hedgeLeg))

	slog.Info("executor: position open",
		"position", position.ID,
		"asset", position.Asset,
		"prediction_entry", position.PredictionEntryPrice,
		"hedge_entry", position.HedgeEntryPrice,
		"stop_loss", position.StopLossPrice,
		"take_profit", position.TakeProfitPrice,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return position, nil
}

// preCheck enforces the risk gates. All must pass before any side effect.
func (e *Engine) preCheck(ctx context.Context, opp domain.Opportunity) error {
	if opp.Expired(e.now()) {
		return fmt.Errorf("executor: opportunity %s expired", opp.ID)
	}
	if err := e.ledger.CanExecute(opp); err != nil {
		return err
	}

	funding, err := e.hedge.GetFundingRate(ctx, opp.Contract.Asset)
	if err == nil && e.cfg.FundingHardLimit > 0 && math.Abs(funding) > e.cfg.FundingHardLimit {
		return fmt.Errorf("executor: funding rate %.5f beyond hard limit", funding)
	}
	return nil
}

func (e *Engine) newPendingPosition(opp domain.Opportunity, plan domain.ExecutionPlan) *domain.Position {
	return &domain.Position{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Status:        domain.StatusPending,

		Asset: opp.Contract.Asset,
		// El id del contrato, no el de la oportunidad: el rollback y el
		// monitor operan contra el venue.
		ContractID: opp.Contract.ID,

		PredictionSide:     opp.PredictionSide,
		PredictionQuantity: opp.PredictionQuantity,

		HedgeVenue:    opp.Hedge.Venue,
		HedgeSymbol:   opp.Hedge.Symbol,
		HedgeSide:     opp.HedgeSide,
		HedgeQuantity: opp.HedgeQuantity,
		Leverage:      plan.Leverage,

		MaxLossUSD: opp.MaxRiskUSD,
		OpenedAt:   e.now(),
		ExpiresAt:  opp.ExpiresAt,
	}
}

// failAndRollback unwinds whatever filled and records the terminal position.
// CANCELLED when the unwind succeeded, ERROR when it did not.
func (e *Engine) failAndRollback(ctx context.Context, position *domain.Position, predictionLeg, hedgeLeg legOutcome) error {
	slog.Warn("executor: leg failure, rolling back",
		"position", position.ID,
		"prediction_ok", predictionLeg.ok(),
		"hedge_ok", hedgeLeg.ok(),
	)

	rollbackErr := e.rollback(ctx, position, predictionLeg, hedgeLeg)

	final := domain.StatusCancelled
	reason := "leg execution failed"
	if rollbackErr != nil {
		final = domain.StatusError
		reason = "rollback failed: " + rollbackErr.Error()
		slog.Error("executor: rollback failed, manual reconciliation required",
			"position", position.ID, "err", rollbackErr)
	}

	if err := position.Transition(final); err != nil {
		position.Status = final // terminal bookkeeping must not get stuck
	}
	now := e.now()
	position.ClosedAt = &now
	position.CloseReason = reason
	e.ledger.Discard(*position)

	e.stats.failed()
	return fmt.Errorf("executor: position %s %s: %s", position.ID, final, reason)
}

// materialize stamps venue fills into the position and derives its risk
// bounds. Stop distance tightens proportionally with leverage; take profit
// sits partway toward the detection-time breakeven.
func (e *Engine) materialize(position *domain.Position, opp domain.Opportunity, plan domain.ExecutionPlan, predictionLeg, hedgeLeg legOutcome) {
	position.PredictionOrderID = predictionLeg.orderID
	position.PredictionEntryPrice = predictionLeg.fill.AvgPrice
	position.PredictionQuantity = predictionLeg.fill.FilledQuantity
	position.PredictionFees = predictionLeg.fill.Fees

	position.HedgeOrderID = hedgeLeg.orderID
	position.HedgeEntryPrice = hedgeLeg.fill.AvgPrice
	position.HedgeQuantity = hedgeLeg.fill.FilledQuantity
	position.HedgeFees = hedgeLeg.fill.Fees

	entry := position.HedgeEntryPrice
	leverage := math.Max(plan.Leverage, 1)
	stopDistance := entry * (e.cfg.StopLossPct / 100) / leverage

	fraction := e.cfg.TakeProfitFraction
	if fraction <= 0 || fraction >= 1 {
		fraction = 0.5
	}

	if position.HedgeSide == domain.SideLong {
		position.StopLossPrice = entry - stopDistance
		position.TakeProfitPrice = entry + (opp.BreakevenPrice-entry)*fraction
	} else {
		position.StopLossPrice = entry + stopDistance
		position.TakeProfitPrice = entry - (entry-opp.BreakevenPrice)*fraction
	}

	_ = position.Transition(domain.StatusOpen) // PENDING→OPEN is always legal
}

// legSlippage is the mean relative drift of both legs' actual entries versus
// the detection-time assumption.
func legSlippage(opp domain.Opportunity, predictionLeg, hedgeLeg legOutcome) float64 {
	var sum float64
	var n int
	if opp.PredictionPrice > 0 && predictionLeg.fill.AvgPrice > 0 {
		sum += math.Abs(predictionLeg.fill.AvgPrice-opp.PredictionPrice) / opp.PredictionPrice
		n++
	}
	if opp.HedgePrice > 0 && hedgeLeg.fill.AvgPrice > 0 {
		sum += math.Abs(hedgeLeg.fill.AvgPrice-opp.HedgePrice) / opp.HedgePrice
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Stats devuelve los contadores agregados del motor.
func (e *Engine) Stats() domain.ExecutionStats {
	s := e.stats.snapshot()
	s.ActiveCount = e.ledger.ActiveCount()
	s.HistoryCount = e.ledger.HistoryCount()
	return s
}
