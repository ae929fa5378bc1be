package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

const rollbackTimeout = 30 * time.Second

// rollback unwinds whatever part of a failed execution reached the venues:
// filled legs get an opposite-direction close order, live unfilled orders get
// cancelled. Safe on any partially-initialized position and idempotent, a
// position is only ever unwound once no matter how many times this runs.
func (e *Engine) rollback(ctx context.Context, position *domain.Position, predictionLeg, hedgeLeg legOutcome) error {
	e.mu.Lock()
	if e.unwound[position.ID] {
		e.mu.Unlock()
		return nil
	}
	e.unwound[position.ID] = true
	e.mu.Unlock()

	// Fresh deadline: the shared leg context is usually already expired here.
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	var errs []error

	if err := e.rollbackPredictionLeg(rbCtx, position, predictionLeg); err != nil {
		errs = append(errs, err)
	}
	if err := e.rollbackHedgeLeg(rbCtx, position, hedgeLeg); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		// Allow a retry by an external reconciler; this attempt failed.
		e.mu.Lock()
		delete(e.unwound, position.ID)
		e.mu.Unlock()
		return errors.Join(errs...)
	}

	slog.Info("executor: rollback complete", "position", position.ID)
	return nil
}

func (e *Engine) rollbackPredictionLeg(ctx context.Context, position *domain.Position, leg legOutcome) error {
	if leg.orderID == "" {
		return nil
	}

	if leg.fill.FilledQuantity > 0 {
		// Sell back what filled against the contract, not the opportunity.
		_, err := e.prediction.PlaceOrder(ctx, domain.PredictionOrderRequest{
			ContractID: position.ContractID,
			Side:       position.PredictionSide.Opposite(),
			Type:       domain.OrderMarket,
			Quantity:   leg.fill.FilledQuantity,
		})
		if err != nil {
			return fmt.Errorf("executor: rollback prediction leg: %w", err)
		}
		return nil
	}

	if err := e.prediction.CancelOrder(ctx, leg.orderID); err != nil {
		// A cancel race with a late fill is tolerable, the order was unfilled
		// at last poll. Log, do not fail the rollback.
		slog.Warn("executor: rollback cancel failed", "leg", "prediction", "order", leg.orderID, "err", err)
	}
	return nil
}

func (e *Engine) rollbackHedgeLeg(ctx context.Context, position *domain.Position, leg legOutcome) error {
	if leg.orderID == "" {
		return nil
	}

	if leg.fill.FilledQuantity > 0 {
		if err := e.hedge.ClosePosition(ctx, position.Asset); err != nil {
			return fmt.Errorf("executor: rollback hedge leg: %w", err)
		}
		return nil
	}

	if err := e.hedge.CancelOrder(ctx, leg.orderID, position.Asset); err != nil {
		slog.Warn("executor: rollback cancel failed", "leg", "hedge", "order", leg.orderID, "err", err)
	}
	return nil
}
