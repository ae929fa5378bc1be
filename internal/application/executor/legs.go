package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// Limit offsets: aggressive-but-bounded prices in the favorable direction.
const (
	predictionLimitOffset = 0.02   // pay up to 2% over the quoted side price
	predictionPriceCap    = 0.99   // binary contracts never trade at 1.00
	hedgeLimitOffsetPct   = 0.001  // cross 0.1% through the mid
	timeSlicedMinFillRate = 0.80   // per-leg success requires strictly more
)

// legOutcome is the result of working one leg to completion or failure.
type legOutcome struct {
	orderID string
	fill    domain.OrderFill
	err     error
}

func (o legOutcome) ok() bool {
	return o.err == nil && o.fill.FilledQuantity > 0
}

// submitLegs places both legs concurrently under one shared deadline derived
// from the plan's time budget. Both submissions start before either is
// awaited, minimizing relative drift between legs.
func (e *Engine) submitLegs(ctx context.Context, opp domain.Opportunity, plan domain.ExecutionPlan, position *domain.Position) (legOutcome, legOutcome) {
	legCtx, cancel := context.WithTimeout(ctx, plan.TimeBudget)
	defer cancel()

	predictionCh := make(chan legOutcome, 1)
	hedgeCh := make(chan legOutcome, 1)

	go func() { predictionCh <- e.runPredictionLeg(legCtx, opp, plan) }()
	go func() { hedgeCh <- e.runHedgeLeg(legCtx, opp, plan) }()

	predictionLeg := <-predictionCh
	hedgeLeg := <-hedgeCh

	// Expose order ids for rollback even when the position never opens.
	position.PredictionOrderID = predictionLeg.orderID
	position.HedgeOrderID = hedgeLeg.orderID
	return predictionLeg, hedgeLeg
}

// runPredictionLeg places and awaits the prediction-venue order, chunked when
// the plan asks for time-sliced entry.
func (e *Engine) runPredictionLeg(ctx context.Context, opp domain.Opportunity, plan domain.ExecutionPlan) legOutcome {
	orderType := domain.OrderLimit
	price := math.Min(opp.PredictionPrice*(1+predictionLimitOffset), predictionPriceCap)
	if plan.UseMarketOrders {
		orderType = domain.OrderMarket
		price = 0
	}

	place := func(ctx context.Context, qty float64) (string, error) {
		return e.prediction.PlaceOrder(ctx, domain.PredictionOrderRequest{
			ContractID: opp.Contract.ID,
			Side:       opp.PredictionSide,
			Type:       orderType,
			Quantity:   qty,
			Price:      price,
		})
	}
	status := func(ctx context.Context, orderID string) (domain.OrderFill, error) {
		return e.prediction.GetOrderStatus(ctx, orderID)
	}
	cancelOrder := func(ctx context.Context, orderID string) error {
		return e.prediction.CancelOrder(ctx, orderID)
	}

	if plan.PredictionChunks > 1 {
		return e.runSlicedLeg(ctx, "prediction", opp.PredictionQuantity, plan.PredictionChunks, plan.TimeBudget, place, status, cancelOrder)
	}
	return e.runSingleLeg(ctx, "prediction", opp.PredictionQuantity, place, status, cancelOrder)
}

// runHedgeLeg places and awaits the hedge-venue order.
func (e *Engine) runHedgeLeg(ctx context.Context, opp domain.Opportunity, plan domain.ExecutionPlan) legOutcome {
	orderType := domain.OrderLimit
	var price float64
	if plan.UseMarketOrders {
		orderType = domain.OrderMarket
	} else if opp.HedgeSide == domain.SideLong {
		price = opp.HedgePrice * (1 + hedgeLimitOffsetPct)
	} else {
		price = opp.HedgePrice * (1 - hedgeLimitOffsetPct)
	}

	place := func(ctx context.Context, qty float64) (string, error) {
		return e.hedge.PlaceOrder(ctx, domain.HedgeOrderRequest{
			Asset:    opp.Contract.Asset,
			Side:     opp.HedgeSide,
			Type:     orderType,
			Quantity: qty,
			Price:    price,
			Leverage: plan.Leverage,
			PostOnly: plan.PostOnly,
		})
	}
	status := func(ctx context.Context, orderID string) (domain.OrderFill, error) {
		return e.hedge.GetOrderStatus(ctx, orderID, opp.Contract.Asset)
	}
	cancelOrder := func(ctx context.Context, orderID string) error {
		return e.hedge.CancelOrder(ctx, orderID, opp.Contract.Asset)
	}

	if plan.HedgeChunks > 1 {
		return e.runSlicedLeg(ctx, "hedge", opp.HedgeQuantity, plan.HedgeChunks, plan.TimeBudget, place, status, cancelOrder)
	}
	return e.runSingleLeg(ctx, "hedge", opp.HedgeQuantity, place, status, cancelOrder)
}

type placeFunc func(ctx context.Context, qty float64) (string, error)
type statusFunc func(ctx context.Context, orderID string) (domain.OrderFill, error)
type cancelFunc func(ctx context.Context, orderID string) error

// runSingleLeg places one order and polls until filled or the shared
// deadline. An unfilled order gets a best-effort cancel on a fresh context,
// the shared one may already be dead.
func (e *Engine) runSingleLeg(ctx context.Context, name string, qty float64, place placeFunc, status statusFunc, cancelOrder cancelFunc) legOutcome {
	orderID, err := place(ctx, qty)
	if err != nil {
		return legOutcome{err: fmt.Errorf("executor: %s leg placement: %w", name, err)}
	}

	fill, err := e.pollFill(ctx, orderID, status)
	if err == nil && fill.Filled() {
		return legOutcome{orderID: orderID, fill: fill}
	}

	e.bestEffortCancel(name, orderID, cancelOrder)

	if err == nil {
		err = fmt.Errorf("executor: %s leg unfilled within budget", name)
	}
	// Partial fills still count: rollback needs the quantity to unwind.
	return legOutcome{orderID: orderID, fill: fill, err: err}
}

// runSlicedLeg spreads the quantity over evenly spaced chunks inside the
// budget. The leg succeeds only when the aggregate fill rate clears 80%.
func (e *Engine) runSlicedLeg(ctx context.Context, name string, totalQty float64, chunks int, budget time.Duration, place placeFunc, status statusFunc, cancelOrder cancelFunc) legOutcome {
	chunkQty := totalQty / float64(chunks)
	interval := budget / time.Duration(chunks+1)

	var aggregate domain.OrderFill
	var lastOrderID string

	for i := 0; i < chunks; i++ {
		if i > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return e.slicedResult(name, totalQty, aggregate, lastOrderID, ctx.Err())
			}
		}

		orderID, err := place(ctx, chunkQty)
		if err != nil {
			slog.Warn("executor: chunk placement failed", "leg", name, "chunk", i+1, "err", err)
			continue
		}
		lastOrderID = orderID

		fill, err := e.pollChunk(ctx, orderID, interval, status)
		if err != nil {
			e.bestEffortCancel(name, orderID, cancelOrder)
			continue
		}
		if !fill.Filled() {
			e.bestEffortCancel(name, orderID, cancelOrder)
		}

		// Weighted average entry across chunks.
		if fill.FilledQuantity > 0 {
			total := aggregate.FilledQuantity + fill.FilledQuantity
			aggregate.AvgPrice = (aggregate.AvgPrice*aggregate.FilledQuantity + fill.AvgPrice*fill.FilledQuantity) / total
			aggregate.FilledQuantity = total
			aggregate.Fees += fill.Fees
		}
	}

	return e.slicedResult(name, totalQty, aggregate, lastOrderID, nil)
}

func (e *Engine) slicedResult(name string, totalQty float64, aggregate domain.OrderFill, orderID string, cause error) legOutcome {
	fillRate := 0.0
	if totalQty > 0 {
		fillRate = aggregate.FilledQuantity / totalQty
	}
	if fillRate > timeSlicedMinFillRate {
		aggregate.State = domain.OrderStateFilled
		return legOutcome{orderID: orderID, fill: aggregate}
	}

	err := fmt.Errorf("executor: %s leg fill rate %.0f%% not above %.0f%%", name, fillRate*100, timeSlicedMinFillRate*100)
	if cause != nil {
		err = fmt.Errorf("%w: %w", err, cause)
	}
	aggregate.State = domain.OrderStatePartial
	return legOutcome{orderID: orderID, fill: aggregate, err: err}
}

// pollFill polls order status until filled, rejected or context expiry.
func (e *Engine) pollFill(ctx context.Context, orderID string, status statusFunc) (domain.OrderFill, error) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var last domain.OrderFill
	for {
		fill, err := status(ctx, orderID)
		if err == nil {
			last = fill
			switch fill.State {
			case domain.OrderStateFilled:
				return fill, nil
			case domain.OrderStateRejected, domain.OrderStateCancelled:
				return fill, fmt.Errorf("executor: order %s %s", orderID, fill.State)
			}
		}

		select {
		case <-ctx.Done():
			return last, nil // deadline: treated as unfilled by the caller
		case <-ticker.C:
		}
	}
}

// pollChunk polls one chunk with its own slice of the budget.
func (e *Engine) pollChunk(ctx context.Context, orderID string, window time.Duration, status statusFunc) (domain.OrderFill, error) {
	chunkCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	return e.pollFill(chunkCtx, orderID, status)
}

// bestEffortCancel propagates the cancel to the venue on a fresh context.
func (e *Engine) bestEffortCancel(name, orderID string, cancelOrder cancelFunc) {
	if orderID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cancelOrder(ctx, orderID); err != nil {
		slog.Warn("executor: cancel failed", "leg", name, "order", orderID, "err", err)
	}
}
