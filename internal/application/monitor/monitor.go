package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/application/ledger"
	"github.com/alejandrodnm/polyhedge/internal/domain"
	"github.com/alejandrodnm/polyhedge/internal/ports"
)

// Config parametriza la supervisión de posiciones.
type Config struct {
	Interval             time.Duration
	FundingRateThreshold float64 // detection-time threshold
	HardFundingMultiple  float64 // close at this multiple of the threshold
}

// Monitor supervisa las posiciones abiertas en un bucle periódico: evalúa
// expiración, stop-loss, take-profit y funding, y cierra la pata del hedge
// cuando algún trigger dispara. La pata de predicción liquida sola al
// vencimiento del contrato y no se cierra anticipadamente.
type Monitor struct {
	hedge  ports.HedgeMarketPort
	ledger *ledger.Ledger
	cfg    Config
	now    func() time.Time
}

// New crea un Monitor con las dependencias inyectadas.
func New(hedge ports.HedgeMarketPort, l *ledger.Ledger, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.HardFundingMultiple <= 0 {
		cfg.HardFundingMultiple = 3
	}
	return &Monitor{
		hedge:  hedge,
		ledger: l,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetClock replaces the time source (tests).
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// Run ejecuta el bucle hasta que el contexto se cancele. Un error en una
// iteración se loguea y no detiene el bucle.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("monitor: started", "interval", m.cfg.Interval)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor: stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick evalúa todas las posiciones abiertas una vez. Los errores de una
// posición no afectan al resto.
func (m *Monitor) Tick(ctx context.Context) {
	for _, p := range m.ledger.Active() {
		if !p.IsOpen() {
			continue
		}
		if err := m.checkPosition(ctx, p); err != nil {
			slog.Warn("monitor: position check failed", "position", p.ID, "err", err)
		}
	}
}

// checkPosition evalúa los triggers de una posición. El orden importa:
// expiración primero (no necesita quote), después P&L y precios.
func (m *Monitor) checkPosition(ctx context.Context, p domain.Position) error {
	now := m.now()

	if !now.Before(p.ExpiresAt) {
		return m.ClosePosition(ctx, p.ID, "expired")
	}

	quote, err := m.hedge.GetQuote(ctx, p.Asset)
	if err != nil {
		// Sin quote no hay decisión; se reintenta en el próximo tick.
		return fmt.Errorf("monitor: quote %s: %w", p.Asset, err)
	}
	price := quote.Mid()
	if price <= 0 {
		return fmt.Errorf("monitor: degenerate quote for %s", p.Asset)
	}

	unrealized := p.HedgePnLAt(price)
	if err := m.ledger.Mutate(p.ID, func(p *domain.Position) error {
		p.UnrealizedPnL = unrealized
		return nil
	}); err != nil {
		return err
	}

	if trigger := m.priceTrigger(p, price); trigger != "" {
		slog.Info("monitor: trigger",
			"position", p.ID,
			"asset", p.Asset,
			"reason", trigger,
			"price", price,
			"unrealized_pnl", fmt.Sprintf("$%.2f", unrealized),
		)
		return m.ClosePosition(ctx, p.ID, trigger)
	}

	if m.fundingTrigger(ctx, p) {
		return m.ClosePosition(ctx, p.ID, "funding")
	}
	return nil
}

// priceTrigger compara el precio actual contra stop y take profit, con el
// signo de la pata del hedge.
func (m *Monitor) priceTrigger(p domain.Position, price float64) string {
	if p.HedgeSide == domain.SideLong {
		if p.StopLossPrice > 0 && price <= p.StopLossPrice {
			return "stop_loss"
		}
		if p.TakeProfitPrice > 0 && price >= p.TakeProfitPrice {
			return "take_profit"
		}
		return ""
	}

	if p.StopLossPrice > 0 && price >= p.StopLossPrice {
		return "stop_loss"
	}
	if p.TakeProfitPrice > 0 && price <= p.TakeProfitPrice {
		return "take_profit"
	}
	return ""
}

// fundingTrigger dispara cuando el funding supera el umbral "duro", un
// múltiplo del umbral de detección. Venues spot nunca disparan.
func (m *Monitor) fundingTrigger(ctx context.Context, p domain.Position) bool {
	if m.cfg.FundingRateThreshold <= 0 {
		return false
	}
	funding, err := m.hedge.GetFundingRate(ctx, p.Asset)
	if err != nil {
		return false
	}
	return math.Abs(funding) > m.cfg.FundingRateThreshold*m.cfg.HardFundingMultiple
}

// ClosePosition cierra la pata del hedge de una posición y la archiva con el
// motivo dado. La pata de predicción no se toca.
func (m *Monitor) ClosePosition(ctx context.Context, id, reason string) error {
	var asset string
	if err := m.ledger.Mutate(id, func(p *domain.Position) error {
		asset = p.Asset
		return nil
	}); err != nil {
		return err
	}

	if err := m.hedge.ClosePosition(ctx, asset); err != nil {
		return fmt.Errorf("monitor: close hedge leg %s: %w", asset, err)
	}

	now := m.now()
	if err := m.ledger.Mutate(id, func(p *domain.Position) error {
		p.RealizedPnL += p.UnrealizedPnL
		p.UnrealizedPnL = 0
		p.ClosedAt = &now
		p.CloseReason = reason
		return p.Transition(domain.StatusClosed)
	}); err != nil {
		return err
	}

	if err := m.ledger.Archive(id); err != nil {
		return err
	}

	slog.Info("monitor: position closed", "position", id, "reason", reason)
	return nil
}
