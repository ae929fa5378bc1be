package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyhedge/config"
	"github.com/alejandrodnm/polyhedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyhedge/internal/application/detector"
	"github.com/alejandrodnm/polyhedge/internal/application/executor"
	"github.com/alejandrodnm/polyhedge/internal/application/ledger"
	"github.com/alejandrodnm/polyhedge/internal/application/monitor"
)

// app agrupa los componentes cableados y ejecuta los dos bucles del proceso:
// scan→validate→execute y el monitor de posiciones.
type app struct {
	cfg       *config.Config
	detector  *detector.Detector
	validator *detector.Validator
	engine    *executor.Engine
	monitor   *monitor.Monitor
	ledger    *ledger.Ledger
	notifier  *notify.Console
}

// run lanza el monitor en segundo plano y repite ciclos de scan hasta que el
// contexto se cancele.
func (a *app) run(ctx context.Context) {
	go a.monitor.Run(ctx)

	ticker := time.NewTicker(a.cfg.ScanInterval())
	defer ticker.Stop()

	a.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

// runCycle ejecuta un ciclo completo: scan, notificación, y ejecución de las
// oportunidades que pasen la re-validación.
func (a *app) runCycle(ctx context.Context) {
	opportunities, err := a.detector.Scan(ctx, a.cfg.Detector.Assets)
	if err != nil {
		slog.Error("scan cycle failed", "err", err)
		return
	}

	if err := a.notifier.Notify(ctx, opportunities); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	for _, opp := range opportunities {
		accepted, warnings := a.validator.Validate(ctx, opp)
		if !accepted {
			slog.Info("opportunity rejected at validation",
				"opportunity", opp.ID,
				"asset", opp.Contract.Asset,
				"warnings", warnings,
			)
			continue
		}
		if len(warnings) > 0 {
			slog.Warn("executing with warnings", "opportunity", opp.ID, "warnings", warnings)
		}

		if _, err := a.engine.Execute(ctx, opp); err != nil {
			// Ya logueado con motivo; el ciclo sigue con la siguiente.
			continue
		}
	}

	if positions := a.ledger.Active(); len(positions) > 0 {
		if err := a.notifier.NotifyPositions(ctx, positions); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}

	stats := a.engine.Stats()
	slog.Debug("cycle stats",
		"success_rate", stats.SuccessRate,
		"avg_execution", stats.AvgExecutionTime,
		"avg_slippage", stats.AvgSlippage,
		"active", stats.ActiveCount,
		"history", stats.HistoryCount,
	)
}
