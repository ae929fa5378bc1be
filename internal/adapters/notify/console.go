package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime las oportunidades del ciclo en el modo configurado.
func (c *Console) Notify(_ context.Context, opportunities []domain.Opportunity) error {
	if len(opportunities) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printFull(opportunities)
	} else {
		c.printCompact(opportunities)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d opportunities", now, len(opps))

	shown := 0
	for _, opp := range opps {
		if shown >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s@%.2f $%.0f p%.0f%%",
			opp.Contract.Asset, opp.PredictionSide, opp.PredictionPrice,
			opp.ExpectedProfitUSD, opp.ProbabilityOfProfit*100)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla completa con el modelo de beneficio.
func (c *Console) printFull(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %d opportunities\n", now, len(opps))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Asset", "Side", "Px", "Hedge", "Profit$", "Profit%", "Prob", "Sharpe", "Risk$", "Expiry")

	for i, opp := range opps {
		table.Append(
			fmt.Sprintf("%d", i+1),
			opp.Contract.Asset,
			string(opp.PredictionSide),
			fmt.Sprintf("%.2f", opp.PredictionPrice),
			fmt.Sprintf("%s %.4f", opp.HedgeSide, opp.HedgeQuantity),
			fmt.Sprintf("$%.2f", opp.ExpectedProfitUSD),
			fmt.Sprintf("%.1f%%", opp.ExpectedProfitPct),
			fmt.Sprintf("%.0f%%", opp.ProbabilityOfProfit*100),
			fmt.Sprintf("%.2f", opp.SharpeRatio),
			fmt.Sprintf("$%.0f", opp.MaxRiskUSD),
			expiryLabel(opp.ExpiresAt),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Profit$ = expected net of fees | Prob = P(profit) | Risk$ = max loss")
}

// NotifyPositions imprime el estado de las posiciones abiertas.
func (c *Console) NotifyPositions(_ context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	if !c.table {
		c.printPositionsCompact(positions)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] %d open positions\n", time.Now().Format("15:04:05"), len(positions))

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Asset", "Status", "Pred", "Hedge", "Entry", "Stop", "TP", "uPnL", "Age")

	for _, p := range positions {
		table.Append(
			shortID(p.ID),
			p.Asset,
			string(p.Status),
			fmt.Sprintf("%s %.0f@%.2f", p.PredictionSide, p.PredictionQuantity, p.PredictionEntryPrice),
			fmt.Sprintf("%s %.4f", p.HedgeSide, p.HedgeQuantity),
			fmt.Sprintf("%.1f", p.HedgeEntryPrice),
			fmt.Sprintf("%.1f", p.StopLossPrice),
			fmt.Sprintf("%.1f", p.TakeProfitPrice),
			fmt.Sprintf("$%.2f", p.UnrealizedPnL),
			fmt.Sprintf("%.1fh", p.DurationHours(time.Now())),
		)
	}
	table.Render()
	return nil
}

func (c *Console) printPositionsCompact(positions []domain.Position) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d pos", time.Now().Format("15:04:05"), len(positions))

	var totalPnL float64
	for _, p := range positions {
		totalPnL += p.UnrealizedPnL
	}
	fmt.Fprintf(&sb, " | uPnL $%.2f", totalPnL)

	for i, p := range positions {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s $%.2f", p.Asset, p.HedgeSide, p.UnrealizedPnL)
	}
	fmt.Fprintln(c.out, sb.String())
}

func expiryLabel(t time.Time) string {
	hours := time.Until(t).Hours()
	if hours < 48 {
		return fmt.Sprintf("%.0fh", hours)
	}
	return t.Format("01-02")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
