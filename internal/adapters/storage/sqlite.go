package storage

// sqlite.go: histórico de posiciones y agregados diarios.
//
// Estrategia:
//   - `positions`: una fila por posición terminal (CLOSED/CANCELLED/ERROR),
//     append-only. Las posiciones activas viven solo en memoria (ledger).
//   - `daily_summaries`: una fila por día UTC (UPSERT al rollover).
//   - Prune automático al arrancar: posiciones > 90d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por posición terminal
CREATE TABLE IF NOT EXISTS positions (
    id                 TEXT PRIMARY KEY,
    opportunity_id     TEXT,
    status             TEXT    NOT NULL,
    asset              TEXT    NOT NULL,
    contract_id        TEXT    NOT NULL,
    prediction_side    TEXT,
    prediction_entry   REAL    NOT NULL DEFAULT 0,
    prediction_qty     REAL    NOT NULL DEFAULT 0,
    prediction_fees    REAL    NOT NULL DEFAULT 0,
    hedge_venue        TEXT,
    hedge_side         TEXT,
    hedge_entry        REAL    NOT NULL DEFAULT 0,
    hedge_qty          REAL    NOT NULL DEFAULT 0,
    hedge_fees         REAL    NOT NULL DEFAULT 0,
    leverage           REAL    NOT NULL DEFAULT 1,
    stop_loss          REAL    NOT NULL DEFAULT 0,
    take_profit        REAL    NOT NULL DEFAULT 0,
    realized_pnl       REAL    NOT NULL DEFAULT 0,
    close_reason       TEXT,
    opened_at          DATETIME NOT NULL,
    closed_at          DATETIME,
    expires_at         DATETIME
);

-- Una fila por día UTC
CREATE TABLE IF NOT EXISTS daily_summaries (
    date       TEXT PRIMARY KEY, -- YYYY-MM-DD
    trades     INTEGER NOT NULL DEFAULT 0,
    wins       INTEGER NOT NULL DEFAULT 0,
    losses     INTEGER NOT NULL DEFAULT 0,
    net_pnl    REAL    NOT NULL DEFAULT 0,
    fees_paid  REAL    NOT NULL DEFAULT 0,
    cancelled  INTEGER NOT NULL DEFAULT 0,
    errored    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pos_closed ON positions(closed_at DESC);
CREATE INDEX IF NOT EXISTS idx_pos_asset  ON positions(asset);
CREATE INDEX IF NOT EXISTS idx_pos_status ON positions(status);
`

const retentionPositions = 90 * 24 * time.Hour

// SQLiteStorage implementa ports.PositionStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveClosedPosition añade una posición terminal al histórico.
func (s *SQLiteStorage) SaveClosedPosition(ctx context.Context, p domain.Position) error {
	var closedAt *time.Time
	if p.ClosedAt != nil {
		t := p.ClosedAt.UTC()
		closedAt = &t
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(id, opportunity_id, status, asset, contract_id,
			 prediction_side, prediction_entry, prediction_qty, prediction_fees,
			 hedge_venue, hedge_side, hedge_entry, hedge_qty, hedge_fees, leverage,
			 stop_loss, take_profit, realized_pnl, close_reason,
			 opened_at, closed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			realized_pnl = excluded.realized_pnl,
			close_reason = excluded.close_reason,
			closed_at    = excluded.closed_at
	`,
		p.ID, p.OpportunityID, string(p.Status), p.Asset, p.ContractID,
		string(p.PredictionSide), p.PredictionEntryPrice, p.PredictionQuantity, p.PredictionFees,
		p.HedgeVenue, string(p.HedgeSide), p.HedgeEntryPrice, p.HedgeQuantity, p.HedgeFees, p.Leverage,
		p.StopLossPrice, p.TakeProfitPrice, p.RealizedPnL, p.CloseReason,
		p.OpenedAt.UTC(), closedAt, p.ExpiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveClosedPosition: insert %s: %w", p.ID, err)
	}
	return nil
}

// SaveDailySummary hace upsert del agregado de un día UTC.
func (s *SQLiteStorage) SaveDailySummary(ctx context.Context, d domain.DailySummary) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_summaries
			(date, trades, wins, losses, net_pnl, fees_paid, cancelled, errored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			trades    = excluded.trades,
			wins      = excluded.wins,
			losses    = excluded.losses,
			net_pnl   = excluded.net_pnl,
			fees_paid = excluded.fees_paid,
			cancelled = excluded.cancelled,
			errored   = excluded.errored
	`,
		d.Date.UTC().Format("2006-01-02"),
		d.Trades, d.Wins, d.Losses, d.NetPnL, d.FeesPaid, d.Cancelled, d.Errored,
	); err != nil {
		return fmt.Errorf("storage.SaveDailySummary: upsert %s: %w", d.Date.Format("2006-01-02"), err)
	}
	return nil
}

// GetHistory devuelve las posiciones terminales cerradas en el rango dado,
// más recientes primero.
func (s *SQLiteStorage) GetHistory(ctx context.Context, from, to time.Time) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opportunity_id, status, asset, contract_id,
		       prediction_side, prediction_entry, prediction_qty, prediction_fees,
		       hedge_venue, hedge_side, hedge_entry, hedge_qty, hedge_fees, leverage,
		       stop_loss, take_profit, realized_pnl, close_reason,
		       opened_at, closed_at, expires_at
		FROM positions
		WHERE closed_at BETWEEN ? AND ?
		ORDER BY closed_at DESC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.GetHistory: query: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var status, predictionSide, hedgeSide string
		var closedAt sql.NullTime

		if err := rows.Scan(
			&p.ID, &p.OpportunityID, &status, &p.Asset, &p.ContractID,
			&predictionSide, &p.PredictionEntryPrice, &p.PredictionQuantity, &p.PredictionFees,
			&p.HedgeVenue, &hedgeSide, &p.HedgeEntryPrice, &p.HedgeQuantity, &p.HedgeFees, &p.Leverage,
			&p.StopLossPrice, &p.TakeProfitPrice, &p.RealizedPnL, &p.CloseReason,
			&p.OpenedAt, &closedAt, &p.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("storage.GetHistory: scan row: %w", err)
		}

		p.Status = domain.PositionStatus(status)
		p.PredictionSide = domain.Side(predictionSide)
		p.HedgeSide = domain.Side(hedgeSide)
		if closedAt.Valid {
			t := closedAt.Time
			p.ClosedAt = &t
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetDailySummaries devuelve los agregados diarios del rango, más recientes primero.
func (s *SQLiteStorage) GetDailySummaries(ctx context.Context, from, to time.Time) ([]domain.DailySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, trades, wins, losses, net_pnl, fees_paid, cancelled, errored
		FROM daily_summaries
		WHERE date BETWEEN ? AND ?
		ORDER BY date DESC
	`, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("storage.GetDailySummaries: query: %w", err)
	}
	defer rows.Close()

	var summaries []domain.DailySummary
	for rows.Next() {
		var d domain.DailySummary
		var date string
		if err := rows.Scan(&date, &d.Trades, &d.Wins, &d.Losses, &d.NetPnL, &d.FeesPaid, &d.Cancelled, &d.Errored); err != nil {
			return nil, fmt.Errorf("storage.GetDailySummaries: scan row: %w", err)
		}
		d.Date, _ = time.Parse("2006-01-02", date)
		summaries = append(summaries, d)
	}

	return summaries, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina posiciones antiguas para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionPositions)
	s.db.ExecContext(ctx, `DELETE FROM positions WHERE closed_at < ?`, cutoff)
}
