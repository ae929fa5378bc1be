package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// PositionStorage persists terminal positions and daily aggregates.
type PositionStorage interface {
	// SaveClosedPosition appends a terminal (closed/cancelled/errored)
	// position to the history.
	SaveClosedPosition(ctx context.Context, p domain.Position) error

	// SaveDailySummary upserts the aggregate for one UTC day.
	SaveDailySummary(ctx context.Context, d domain.DailySummary) error

	// GetHistory returns terminal positions closed in the given range.
	GetHistory(ctx context.Context, from, to time.Time) ([]domain.Position, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
