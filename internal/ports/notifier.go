package ports

import (
	"context"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// Notifier presenta los resultados de cada ciclo al usuario.
type Notifier interface {
	// Notify muestra las oportunidades ordenadas por score.
	Notify(ctx context.Context, opportunities []domain.Opportunity) error

	// NotifyPositions muestra el estado de las posiciones abiertas.
	NotifyPositions(ctx context.Context, positions []domain.Position) error
}
