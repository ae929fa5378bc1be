package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
	"github.com/alejandrodnm/polyhedge/internal/ports"
)

// Ledger es el registro de posiciones del proceso: activas por id, histórico
// de cerradas, contador diario de trades y circuit breaker. Es el único
// estado compartido entre el engine y el monitor; todas las mutaciones pasan
// por su mutex.
type Ledger struct {
	mu sync.Mutex

	active  map[string]*domain.Position
	history []domain.Position

	dailyTrades int
	counterDate time.Time // midnight UTC of the day the counter belongs to
	summary     domain.DailySummary

	breaker domain.CircuitBreaker
	limits  domain.RiskLimits

	storage ports.PositionStorage // optional, nil disables persistence
	now     func() time.Time
}

// Config agrupa las dependencias del ledger.
type Config struct {
	Limits           domain.RiskLimits
	BreakerMaxLosses int
	BreakerCooldown  time.Duration
	MaxDrawdownUSD   float64 // positive in config, applied as a negative bound
	Storage          ports.PositionStorage
}

// New crea un Ledger vacío.
func New(cfg Config) *Ledger {
	l := &Ledger{
		active: make(map[string]*domain.Position),
		limits: cfg.Limits,
		breaker: domain.CircuitBreaker{
			MaxLosses:        cfg.BreakerMaxLosses,
			CooldownDuration: cfg.BreakerCooldown,
			MaxDrawdown:      -cfg.MaxDrawdownUSD,
		},
		storage: cfg.Storage,
		now:     time.Now,
	}
	l.counterDate = midnightUTC(l.now())
	l.summary.Date = l.counterDate
	return l
}

// SetClock replaces the time source (tests) and re-bases the daily window on
// the injected clock's date.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.counterDate = midnightUTC(now())
	l.summary.Date = l.counterDate
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// rollDateLocked resets the daily counter when the UTC date has advanced.
// Exactly one reset per date transition regardless of call count. Caller
// holds the mutex.
func (l *Ledger) rollDateLocked() {
	today := midnightUTC(l.now())
	if !today.After(l.counterDate) {
		return
	}

	if l.storage != nil && l.summary.Trades > 0 {
		// Persist the finished day before resetting.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.storage.SaveDailySummary(ctx, l.summary); err != nil {
			slog.Warn("ledger: failed to persist daily summary", "date", l.summary.Date, "err", err)
		}
		cancel()
	}

	slog.Info("ledger: daily counter reset",
		"previous_date", l.counterDate.Format("2006-01-02"),
		"trades", l.dailyTrades,
		"net_pnl", fmt.Sprintf("$%.2f", l.summary.NetPnL),
	)
	l.dailyTrades = 0
	l.counterDate = today
	l.summary = domain.DailySummary{Date: today}
}

// CanExecute runs the risk pre-checks for a new opportunity. It returns nil
// when all pass; otherwise a reason. Check-then-act races with concurrent
// callers are tolerated, limits are rechecked on the next cycle.
func (l *Ledger) CanExecute(opp domain.Opportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDateLocked()

	if !l.breaker.IsOpen(l.now()) {
		return fmt.Errorf("ledger: circuit breaker active: %s", l.breaker.TriggeredReason)
	}
	if len(l.active) >= l.limits.MaxConcurrentPositions {
		return fmt.Errorf("ledger: concurrent position cap reached (%d)", l.limits.MaxConcurrentPositions)
	}
	if l.dailyTrades >= l.limits.MaxDailyTrades {
		return fmt.Errorf("ledger: daily trade cap reached (%d)", l.limits.MaxDailyTrades)
	}

	notional := l.assetNotionalLocked(opp.Contract.Asset) + opp.HedgeNotional()
	if l.limits.MaxAssetConcentrationUSD > 0 && notional > l.limits.MaxAssetConcentrationUSD {
		return fmt.Errorf("ledger: %s concentration $%.0f exceeds cap $%.0f",
			opp.Contract.Asset, notional, l.limits.MaxAssetConcentrationUSD)
	}
	return nil
}

func (l *Ledger) assetNotionalLocked(asset string) float64 {
	var total float64
	for _, p := range l.active {
		if p.Asset == asset {
			total += p.HedgeNotional()
		}
	}
	return total
}

// Register adds an opened position and counts the trade against the day.
func (l *Ledger) Register(p *domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDateLocked()

	if _, exists := l.active[p.ID]; exists {
		return fmt.Errorf("ledger: position %s already registered", p.ID)
	}
	l.active[p.ID] = p
	l.dailyTrades++
	l.summary.Trades++
	return nil
}

// Mutate applies fn to the active position with the given id under the
// ledger's lock. All status changes from engine and monitor go through here.
func (l *Ledger) Mutate(id string, fn func(*domain.Position) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.active[id]
	if !ok {
		return fmt.Errorf("ledger: position %s not active", id)
	}
	return fn(p)
}

// Archive moves a terminal position from active to history, feeds the
// breaker, updates the daily aggregate and persists it.
func (l *Ledger) Archive(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDateLocked()

	p, ok := l.active[id]
	if !ok {
		return fmt.Errorf("ledger: position %s not active", id)
	}
	if !p.Status.Terminal() {
		return fmt.Errorf("ledger: position %s not terminal (status %s)", id, p.Status)
	}
	delete(l.active, id)

	snapshot := *p
	l.history = append(l.history, snapshot)

	switch snapshot.Status {
	case domain.StatusClosed:
		pnl := snapshot.NetPnL()
		l.breaker.RecordClose(pnl, l.now())
		l.summary.NetPnL += pnl
		l.summary.FeesPaid += snapshot.TotalFees()
		if pnl >= 0 {
			l.summary.Wins++
		} else {
			l.summary.Losses++
		}
	case domain.StatusCancelled:
		l.summary.Cancelled++
	case domain.StatusError:
		l.summary.Errored++
	}

	if l.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.storage.SaveClosedPosition(ctx, snapshot); err != nil {
			slog.Warn("ledger: failed to persist position", "position", id, "err", err)
		}
	}
	return nil
}

// Discard removes a position that never opened (CANCELLED/ERROR before
// Register). It only appends to history and the daily aggregate.
func (l *Ledger) Discard(p domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDateLocked()

	l.history = append(l.history, p)
	switch p.Status {
	case domain.StatusCancelled:
		l.summary.Cancelled++
	case domain.StatusError:
		l.summary.Errored++
	}

	if l.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.storage.SaveClosedPosition(ctx, p); err != nil {
			slog.Warn("ledger: failed to persist position", "position", p.ID, "err", err)
		}
	}
}

// Active devuelve una copia de las posiciones activas.
func (l *Ledger) Active() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Position, 0, len(l.active))
	for _, p := range l.active {
		out = append(out, *p)
	}
	return out
}

// ActiveCount devuelve el número de posiciones activas.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// HistoryCount devuelve el número de posiciones en el histórico.
func (l *Ledger) HistoryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

// History devuelve una copia del histórico.
func (l *Ledger) History() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, len(l.history))
	copy(out, l.history)
	return out
}

// DailyTrades devuelve el contador de trades del día UTC en curso.
func (l *Ledger) DailyTrades() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDateLocked()
	return l.dailyTrades
}

// Summary devuelve el agregado del día UTC en curso.
func (l *Ledger) Summary() domain.DailySummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDateLocked()
	return l.summary
}
