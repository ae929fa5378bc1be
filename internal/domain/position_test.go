package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMachineAllowsForwardMoves(t *testing.T) {
	cases := []struct {
		from, to PositionStatus
		ok       bool
	}{
		{StatusPending, StatusOpen, true},
		{StatusPending, StatusPartial, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusError, true},
		{StatusPending, StatusClosed, false},
		{StatusOpen, StatusClosed, true},
		{StatusOpen, StatusPartial, true},
		{StatusPartial, StatusOpen, true},
		{StatusPartial, StatusClosed, true},
		{StatusClosed, StatusOpen, false},
		{StatusCancelled, StatusOpen, false},
		{StatusError, StatusClosed, false},
		{StatusOpen, StatusPending, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s → %s", tc.from, tc.to)
	}
}

// El estado nunca retrocede: con secuencias aleatorias de eventos, una vez
// alcanzado un estado terminal ninguna transición posterior puede aplicarse,
// y PENDING nunca se vuelve a visitar.
func TestStatusMachineNeverMovesBackward(t *testing.T) {
	all := []PositionStatus{
		StatusPending, StatusOpen, StatusPartial,
		StatusClosed, StatusCancelled, StatusError,
	}
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 500; run++ {
		p := &Position{ID: "p", Status: StatusPending}
		sawTerminal := false

		for step := 0; step < 20; step++ {
			next := all[rng.Intn(len(all))]
			err := p.Transition(next)

			if sawTerminal {
				assert.Error(t, err, "transition out of terminal state")
				continue
			}
			if err == nil {
				assert.NotEqual(t, StatusPending, p.Status, "returned to PENDING")
				if p.Status.Terminal() {
					sawTerminal = true
				}
			}
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StatusClosed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusOpen.Terminal())
	assert.False(t, StatusPartial.Terminal())
}

func TestHedgePnLAtSignedBySide(t *testing.T) {
	long := Position{HedgeSide: SideLong, HedgeEntryPrice: 60000, HedgeQuantity: 0.1}
	assert.InDelta(t, 100, long.HedgePnLAt(61000), 1e-9)
	assert.InDelta(t, -100, long.HedgePnLAt(59000), 1e-9)

	short := Position{HedgeSide: SideShort, HedgeEntryPrice: 60000, HedgeQuantity: 0.1}
	assert.InDelta(t, -100, short.HedgePnLAt(61000), 1e-9)
	assert.InDelta(t, 100, short.HedgePnLAt(59000), 1e-9)
}

func TestNetPnLSubtractsFees(t *testing.T) {
	p := Position{RealizedPnL: 100, UnrealizedPnL: 20, PredictionFees: 3, HedgeFees: 2}
	assert.InDelta(t, 115, p.NetPnL(), 1e-9)
}

func TestDurationHoursUsesCloseTimeWhenSet(t *testing.T) {
	opened := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	closed := opened.Add(3 * time.Hour)
	now := opened.Add(10 * time.Hour)

	open := Position{OpenedAt: opened}
	assert.InDelta(t, 10, open.DurationHours(now), 1e-9)

	done := Position{OpenedAt: opened, ClosedAt: &closed}
	assert.InDelta(t, 3, done.DurationHours(now), 1e-9)
}

func TestTransitionErrorKeepsStatus(t *testing.T) {
	p := &Position{ID: "p", Status: StatusClosed}
	err := p.Transition(StatusOpen)
	require.Error(t, err)
	assert.Equal(t, StatusClosed, p.Status)
}
