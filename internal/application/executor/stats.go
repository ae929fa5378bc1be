package executor

import (
	"sync"
	"time"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// statsRecorder aggregates execution counters under its own lock, separate
// from the rollback bookkeeping.
type statsRecorder struct {
	mu sync.Mutex

	attempts      int
	openedCount   int
	totalTime     time.Duration
	totalSlippage float64
	slipSamples   int
}

func (s *statsRecorder) attempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
}

func (s *statsRecorder) opened(elapsed time.Duration, slippage float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openedCount++
	s.totalTime += elapsed
	s.totalSlippage += slippage
	s.slipSamples++
}

func (s *statsRecorder) failed() {
	// Failures already count as attempts; nothing extra to track yet.
}

func (s *statsRecorder) snapshot() domain.ExecutionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.ExecutionStats
	if s.openedCount > 0 {
		stats.AvgExecutionTime = s.totalTime / time.Duration(s.openedCount)
	}
	if s.slipSamples > 0 {
		stats.AvgSlippage = s.totalSlippage / float64(s.slipSamples)
	}
	if s.attempts > 0 {
		stats.SuccessRate = float64(s.openedCount) / float64(s.attempts)
	}
	return stats
}
