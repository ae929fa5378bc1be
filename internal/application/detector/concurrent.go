package detector

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// analyzeContractsConcurrent fans the per-contract analysis out over a worker
// pool. Rejections are expected and logged at debug; only accepted
// opportunities come back. Order is not preserved, the caller sorts.
func analyzeContractsConcurrent(ctx context.Context, d *Detector, contracts []domain.PredictionContract, quote domain.Quote, funding float64, workers int) []domain.Opportunity {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if workers > len(contracts) {
		workers = len(contracts)
	}
	if workers <= 1 {
		return analyzeContractsSerial(ctx, d, contracts, quote, funding)
	}

	jobs := make(chan domain.PredictionContract)
	results := make(chan domain.Opportunity, len(contracts))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for contract := range jobs {
				opp, err := d.Analyze(contract, quote, funding)
				if err != nil {
					slog.Debug("detector: contract rejected", "contract", contract.ID, "reason", err)
					continue
				}
				results <- opp
			}
		}()
	}

	for _, contract := range contracts {
		select {
		case jobs <- contract:
		case <-ctx.Done():
			// Dejar de encolar; los workers drenan lo ya enviado.
			goto done
		}
	}
done:
	close(jobs)
	wg.Wait()
	close(results)

	opportunities := make([]domain.Opportunity, 0, len(results))
	for opp := range results {
		opportunities = append(opportunities, opp)
	}
	return opportunities
}

func analyzeContractsSerial(ctx context.Context, d *Detector, contracts []domain.PredictionContract, quote domain.Quote, funding float64) []domain.Opportunity {
	var opportunities []domain.Opportunity
	for _, contract := range contracts {
		if ctx.Err() != nil {
			break
		}
		opp, err := d.Analyze(contract, quote, funding)
		if err != nil {
			slog.Debug("detector: contract rejected", "contract", contract.ID, "reason", err)
			continue
		}
		opportunities = append(opportunities, opp)
	}
	return opportunities
}
