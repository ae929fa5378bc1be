package main

import (
	"time"

	"github.com/alejandrodnm/polyhedge/config"
	"github.com/alejandrodnm/polyhedge/internal/adapters/paper"
	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// Precios de arranque para los venues simulados.
var paperPrices = map[string]float64{
	"BTC": 60000,
	"ETH": 3000,
	"SOL": 150,
}

// newPaperVenues construye los dos venues simulados con contratos de ejemplo
// para cada asset configurado.
func newPaperVenues(cfg *config.Config) (*paper.Prediction, *paper.Hedge) {
	prediction := paper.NewPrediction(50000, cfg.Fees.PredictionFeeRate)
	hedge := paper.NewHedge(100000, 0.0005, cfg.Fees.HedgeTakerFeeRate, cfg.Fees.HedgeMakerFeeRate)

	now := time.Now()
	for _, asset := range cfg.Detector.Assets {
		price, ok := paperPrices[asset]
		if !ok {
			price = 100
		}
		hedge.SetPrice(asset, price)
		hedge.SetFunding(asset, 0.0001)

		// Dos contratos por asset: uno por encima y otro por debajo del
		// precio actual, con vencimientos distintos.
		prediction.SeedContract(domain.PredictionContract{
			ID:            asset + "-above-" + now.Format("0102"),
			Asset:         asset,
			Question:      "Will " + asset + " close above target?",
			TargetPrice:   price * 1.04,
			ExpiresAt:     now.Add(24 * time.Hour),
			UpPrice:       0.35,
			DownPrice:     0.60,
			UpLiquidity:   80000,
			DownLiquidity: 120000,
			Volume24h:     400000,
		})
		prediction.SeedContract(domain.PredictionContract{
			ID:            asset + "-below-" + now.Format("0102"),
			Asset:         asset,
			Question:      "Will " + asset + " close below target?",
			TargetPrice:   price * 0.95,
			ExpiresAt:     now.Add(72 * time.Hour),
			UpPrice:       0.62,
			DownPrice:     0.33,
			UpLiquidity:   100000,
			DownLiquidity: 90000,
			Volume24h:     250000,
		})
	}

	return prediction, hedge
}
