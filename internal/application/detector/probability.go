package detector

import (
	"math"

	"github.com/alejandrodnm/polyhedge/internal/domain"
)

// Annualized volatility brackets by price level. Large-cap assets trade
// calmer than small caps. TODO: replace with realized vol from the hedge
// venue's candle history.
func annualizedVolatility(price float64) float64 {
	switch {
	case price > 50000:
		return 0.60
	case price > 2000:
		return 0.75
	default:
		return 0.90
	}
}

// probabilityOfProfit estima P(la apuesta gana al vencimiento) con un modelo
// log-normal del precio del hedge. El funding actúa como drift: funding
// positivo presiona el precio a la baja (los longs pagan por estar largos).
// Devuelve 0.4 como fallback conservador si las entradas son degeneradas.
func probabilityOfProfit(currentPrice, targetPrice, hoursToExpiry float64, side domain.Side, fundingRate float64) float64 {
	if currentPrice <= 0 || targetPrice <= 0 || hoursToExpiry <= 0 {
		return 0.4
	}

	years := hoursToExpiry / (24 * 365)
	sigma := annualizedVolatility(currentPrice) * math.Sqrt(years)
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return 0.4
	}

	drift := -fundingRate * fundingPeriodsPerYear * years

	// z tal que P(price_T > target) = Φ(z) bajo el modelo log-normal.
	z := (math.Log(currentPrice/targetPrice) + drift - sigma*sigma/2) / sigma
	pAbove := normCDF(z)

	var p float64
	if side == domain.SideUp {
		p = pAbove
	} else {
		p = 1 - pAbove
	}

	// Bonus acotado por horizonte: más tiempo da más margen a que el drift
	// y la volatilidad trabajen a favor de la apuesta. Escala la base en vez
	// de sumarse, una probabilidad baja sigue siendo baja.
	p *= 1 + math.Min(0.15, hoursToExpiry/168)

	return clamp01(p)
}

// normCDF is the standard normal CDF via the complementary error function.
func normCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0.4
	}
	return math.Max(0, math.Min(1, x))
}

// sharpeRatio annualizes the trade's excess return over its max risk.
// Zero risk or zero duration yields 0, never a division blowup.
func sharpeRatio(netProfit, maxRisk, hours, fundingRate, riskFreeRate float64) float64 {
	if maxRisk <= 0 || hours <= 0 {
		return 0
	}
	periodReturn := netProfit / maxRisk
	periodsPerYear := (24 * 365) / hours
	annualReturn := periodReturn * periodsPerYear

	// La volatilidad del retorno se aproxima con el riesgo relativo más el
	// ruido del funding.
	vol := math.Abs(periodReturn)*math.Sqrt(periodsPerYear) + math.Abs(fundingRate)*10
	if vol <= 0 {
		return 0
	}
	return (annualReturn - riskFreeRate) / vol
}
