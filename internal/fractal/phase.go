package fractal

import (
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/pkg/formulas"
)

// Trend thresholds for phase classification. A short-vs-long SMA spread
// beyond ±2% is treated as a directional trend.
const phaseTrendThreshold = 0.02

// ClassifyPhase labels the market phase of a price window from its trend
// direction and position relative to the window's range.
func ClassifyPhase(closes []float64) domain.PhaseLabel {
	if len(closes) < 8 {
		return domain.PhaseAccumulation
	}

	slope := formulas.TrendSlope(closes, len(closes))

	switch {
	case slope > phaseTrendThreshold:
		return domain.PhaseMarkup
	case slope < -phaseTrendThreshold:
		return domain.PhaseMarkdown
	}

	// Sideways: position within the window's range decides accumulation
	// (near lows) vs distribution (near highs).
	lo, hi := closes[0], closes[0]
	for _, c := range closes {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}

	last := closes[len(closes)-1]
	if hi == lo {
		return domain.PhaseAccumulation
	}
	if (last-lo)/(hi-lo) >= 0.5 {
		return domain.PhaseDistribution
	}
	return domain.PhaseAccumulation
}

// ClassifyVolRegime classifies the current volatility environment from the
// trailing short-window volatility, its longer-term baseline, and the ratio
// between the two.
func ClassifyVolRegime(closes []float64) domain.VolRegime {
	shortVol := formulas.RealizedVolatility(closes, 20)
	longVol := formulas.RealizedVolatility(closes, 90)

	if longVol == 0 {
		// Flat or near-flat history carries no volatility signal.
		return domain.VolRegimeLow
	}

	ratio := shortVol / longVol

	switch {
	case shortVol > 1.2 && ratio > 2.0:
		return domain.VolRegimeCrisis
	case shortVol > 0.8:
		return domain.VolRegimeHigh
	case ratio > 1.4:
		return domain.VolRegimeExpansion
	case ratio < 0.6:
		return domain.VolRegimeContraction
	case shortVol < 0.25:
		return domain.VolRegimeLow
	default:
		return domain.VolRegimeMedium
	}
}

// VolSpikeRatio returns short-term vol relative to its longer baseline,
// used by risk sizing to detect extreme spikes. Returns 1 for flat series.
func VolSpikeRatio(closes []float64) float64 {
	shortVol := formulas.RealizedVolatility(closes, 10)
	longVol := formulas.RealizedVolatility(closes, 90)
	if longVol == 0 {
		return 1
	}
	return shortVol / longVol
}
