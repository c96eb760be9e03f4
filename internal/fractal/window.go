package fractal

import (
	"github.com/aristath/fractal/pkg/formulas"
)

// NormalizedWindow is a contiguous price window represented as L-1 relative
// returns anchored to the window's first close. Derived per request, never
// persisted.
type NormalizedWindow struct {
	// Shape holds (close[i] - close[0]) / close[0] for i = 1..L-1.
	Shape []float64
	// Vol is the annualized realized volatility of the window's daily returns.
	Vol float64
	// Drawdown describes the deepest drawdown within the window.
	Drawdown formulas.DrawdownShape
	// stability measures volatility continuity between the window's halves.
	stability float64
}

// NewNormalizedWindow builds a normalized window from L closes.
// Returns a zero-shape window for fewer than 2 closes.
func NewNormalizedWindow(closes []float64) NormalizedWindow {
	if len(closes) < 2 {
		return NormalizedWindow{Shape: []float64{}, stability: 1}
	}

	anchor := closes[0]
	shape := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if anchor != 0 {
			shape[i-1] = (closes[i] - anchor) / anchor
		}
	}

	dailyReturns := formulas.CalculateReturns(closes)

	return NormalizedWindow{
		Shape:     shape,
		Vol:       formulas.AnnualizedVolatility(dailyReturns),
		Drawdown:  formulas.CalculateDrawdownShape(closes),
		stability: volatilityContinuity(dailyReturns),
	}
}

// Stability returns the volatility-continuity score of the window in [0,1].
// A window whose first and second halves exhibit similar volatility scores
// high; a window that changed character mid-way scores low.
func (w NormalizedWindow) Stability() float64 {
	return w.stability
}

// volatilityContinuity compares the volatility of the two halves of a return
// series. Identical halves (including two flat halves) score 1.
func volatilityContinuity(returns []float64) float64 {
	if len(returns) < 4 {
		return 1
	}

	mid := len(returns) / 2
	volA := formulas.StdDev(returns[:mid])
	volB := formulas.StdDev(returns[mid:])

	if volA == 0 && volB == 0 {
		return 1
	}

	maxVol := volA
	if volB > maxVol {
		maxVol = volB
	}

	diff := volA - volB
	if diff < 0 {
		diff = -diff
	}

	return 1 - diff/maxVol
}

// ShapeSimilarity scores how alike two normalized windows are, in [0,1].
// Pearson correlation of the anchored shapes mapped from [-1,1] to [0,1].
// Two flat windows are perfectly similar; a flat window against a moving one
// scores 0.5 via the correlation convention.
func ShapeSimilarity(a, b NormalizedWindow) float64 {
	if len(a.Shape) == 0 || len(a.Shape) != len(b.Shape) {
		return 0
	}

	corr := formulas.Correlation(a.Shape, b.Shape)
	return (corr + 1) / 2
}

// VolRegimeSimilarity scores how close two windows' realized volatilities
// are, in [0,1]. Two zero-vol windows match perfectly.
func VolRegimeSimilarity(a, b NormalizedWindow) float64 {
	if a.Vol == 0 && b.Vol == 0 {
		return 1
	}

	maxVol := a.Vol
	if b.Vol > maxVol {
		maxVol = b.Vol
	}

	diff := a.Vol - b.Vol
	if diff < 0 {
		diff = -diff
	}

	return 1 - diff/maxVol
}

// DrawdownSimilarity scores the structural similarity of the deepest
// drawdowns of two windows (depth weighted over timing), in [0,1].
func DrawdownSimilarity(a, b NormalizedWindow) float64 {
	depthDiff := a.Drawdown.Depth - b.Drawdown.Depth
	if depthDiff < 0 {
		depthDiff = -depthDiff
	}

	maxDepth := a.Drawdown.Depth
	if b.Drawdown.Depth > maxDepth {
		maxDepth = b.Drawdown.Depth
	}

	depthScore := 1.0
	if maxDepth > 0 {
		depthScore = 1 - depthDiff/maxDepth
	}

	timingDiff := a.Drawdown.TroughAt - b.Drawdown.TroughAt
	if timingDiff < 0 {
		timingDiff = -timingDiff
	}

	return depthScore*0.7 + (1-timingDiff)*0.3
}
