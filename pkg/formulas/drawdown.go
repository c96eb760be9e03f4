package formulas

// DrawdownShape describes the depth and timing of the deepest drawdown
// within a price window.
type DrawdownShape struct {
	Depth    float64 // Maximum drawdown as positive fraction (0.25 = 25% loss from peak)
	TroughAt float64 // Position of the trough within the window, 0..1
}

// CalculateMaxDrawdown calculates the maximum drawdown from a price series.
//
// Drawdown Formula:
//   Drawdown = (Peak Value - Current Value) / Peak Value
//   Max Drawdown = Maximum of all drawdowns
//
// Returns the maximum drawdown as a positive fraction, or nil when the series
// is too short to measure.
func CalculateMaxDrawdown(prices []float64) *float64 {
	if len(prices) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := prices[0]

	for _, price := range prices {
		if price > peak {
			peak = price
		}

		if peak > 0 {
			drawdown := (peak - price) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return &maxDrawdown
}

// CalculateDrawdownShape returns both the depth and relative timing of the
// deepest drawdown in a price window. Timing is the trough index divided by
// the window length, so two windows can be compared structurally regardless
// of their absolute price levels.
func CalculateDrawdownShape(prices []float64) DrawdownShape {
	if len(prices) < 2 {
		return DrawdownShape{}
	}

	maxDrawdown := 0.0
	peak := prices[0]
	troughIdx := 0

	for i, price := range prices {
		if price > peak {
			peak = price
		}

		if peak > 0 {
			drawdown := (peak - price) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
				troughIdx = i
			}
		}
	}

	return DrawdownShape{
		Depth:    maxDrawdown,
		TroughAt: float64(troughIdx) / float64(len(prices)-1),
	}
}
