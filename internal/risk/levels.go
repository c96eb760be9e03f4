package risk

import (
	"github.com/aristath/fractal/internal/fractal"
)

// TradeLevels are the derived entry/stop/target prices for a strategy
// decision.
type TradeLevels struct {
	Entry  float64 `json:"entry"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`
}

// DeriveLevels computes entry/stop/target from the current price and the
// overlay statistics. The stop sits at the analogs' average intra-path
// drawdown (floored at -2%), the target at the median terminal return
// (floored at +1%); both degrade gracefully when stats are missing.
func DeriveLevels(currentPrice float64, stats *fractal.OverlayStats) TradeLevels {
	levels := TradeLevels{Entry: currentPrice}

	stopReturn := -0.05
	targetReturn := 0.05
	if stats != nil {
		if stats.AvgMaxDD < -0.02 {
			stopReturn = stats.AvgMaxDD
		} else {
			stopReturn = -0.02
		}
		if stats.MedianReturn > 0.01 {
			targetReturn = stats.MedianReturn
		} else {
			targetReturn = 0.01
		}
	}

	levels.Stop = currentPrice * (1 + stopReturn)
	levels.Target = currentPrice * (1 + targetReturn)

	return levels
}
