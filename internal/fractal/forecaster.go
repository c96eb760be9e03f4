package fractal

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/pkg/formulas"
)

// Forecaster produces a model-based synthetic price path from recent momentum
// and realized volatility. It is independent of the historical analogs and
// serves as a cross-check against analog-based replay.
type Forecaster struct {
	log zerolog.Logger
}

// NewForecaster creates a synthetic forecaster.
func NewForecaster(log zerolog.Logger) *Forecaster {
	return &Forecaster{log: log.With().Str("component", "forecaster").Logger()}
}

// Forecast projects the price over the horizon: a momentum-derived daily
// drift that decays over the horizon, tilted toward the mean when RSI is
// stretched, with volatility-scaled confidence bands. Confidence decay is
// monotonically non-increasing.
func (f *Forecaster) Forecast(closes []float64, horizon domain.Horizon) ForecastPack {
	h := horizon.Days()
	price := closes[len(closes)-1]

	dailyDrift := f.dailyDrift(closes)
	dailyVol := formulas.RealizedVolatility(closes, 90) / math.Sqrt(252)

	pack := ForecastPack{
		PricePath:       make([]float64, h),
		UpperBand:       make([]float64, h),
		LowerBand:       make([]float64, h),
		ConfidenceDecay: make([]float64, h),
	}

	// Drift decays geometrically so the far end of the path reverts toward a
	// flat projection rather than extrapolating momentum forever.
	decay := math.Pow(0.5, 1/float64(maxInt(h/2, 1)))

	level := price
	drift := dailyDrift
	for j := 0; j < h; j++ {
		level *= 1 + drift
		drift *= decay

		spread := 1.282 * dailyVol * math.Sqrt(float64(j+1)) // ~80% band

		pack.PricePath[j] = level
		pack.UpperBand[j] = level * (1 + spread)
		pack.LowerBand[j] = math.Max(0, level*(1-spread))
		pack.ConfidenceDecay[j] = math.Exp(-float64(j+1) / float64(h))
	}

	// Tail floor: a 99th-percentile adverse terminal level.
	floor := price * (1 - 2.326*dailyVol*math.Sqrt(float64(h)))
	pack.TailFloor = math.Max(0, floor)

	return pack
}

// dailyDrift blends 30-day and 90-day momentum into a per-day drift, tilted
// down when RSI is overbought and up when oversold.
func (f *Forecaster) dailyDrift(closes []float64) float64 {
	current := closes[len(closes)-1]
	if current == 0 || len(closes) < 31 {
		return 0
	}

	momentum30 := (current - closes[len(closes)-31]) / closes[len(closes)-31]

	blended := momentum30
	if len(closes) >= 91 && closes[len(closes)-91] != 0 {
		momentum90 := (current - closes[len(closes)-91]) / closes[len(closes)-91]
		blended = momentum30*0.6 + momentum90*0.4/3 // scale 90d to a 30d-equivalent
	}

	drift := blended / 30

	if rsi := formulas.CalculateRSI(closes, 14); rsi != nil {
		switch {
		case *rsi > 70 && drift > 0:
			drift *= 1 - (*rsi-70)/60 // fade overbought momentum
		case *rsi < 30 && drift < 0:
			drift *= 1 - (30-*rsi)/60 // fade oversold momentum
		}
	}

	return drift
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
