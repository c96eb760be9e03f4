package fractal

import (
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/pkg/formulas"
)

// Percentile band names served in distribution series, in display order.
var percentileBands = []struct {
	name string
	p    float64
}{
	{"p10", 0.10},
	{"p25", 0.25},
	{"p50", 0.50},
	{"p75", 0.75},
	{"p90", 0.90},
}

// Aggregate stacks the selected matches' aftermath paths per day-offset and
// computes percentile bands plus summary statistics. With no matches the
// result carries nil stats and empty band series; callers must handle the
// no-data case explicitly.
func Aggregate(matches []HistoricalMatch, horizon domain.Horizon) OverlayResult {
	result := OverlayResult{
		Matches:            matches,
		DistributionSeries: map[string][]float64{},
	}
	for _, band := range percentileBands {
		result.DistributionSeries[band.name] = []float64{}
	}

	if len(matches) == 0 {
		return result
	}

	h := horizon.Days()

	// Percentile bands per day-offset across all matches.
	for _, band := range percentileBands {
		seriesVals := make([]float64, h)
		sample := make([]float64, 0, len(matches))
		for offset := 0; offset < h; offset++ {
			sample = sample[:0]
			for _, m := range matches {
				if offset < len(m.AftermathReturns) {
					sample = append(sample, m.AftermathReturns[offset])
				}
			}
			seriesVals[offset] = formulas.Quantile(band.p, sample)
		}
		result.DistributionSeries[band.name] = seriesVals
	}

	// Summary statistics over terminal and intra-path outcomes.
	terminals := make([]float64, 0, len(matches))
	scores := make([]float64, 0, len(matches))
	positive := 0
	sumMinReturn := 0.0

	for _, m := range matches {
		terminal := m.AftermathReturns[len(m.AftermathReturns)-1]
		terminals = append(terminals, terminal)
		scores = append(scores, m.CompositeScore)

		if terminal > 0 {
			positive++
		}

		minReturn := 0.0
		for _, r := range m.AftermathReturns {
			if r < minReturn {
				minReturn = r
			}
		}
		sumMinReturn += minReturn
	}

	p50 := result.DistributionSeries["p50"]
	result.Stats = &OverlayStats{
		MedianReturn: p50[len(p50)-1],
		HitRate:      float64(positive) / float64(len(matches)),
		AvgMaxDD:     sumMinReturn / float64(len(matches)),
		TailRiskP95:  formulas.Quantile(0.05, terminals),
		Entropy:      formulas.EntropyDeficit(scores),
		SampleSize:   len(matches),
		EffectiveN:   formulas.EffectiveN(scores),
	}

	return result
}
