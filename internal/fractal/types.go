// Package fractal implements the historical-analog forecasting core: pattern
// matching against price history, aftermath aggregation, an independent
// synthetic forecast, and divergence scoring between the two.
package fractal

import (
	"time"

	"github.com/aristath/fractal/internal/domain"
)

// ScoreBreakdown itemizes the components of a match's composite score.
// All components are normalized to [0,1].
type ScoreBreakdown struct {
	Similarity     float64 `json:"similarity"`
	Stability      float64 `json:"stability"`
	VolRegimeMatch float64 `json:"volRegimeMatch"`
	DrawdownMatch  float64 `json:"drawdownMatch"`
}

// HistoricalMatch is one historical analog of the current price window.
// Immutable once produced; its lifetime is a single matching run.
type HistoricalMatch struct {
	ID             string            `json:"id"` // anchor date, YYYY-MM-DD
	AnchorDate     time.Time         `json:"anchorDate"`
	Similarity     float64           `json:"similarity"`
	CompositeScore float64           `json:"compositeScore"`
	Phase          domain.PhaseLabel `json:"phaseLabel"`
	// AftermathReturns holds the H subsequent returns, normalized relative to
	// the match's window-end close.
	AftermathReturns []float64      `json:"aftermathNormalized"`
	Breakdown        ScoreBreakdown `json:"scoreBreakdown"`
}

// OverlayStats summarizes the aftermath distribution of the selected matches.
type OverlayStats struct {
	MedianReturn float64 `json:"medianReturn"`
	HitRate      float64 `json:"hitRate"`
	AvgMaxDD     float64 `json:"avgMaxDD"`
	TailRiskP95  float64 `json:"tailRiskP95"`
	// Entropy measures score concentration: 0 when matches contribute evenly
	// (full consensus), approaching 1 when a single match dominates.
	Entropy    float64 `json:"entropy"`
	SampleSize int     `json:"sampleSize"`
	EffectiveN float64 `json:"effectiveN"`
}

// OverlayResult bundles the selected matches with their aggregated aftermath
// distribution. Stats is nil and DistributionSeries empty when no matches
// qualified; callers must handle that case explicitly.
type OverlayResult struct {
	Matches            []HistoricalMatch    `json:"matches"`
	Stats              *OverlayStats        `json:"stats"`
	DistributionSeries map[string][]float64 `json:"distributionSeries"`
}

// PrimaryMatch returns the top-ranked match, or the match with the given id
// when override is non-empty. Returns nil when no matches exist or the id is
// unknown.
func (r *OverlayResult) PrimaryMatch(override string) *HistoricalMatch {
	if len(r.Matches) == 0 {
		return nil
	}
	if override == "" {
		return &r.Matches[0]
	}
	for i := range r.Matches {
		if r.Matches[i].ID == override {
			return &r.Matches[i]
		}
	}
	return nil
}

// ForecastPack is the model-based synthetic forecast, independent of the
// historical analogs.
type ForecastPack struct {
	PricePath       []float64 `json:"pricePath"`
	UpperBand       []float64 `json:"upperBand"`
	LowerBand       []float64 `json:"lowerBand"`
	ConfidenceDecay []float64 `json:"confidenceDecay"`
	TailFloor       float64   `json:"tailFloor"`
}

// Agreement classifies how well the synthetic forecast tracks the primary
// analog replay.
type Agreement string

const (
	AgreementStrong   Agreement = "Strong"
	AgreementModerate Agreement = "Moderate"
	AgreementWeak     Agreement = "Weak"
)

// DivergenceMetrics quantifies (dis)agreement between the synthetic forecast
// and the primary analog's replay path. RMSE and TerminalDelta are expressed
// in percentage points.
type DivergenceMetrics struct {
	RMSE                float64                 `json:"rmse"`
	Corr                float64                 `json:"corr"`
	TerminalDelta       float64                 `json:"terminalDelta"`
	DirectionalMismatch float64                 `json:"directionalMismatch"`
	SamplePoints        int                     `json:"samplePoints"`
	Agreement           Agreement               `json:"agreement"`
	Flags               []domain.DivergenceFlag `json:"flags"`
}

// HasFlag reports whether the given flag was raised.
func (m *DivergenceMetrics) HasFlag(flag domain.DivergenceFlag) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
