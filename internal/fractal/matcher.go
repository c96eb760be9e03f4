package fractal

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/config"
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/series"
)

// Matcher finds the top-K historical analogs of the current price window.
type Matcher struct {
	cfg config.MatcherConfig
	log zerolog.Logger
}

// NewMatcher creates a pattern matcher with the given tunable weights.
func NewMatcher(cfg config.MatcherConfig, log zerolog.Logger) *Matcher {
	return &Matcher{
		cfg: cfg,
		log: log.With().Str("component", "matcher").Logger(),
	}
}

// MinHistory returns the minimum number of candles required to run a match
// for the given horizon: the current window, the horizon's aftermath, and at
// least one candidate window of history before them.
func (m *Matcher) MinHistory(horizon domain.Horizon) int {
	return 2*m.cfg.WindowLen + horizon.Days()
}

// Match scans all historical windows of the configured length and returns
// the top-K analogs of the current window, ordered by descending composite
// score. Selected anchors are spaced at least MinGapDays apart. An empty
// result means no candidate passed the similarity threshold; consumers treat
// that as "no signal", not an error.
func (m *Matcher) Match(candles []domain.Candle, horizon domain.Horizon, phaseFilter *domain.PhaseLabel) ([]HistoricalMatch, error) {
	L := m.cfg.WindowLen
	H := horizon.Days()

	if len(candles) < L+H {
		return nil, fmt.Errorf("%w: %d candles, need %d for window+horizon",
			domain.ErrDataUnavailable, len(candles), L+H)
	}

	closes := series.Closes(candles)
	current := NewNormalizedWindow(closes[len(closes)-L:])

	// Candidate windows must end at least H days before the series end so
	// their full aftermath exists.
	lastAnchor := len(candles) - L - H

	type candidate struct {
		anchorIdx int
		match     HistoricalMatch
	}

	var candidates []candidate
	for i := 0; i <= lastAnchor; i++ {
		windowCloses := closes[i : i+L]
		cand := NewNormalizedWindow(windowCloses)

		phase := ClassifyPhase(windowCloses)
		if phaseFilter != nil && phase != *phaseFilter {
			continue
		}

		breakdown := ScoreBreakdown{
			Similarity:     ShapeSimilarity(current, cand),
			Stability:      cand.Stability(),
			VolRegimeMatch: VolRegimeSimilarity(current, cand),
			DrawdownMatch:  DrawdownSimilarity(current, cand),
		}

		if breakdown.Similarity < m.cfg.MinSimilarity {
			continue
		}

		candidates = append(candidates, candidate{
			anchorIdx: i,
			match: HistoricalMatch{
				ID:               candles[i].Date.Format("2006-01-02"),
				AnchorDate:       candles[i].Date,
				Similarity:       breakdown.Similarity,
				CompositeScore:   m.composite(breakdown),
				Phase:            phase,
				AftermathReturns: aftermathReturns(closes, i+L-1, H),
				Breakdown:        breakdown,
			},
		})
	}

	if len(candidates) == 0 {
		m.log.Debug().Int("horizon_days", H).Msg("No qualifying analogs found")
		return []HistoricalMatch{}, nil
	}

	// Rank by composite score; anchor date breaks ties so identical inputs
	// always produce identical output.
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].match.CompositeScore != candidates[b].match.CompositeScore {
			return candidates[a].match.CompositeScore > candidates[b].match.CompositeScore
		}
		return candidates[a].match.AnchorDate.Before(candidates[b].match.AnchorDate)
	})

	// Greedy selection with minimum anchor spacing to avoid near-duplicate
	// overlapping slices.
	selected := make([]HistoricalMatch, 0, m.cfg.TopK)
	var anchors []candidate
	for _, c := range candidates {
		if len(selected) == m.cfg.TopK {
			break
		}

		tooClose := false
		for _, s := range anchors {
			gap := c.match.AnchorDate.Sub(s.match.AnchorDate).Hours() / 24
			if gap < 0 {
				gap = -gap
			}
			if gap < float64(m.cfg.MinGapDays) {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}

		anchors = append(anchors, c)
		selected = append(selected, c.match)
	}

	m.log.Debug().
		Int("candidates", len(candidates)).
		Int("selected", len(selected)).
		Int("horizon_days", H).
		Msg("Pattern match complete")

	return selected, nil
}

// composite combines the breakdown into one score using the configured
// weights, normalized by the weight sum.
func (m *Matcher) composite(b ScoreBreakdown) float64 {
	weightSum := m.cfg.WeightSimilarity + m.cfg.WeightStability + m.cfg.WeightVolRegime + m.cfg.WeightDrawdown
	if weightSum == 0 {
		return 0
	}

	score := b.Similarity*m.cfg.WeightSimilarity +
		b.Stability*m.cfg.WeightStability +
		b.VolRegimeMatch*m.cfg.WeightVolRegime +
		b.DrawdownMatch*m.cfg.WeightDrawdown

	return score / weightSum
}

// aftermathReturns extracts the H returns following endIdx, normalized
// relative to the close at endIdx.
func aftermathReturns(closes []float64, endIdx, h int) []float64 {
	base := closes[endIdx]
	returns := make([]float64, h)
	for j := 1; j <= h; j++ {
		if base != 0 {
			returns[j-1] = (closes[endIdx+j] - base) / base
		}
	}
	return returns
}
