package fractal

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fractal/internal/config"
	"github.com/aristath/fractal/internal/domain"
)

func testMatcherConfig() config.MatcherConfig {
	return config.MatcherConfig{
		WindowLen:        10,
		TopK:             4,
		MinGapDays:       5,
		MinSimilarity:    0.2,
		WeightSimilarity: 0.45,
		WeightStability:  0.20,
		WeightVolRegime:  0.20,
		WeightDrawdown:   0.15,
	}
}

// syntheticCandles produces a daily series with a repeating wave so the
// matcher has genuinely recurring shapes to find.
func syntheticCandles(n int) []domain.Candle {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/5) + float64(i)*0.05
		candles[i] = domain.Candle{
			Date:  start.AddDate(0, 0, i),
			Open:  price,
			High:  price * 1.01,
			Low:   price * 0.99,
			Close: price,
		}
	}
	return candles
}

func TestMatcher_InsufficientHistory(t *testing.T) {
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())

	_, err := m.Match(syntheticCandles(12), domain.Horizon7, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestMatcher_Deterministic(t *testing.T) {
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())
	candles := syntheticCandles(200)

	first, err := m.Match(candles, domain.Horizon7, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.Match(candles, domain.Horizon7, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMatcher_RespectsMinGap(t *testing.T) {
	cfg := testMatcherConfig()
	m := NewMatcher(cfg, zerolog.Nop())

	matches, err := m.Match(syntheticCandles(200), domain.Horizon7, nil)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for i := range matches {
		for j := i + 1; j < len(matches); j++ {
			gap := math.Abs(matches[i].AnchorDate.Sub(matches[j].AnchorDate).Hours() / 24)
			assert.GreaterOrEqual(t, gap, float64(cfg.MinGapDays),
				"anchors %s and %s too close", matches[i].ID, matches[j].ID)
		}
	}
}

func TestMatcher_AftermathLengthEqualsHorizon(t *testing.T) {
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())

	matches, err := m.Match(syntheticCandles(200), domain.Horizon14, nil)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, match := range matches {
		assert.Len(t, match.AftermathReturns, 14)
	}
}

func TestMatcher_RankedByCompositeScore(t *testing.T) {
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())

	matches, err := m.Match(syntheticCandles(200), domain.Horizon7, nil)
	require.NoError(t, err)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].CompositeScore, matches[i].CompositeScore)
	}
}

func TestMatcher_NoQualifyingCandidates(t *testing.T) {
	cfg := testMatcherConfig()
	cfg.MinSimilarity = 1.1 // unreachable threshold

	m := NewMatcher(cfg, zerolog.Nop())

	matches, err := m.Match(syntheticCandles(200), domain.Horizon7, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotNil(t, matches)
}

func TestMatcher_SelectedMatchesAggregateBelowEntropyGate(t *testing.T) {
	// Matches that survive the similarity floor score in a narrow band; the
	// overlay entropy must reflect that consensus instead of saturating and
	// blocking every sizing decision downstream.
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())

	matches, err := m.Match(syntheticCandles(800), domain.Horizon30, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(matches), 2)

	result := Aggregate(matches, domain.Horizon30)
	require.NotNil(t, result.Stats)
	assert.Less(t, result.Stats.Entropy, 0.5)
}

func TestMatcher_FlatSeriesDoesNotPanic(t *testing.T) {
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())

	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	flat := make([]domain.Candle, 120)
	for i := range flat {
		flat[i] = domain.Candle{Date: start.AddDate(0, 0, i), Open: 75, High: 75, Low: 75, Close: 75}
	}

	matches, err := m.Match(flat, domain.Horizon7, nil)
	require.NoError(t, err)

	for _, match := range matches {
		for _, r := range match.AftermathReturns {
			assert.False(t, math.IsNaN(r))
			assert.Equal(t, 0.0, r)
		}
		assert.False(t, math.IsNaN(match.CompositeScore))
	}
}

func TestMatcher_PhaseFilter(t *testing.T) {
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())
	phase := domain.PhaseMarkup

	matches, err := m.Match(syntheticCandles(200), domain.Horizon7, &phase)
	require.NoError(t, err)

	for _, match := range matches {
		assert.Equal(t, domain.PhaseMarkup, match.Phase)
	}
}

func TestMatcher_MinHistory(t *testing.T) {
	m := NewMatcher(testMatcherConfig(), zerolog.Nop())

	assert.Equal(t, 27, m.MinHistory(domain.Horizon7))
	assert.Equal(t, 110, m.MinHistory(domain.Horizon90))
}
