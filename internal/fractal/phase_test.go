package fractal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/fractal/internal/domain"
)

func TestClassifyPhase(t *testing.T) {
	up := make([]float64, 60)
	down := make([]float64, 60)
	for i := range up {
		up[i] = 100 + float64(i)*2
		down[i] = 220 - float64(i)*2
	}

	assert.Equal(t, domain.PhaseMarkup, ClassifyPhase(up))
	assert.Equal(t, domain.PhaseMarkdown, ClassifyPhase(down))

	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 100
	}
	assert.Equal(t, domain.PhaseAccumulation, ClassifyPhase(flat))
}

func TestClassifyVolRegime_FlatSeries(t *testing.T) {
	flat := make([]float64, 120)
	for i := range flat {
		flat[i] = 42
	}

	assert.Equal(t, domain.VolRegimeLow, ClassifyVolRegime(flat))
}

func TestClassifyVolRegime_CalmSeries(t *testing.T) {
	// Tiny steady moves keep annualized vol well under the LOW threshold
	closes := make([]float64, 120)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		direction := 1.0
		if i%2 == 0 {
			direction = -1.0
		}
		closes[i] = closes[i-1] * (1 + direction*0.0005)
	}

	regime := ClassifyVolRegime(closes)
	assert.Contains(t, []domain.VolRegime{domain.VolRegimeLow, domain.VolRegimeMedium}, regime)
}

func TestVolSpikeRatio_FlatSeries(t *testing.T) {
	flat := make([]float64, 120)
	for i := range flat {
		flat[i] = 42
	}

	assert.Equal(t, 1.0, VolSpikeRatio(flat))
}

func TestVolSpikeRatio_SpikeDetected(t *testing.T) {
	closes := make([]float64, 120)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		step := 0.002
		if i >= len(closes)-10 {
			step = 0.08 // recent violence
		}
		direction := 1.0
		if i%2 == 0 {
			direction = -1.0
		}
		closes[i] = closes[i-1] * (1 + direction*step)
	}

	assert.Greater(t, VolSpikeRatio(closes), 3.0)
}
