package fractal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNormalizedWindow_AnchorsAtZero(t *testing.T) {
	w := NewNormalizedWindow([]float64{100, 110, 120})

	assert.Len(t, w.Shape, 3)
	assert.Equal(t, 0.0, w.Shape[0])
	assert.InDelta(t, 0.10, w.Shape[1], 1e-9)
	assert.InDelta(t, 0.20, w.Shape[2], 1e-9)
}

func TestNewNormalizedWindow_FlatSeries(t *testing.T) {
	w := NewNormalizedWindow([]float64{50, 50, 50, 50, 50, 50})

	for _, v := range w.Shape {
		assert.Equal(t, 0.0, v)
	}
	assert.Equal(t, 0.0, w.Vol)
	assert.Equal(t, 1.0, w.Stability())
}

func TestShapeSimilarity(t *testing.T) {
	up := NewNormalizedWindow([]float64{100, 102, 104, 106, 108, 110})
	down := NewNormalizedWindow([]float64{100, 98, 96, 94, 92, 90})
	flat := NewNormalizedWindow([]float64{100, 100, 100, 100, 100, 100})

	// Identical shape maps to 1, mirrored shape to 0
	assert.InDelta(t, 1.0, ShapeSimilarity(up, up), 1e-9)
	assert.InDelta(t, 0.0, ShapeSimilarity(up, down), 1e-9)

	// Two flat windows are treated as identical, one flat side is neutral
	assert.InDelta(t, 1.0, ShapeSimilarity(flat, flat), 1e-9)
	assert.InDelta(t, 0.5, ShapeSimilarity(flat, up), 1e-9)
}

func TestVolRegimeSimilarity_FlatWindows(t *testing.T) {
	flat := NewNormalizedWindow([]float64{100, 100, 100, 100})
	moving := NewNormalizedWindow([]float64{100, 105, 95, 102})

	assert.Equal(t, 1.0, VolRegimeSimilarity(flat, flat))

	sim := VolRegimeSimilarity(flat, moving)
	assert.GreaterOrEqual(t, sim, 0.0)
	assert.Less(t, sim, 1.0)
}

func TestDrawdownSimilarity_Range(t *testing.T) {
	a := NewNormalizedWindow([]float64{100, 120, 90, 110, 100})
	b := NewNormalizedWindow([]float64{200, 240, 180, 220, 200})
	c := NewNormalizedWindow([]float64{100, 101, 102, 103, 104})

	// Same relative drawdown structure at different price levels
	assert.InDelta(t, 1.0, DrawdownSimilarity(a, b), 1e-6)

	sim := DrawdownSimilarity(a, c)
	assert.GreaterOrEqual(t, sim, 0.0)
	assert.Less(t, sim, 1.0)
}
