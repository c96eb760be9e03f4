package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// Correlation calculates the Pearson correlation coefficient between two datasets.
// Constant (zero-variance) inputs are handled explicitly: two flat series are
// perfectly correlated (1), a flat series against a moving one is uncorrelated (0).
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}

	xFlat := StdDev(x) == 0
	yFlat := StdDev(y) == 0
	if xFlat && yFlat {
		return 1
	}
	if xFlat || yFlat {
		return 0
	}

	return stat.Correlation(x, y, nil)
}

// Quantile returns the p-quantile (0 <= p <= 1) of the data using empirical
// interpolation. The input slice is not modified.
func Quantile(p float64, data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// RMSE calculates the root mean squared error between two equal-length series.
func RMSE(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}

	sum := 0.0
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(x)))
}

// NormalizedEntropy calculates Shannon entropy of a weight distribution,
// normalized to [0,1] by log(n). Values of 1 indicate maximum dispersion
// (no consensus), 0 indicates full concentration. Returns 0 for n <= 1.
func NormalizedEntropy(weights []float64) float64 {
	if len(weights) <= 1 {
		return 0
	}

	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, w := range weights {
		if w <= 0 {
			continue
		}
		p := w / total
		entropy -= p * math.Log(p)
	}

	return entropy / math.Log(float64(len(weights)))
}

// EntropyDeficit measures how far a weight distribution is from uniform, as
// 1 minus its normalized Shannon entropy. Equal weights yield 0 (every
// sample contributes evenly); a single dominant weight pushes toward 1 (the
// distribution is effectively one sample). Returns 0 for n <= 1, where no
// distribution exists to measure.
func EntropyDeficit(weights []float64) float64 {
	if len(weights) <= 1 {
		return 0
	}
	return 1 - NormalizedEntropy(weights)
}

// EffectiveN calculates the effective sample size of a weight distribution
// as the inverse Herfindahl index. Equal weights yield n, a single dominant
// weight yields a value close to 1.
func EffectiveN(weights []float64) float64 {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return 0
	}

	sumSq := 0.0
	for _, w := range weights {
		if w <= 0 {
			continue
		}
		p := w / total
		sumSq += p * p
	}
	if sumSq == 0 {
		return 0
	}

	return 1 / sumSq
}
