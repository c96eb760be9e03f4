package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}

	return StdDev(dailyReturns) * math.Sqrt(252)
}

// RealizedVolatility calculates the trailing realized volatility of a price
// series over the given lookback, annualized. Returns 0 when the series is
// too short.
func RealizedVolatility(closes []float64, lookback int) float64 {
	if len(closes) < 2 {
		return 0
	}
	if lookback > 0 && len(closes) > lookback+1 {
		closes = closes[len(closes)-lookback-1:]
	}

	return AnnualizedVolatility(CalculateReturns(closes))
}

// CalculateRSI calculates the Relative Strength Index
//
// RSI Formula:
//   RSI = 100 - (100 / (1 + RS))
//   where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if insufficient data.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)

	if len(rsi) > 0 && !math.IsNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// CalculateATR calculates the Average True Range from OHLC components.
// Returns nil if insufficient data.
func CalculateATR(highs, lows, closes []float64, length int) *float64 {
	if len(closes) < length+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, length)

	if len(atr) > 0 && !math.IsNaN(atr[len(atr)-1]) {
		result := atr[len(atr)-1]
		return &result
	}

	return nil
}

// TrendSlope returns the average daily log-price slope over the trailing
// lookback using a simple moving average crossover of short vs long windows.
// Positive values indicate an uptrend.
func TrendSlope(closes []float64, lookback int) float64 {
	if len(closes) < lookback || lookback < 4 {
		return 0
	}

	window := closes[len(closes)-lookback:]
	shortSMA := talib.Sma(window, lookback/4)
	longSMA := talib.Sma(window, lookback)

	s := shortSMA[len(shortSMA)-1]
	l := longSMA[len(longSMA)-1]
	if math.IsNaN(s) || math.IsNaN(l) || l == 0 {
		return 0
	}

	return (s - l) / l
}
