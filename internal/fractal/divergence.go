package fractal

import (
	"math"

	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/pkg/formulas"
)

// Divergence thresholds. RMSE and terminal-delta values are percentage
// points over the horizon's return paths.
const (
	divStrongRMSE   = 5.0
	divStrongCorr   = 0.7
	divModerateRMSE = 15.0
	divModerateCorr = 0.4

	divHighRMSE        = 20.0
	divLowCorr         = 0.3
	divDirMismatch     = 0.55
	divTermDriftNear   = 10.0 // horizons <= 30d
	divTermDriftFar    = 20.0 // horizons > 30d
	termDriftFarCutoff = 30
)

// Diverge compares the synthetic forecast's price path with the primary
// analog's replay over the same horizon. Both paths are converted to
// percentage return series relative to their own starting level, so the
// comparison is scale-free. The output is a deterministic function of the
// two paths.
func Diverge(pack ForecastPack, replay []float64, basePrice float64, horizon domain.Horizon) DivergenceMetrics {
	model := toPercentReturns(pack.PricePath, basePrice)
	analog := make([]float64, len(replay))
	for i, r := range replay {
		analog[i] = r * 100
	}

	n := len(model)
	if len(analog) < n {
		n = len(analog)
	}
	model, analog = model[:n], analog[:n]

	metrics := DivergenceMetrics{SamplePoints: n}
	if n == 0 {
		metrics.Agreement = AgreementWeak
		return metrics
	}

	metrics.RMSE = formulas.RMSE(model, analog)
	metrics.Corr = formulas.Correlation(model, analog)
	metrics.TerminalDelta = model[n-1] - analog[n-1]
	metrics.DirectionalMismatch = directionalMismatch(model, analog)

	switch {
	case metrics.RMSE <= divStrongRMSE && metrics.Corr >= divStrongCorr:
		metrics.Agreement = AgreementStrong
	case metrics.RMSE <= divModerateRMSE && metrics.Corr >= divModerateCorr:
		metrics.Agreement = AgreementModerate
	default:
		metrics.Agreement = AgreementWeak
	}

	metrics.Flags = divergenceFlags(metrics, horizon)

	return metrics
}

// divergenceFlags raises threshold-based flags. PERFECT_MATCH fires only when
// no negative flag fired and both rmse and corr are in the strong band.
func divergenceFlags(m DivergenceMetrics, horizon domain.Horizon) []domain.DivergenceFlag {
	termDriftLimit := divTermDriftNear
	if horizon.Days() > termDriftFarCutoff {
		termDriftLimit = divTermDriftFar
	}

	var flags []domain.DivergenceFlag
	if m.RMSE > divHighRMSE {
		flags = append(flags, domain.FlagHighDivergence)
	}
	if m.Corr < divLowCorr {
		flags = append(flags, domain.FlagLowCorr)
	}
	if math.Abs(m.TerminalDelta) > termDriftLimit {
		flags = append(flags, domain.FlagTermDrift)
	}
	if m.DirectionalMismatch > divDirMismatch {
		flags = append(flags, domain.FlagDirMismatch)
	}

	if len(flags) == 0 && m.RMSE <= divStrongRMSE && m.Corr >= divStrongCorr {
		flags = append(flags, domain.FlagPerfectMatch)
	}

	return flags
}

// toPercentReturns converts a price path into percentage returns relative to
// the base price.
func toPercentReturns(path []float64, base float64) []float64 {
	returns := make([]float64, len(path))
	if base == 0 {
		return returns
	}
	for i, p := range path {
		returns[i] = (p - base) / base * 100
	}
	return returns
}

// directionalMismatch is the fraction of day-offsets where the sign of the
// model's daily move disagrees with the sign of the replay's daily move.
func directionalMismatch(model, analog []float64) float64 {
	if len(model) < 1 {
		return 0
	}

	mismatches := 0
	prevM, prevA := 0.0, 0.0
	for i := range model {
		dM := model[i] - prevM
		dA := analog[i] - prevA
		if sign(dM) != sign(dA) {
			mismatches++
		}
		prevM, prevA = model[i], analog[i]
	}

	return float64(mismatches) / float64(len(model))
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
