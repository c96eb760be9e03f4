// Package risk converts forecast diagnostics and drawdown statistics into a
// risk-gated position-sizing decision.
package risk

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/calibration"
	"github.com/aristath/fractal/internal/config"
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/fractal"
)

// Size-label thresholds.
const (
	microThreshold   = 0.25
	partialThreshold = 0.50
)

// Mode of the final decision.
type Mode string

const (
	ModeTrade   Mode = "TRADE"
	ModeNoTrade Mode = "NO_TRADE"
)

// DiagnosticStatus grades a [0,1] diagnostic value.
type DiagnosticStatus string

const (
	StatusOK    DiagnosticStatus = "ok"
	StatusWarn  DiagnosticStatus = "warn"
	StatusBlock DiagnosticStatus = "block"
)

// Diagnostic is one normalized signal with its grading.
type Diagnostic struct {
	Value  float64          `json:"value"`
	Status DiagnosticStatus `json:"status"`
}

// Diagnostics bundles the normalized signals feeding the sizing decision.
type Diagnostics struct {
	Confidence  Diagnostic `json:"confidence"`
	Reliability Diagnostic `json:"reliability"`
	Entropy     Diagnostic `json:"entropy"`
	Stability   Diagnostic `json:"stability"`
}

// Adjustment is one multiplicative step in the sizing chain.
type Adjustment struct {
	Factor     string          `json:"factor"`
	Multiplier float64         `json:"multiplier"`
	Severity   domain.Severity `json:"severity"`
	Note       string          `json:"note"`
}

// SizingDecision is the final risk-gated output. FinalSize is always in
// [0,1] and exactly 0 whenever Blockers is non-empty.
type SizingDecision struct {
	FinalSize float64              `json:"finalSize"`
	SizeLabel domain.SizeLabel     `json:"sizeLabel"`
	Breakdown []Adjustment         `json:"breakdown"`
	Blockers  []domain.BlockerCode `json:"blockers"`
	Mode      Mode                 `json:"mode"`
	RiskLevel domain.RiskLevel     `json:"riskLevel"`
}

// Inputs carries everything the sizing engine evaluates. All fields are
// value parameters; the engine reads no ambient state.
type Inputs struct {
	Overlay     *fractal.OverlayStats
	Divergence  fractal.DivergenceMetrics
	VolRegime   domain.VolRegime
	VolSpike    float64 // short-vs-long realized vol ratio
	Calibration calibration.SymbolCalibration
	// PresetMultiplier scales the base size before blocker checks (0.5/1.0/1.5).
	PresetMultiplier float64
	// HorizonConflict is set when consensus disagrees strongly across horizons.
	HorizonConflict bool
}

// Engine applies the sizing policy: a base size from edge and confidence, an
// ordered multiplicative adjustment chain, and hard blockers that force the
// size to zero regardless of the chain.
type Engine struct {
	cfg config.RiskConfig
	log zerolog.Logger
}

// NewEngine creates a sizing engine with the given guardrail configuration.
func NewEngine(cfg config.RiskConfig, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "risk_engine").Logger(),
	}
}

// Diagnose derives the normalized diagnostics from overlay statistics,
// divergence metrics and calibration state.
func (e *Engine) Diagnose(in Inputs) Diagnostics {
	confidence := e.confidence(in)

	entropy := 0.0
	stability := 1.0
	if in.Overlay != nil {
		entropy = in.Overlay.Entropy
		if in.Overlay.SampleSize > 0 {
			// Fewer effective samples means less stable evidence.
			stability = math.Min(1, in.Overlay.EffectiveN/math.Max(1, float64(in.Overlay.SampleSize)))
		}
	}

	return Diagnostics{
		Confidence:  grade(confidence, e.cfg.MinConfidence, 0.5, false),
		Reliability: grade(in.Calibration.Reliability, 0.2, 0.5, false),
		Entropy:     grade(entropy, e.cfg.MaxEntropy, 0.6, true),
		Stability:   grade(stability, 0.2, 0.5, false),
	}
}

// Decide runs the full sizing policy.
func (e *Engine) Decide(in Inputs) SizingDecision {
	diags := e.Diagnose(in)
	blockers := e.blockers(in, diags)
	riskLevel := e.riskLevel(in)

	decision := SizingDecision{
		Blockers:  blockers,
		RiskLevel: riskLevel,
	}

	if len(blockers) > 0 {
		decision.FinalSize = 0
		decision.SizeLabel = domain.SizeNone
		decision.Mode = ModeNoTrade
		return decision
	}

	size := diags.Confidence.Value * in.PresetMultiplier
	var breakdown []Adjustment

	apply := func(factor string, multiplier float64, severity domain.Severity, note string) {
		size *= multiplier
		breakdown = append(breakdown, Adjustment{
			Factor:     factor,
			Multiplier: multiplier,
			Severity:   severity,
			Note:       note,
		})
	}

	if diags.Confidence.Status == StatusWarn {
		apply("confidence", 0.6, domain.SeverityWarn, "confidence below comfort band")
	}
	if diags.Entropy.Status == StatusWarn {
		apply("entropy", 0.7, domain.SeverityWarn, "analog outcomes widely dispersed")
	}

	switch in.VolRegime {
	case domain.VolRegimeHigh:
		apply("vol_regime", 0.5, domain.SeverityWarn, "elevated volatility regime")
	case domain.VolRegimeExpansion:
		apply("vol_regime", 0.8, domain.SeverityInfo, "volatility expanding")
	case domain.VolRegimeContraction:
		apply("vol_regime", 0.9, domain.SeverityInfo, "volatility contracting")
	}

	if in.Calibration.Band == calibration.BandWarning {
		apply("drift", 0.7, domain.SeverityWarn, "forecast drift above normal")
	}
	if in.Calibration.Stale {
		apply("calibration", 0.9, domain.SeverityInfo, "calibration data stale, sizing conservatively")
	}

	if in.Divergence.Agreement == fractal.AgreementWeak {
		apply("divergence", 0.8, domain.SeverityWarn, "synthetic and analog forecasts disagree")
	}

	if in.HorizonConflict {
		apply("horizon_conflict", 0.6, domain.SeverityWarn, "horizons disagree on direction")
	}

	// Constitution cap by regime, applied after the chain.
	if cap, ok := e.cfg.MaxSizeByRegime[string(in.VolRegime)]; ok && size > cap {
		apply("constitution", cap/size, domain.SeverityInfo, "capped by regime guardrail")
	}

	decision.FinalSize = clamp01(size)
	decision.Breakdown = breakdown
	decision.SizeLabel = sizeLabel(decision.FinalSize)
	decision.Mode = ModeTrade
	if decision.FinalSize == 0 {
		decision.SizeLabel = domain.SizeNone
		decision.Mode = ModeNoTrade
	}

	return decision
}

// confidence derives the edge confidence from overlay stats and divergence
// agreement. With no matches the confidence is zero.
func (e *Engine) confidence(in Inputs) float64 {
	if in.Overlay == nil || in.Overlay.SampleSize == 0 {
		return 0
	}

	// Hit-rate distance from a coin flip is the raw edge; entropy erodes it.
	edge := math.Abs(in.Overlay.HitRate-0.5) * 2
	conf := edge * (1 - in.Overlay.Entropy*0.5)

	switch in.Divergence.Agreement {
	case fractal.AgreementStrong:
		conf = math.Min(1, conf*1.2)
	case fractal.AgreementWeak:
		conf *= 0.8
	}

	// Reliability discounts everything multiplicatively.
	conf *= 0.5 + 0.5*in.Calibration.Reliability

	return clamp01(conf)
}

// blockers evaluates the hard gate conditions.
func (e *Engine) blockers(in Inputs, diags Diagnostics) []domain.BlockerCode {
	var blockers []domain.BlockerCode

	if in.Overlay == nil || in.Overlay.SampleSize == 0 {
		blockers = append(blockers, domain.BlockerNoSignal)
	}
	if diags.Confidence.Value < e.cfg.MinConfidence {
		blockers = append(blockers, domain.BlockerLowConfidence)
	}
	if in.Overlay != nil && in.Overlay.Entropy > e.cfg.MaxEntropy {
		blockers = append(blockers, domain.BlockerHighEntropy)
	}
	if in.VolRegime == domain.VolRegimeCrisis {
		blockers = append(blockers, domain.BlockerVolCrisis)
	}
	if in.VolSpike > e.cfg.VolSpikeRatio {
		blockers = append(blockers, domain.BlockerExtremeVolSpike)
	}
	if in.Calibration.Band == calibration.BandCritical {
		blockers = append(blockers, domain.BlockerDriftCritical)
	}
	if cap, ok := e.cfg.MaxSizeByRegime[string(in.VolRegime)]; ok && cap == 0 {
		blockers = append(blockers, domain.BlockerConstitution)
	}
	if in.HorizonConflict && in.Divergence.Agreement == fractal.AgreementWeak {
		blockers = append(blockers, domain.BlockerConflictHigh)
	}

	return blockers
}

// riskLevel grades display-level risk independently of the blocker outcome.
func (e *Engine) riskLevel(in Inputs) domain.RiskLevel {
	avgMaxDD := 0.0
	if in.Overlay != nil {
		avgMaxDD = in.Overlay.AvgMaxDD
	}

	switch {
	case in.VolRegime == domain.VolRegimeCrisis || avgMaxDD < -0.30:
		return domain.RiskLevelCrisis
	case in.VolRegime == domain.VolRegimeHigh || in.VolRegime == domain.VolRegimeExpansion || avgMaxDD < -0.15:
		return domain.RiskLevelElevated
	default:
		return domain.RiskLevelNormal
	}
}

func sizeLabel(size float64) domain.SizeLabel {
	switch {
	case size == 0:
		return domain.SizeNone
	case size < microThreshold:
		return domain.SizeMicro
	case size < partialThreshold:
		return domain.SizePartial
	default:
		return domain.SizeFull
	}
}

// grade classifies a diagnostic value. For inverted diagnostics (entropy)
// higher is worse.
func grade(value, blockAt, warnAt float64, inverted bool) Diagnostic {
	d := Diagnostic{Value: value, Status: StatusOK}
	if inverted {
		switch {
		case value > blockAt:
			d.Status = StatusBlock
		case value > warnAt:
			d.Status = StatusWarn
		}
		return d
	}

	switch {
	case value < blockAt:
		d.Status = StatusBlock
	case value < warnAt:
		d.Status = StatusWarn
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
