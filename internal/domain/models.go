// Package domain holds the core data model shared across the forecasting
// engine: candles, horizons, and the enums used by matching, risk and
// consensus.
package domain

import (
	"fmt"
	"time"
)

// Candle represents one daily OHLC price bar. Candles are immutable, ordered
// by date and unique per date within a series.
type Candle struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Horizon is a forecast length in days.
type Horizon int

// Core horizons evaluated by consensus. The overlay and replay endpoints
// additionally accept the extended horizons for display purposes.
const (
	Horizon7   Horizon = 7
	Horizon14  Horizon = 14
	Horizon30  Horizon = 30
	Horizon90  Horizon = 90
	Horizon180 Horizon = 180
	Horizon365 Horizon = 365
)

// CoreHorizons is the set reconciled by consensus.
var CoreHorizons = []Horizon{Horizon7, Horizon14, Horizon30, Horizon90}

// OverlayHorizons is the full set accepted by overlay/replay queries.
var OverlayHorizons = []Horizon{Horizon7, Horizon14, Horizon30, Horizon90, Horizon180, Horizon365}

// Days returns the horizon length in days.
func (h Horizon) Days() int { return int(h) }

// String implements fmt.Stringer ("30d").
func (h Horizon) String() string { return fmt.Sprintf("%dd", int(h)) }

// ParseHorizon validates a day count against the overlay horizon set.
func ParseHorizon(days int) (Horizon, error) {
	for _, h := range OverlayHorizons {
		if int(h) == days {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidHorizon, days)
}

// IsCore reports whether the horizon participates in consensus.
func (h Horizon) IsCore() bool {
	for _, c := range CoreHorizons {
		if h == c {
			return true
		}
	}
	return false
}

// VolRegime classifies the current volatility environment.
type VolRegime string

const (
	VolRegimeLow         VolRegime = "LOW"
	VolRegimeMedium      VolRegime = "MEDIUM"
	VolRegimeHigh        VolRegime = "HIGH"
	VolRegimeCrisis      VolRegime = "CRISIS"
	VolRegimeContraction VolRegime = "CONTRACTION"
	VolRegimeExpansion   VolRegime = "EXPANSION"
)

// Action is a directional trading call.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionHold  Action = "HOLD"
)

// RiskLevel is the display-level risk classification, derived independently
// from the blocker outcome.
type RiskLevel string

const (
	RiskLevelNormal   RiskLevel = "NORMAL"
	RiskLevelElevated RiskLevel = "ELEVATED"
	RiskLevelCrisis   RiskLevel = "CRISIS"
)

// SizeLabel buckets a final position size for display.
type SizeLabel string

const (
	SizeNone    SizeLabel = "NONE"
	SizeMicro   SizeLabel = "MICRO"
	SizePartial SizeLabel = "PARTIAL"
	SizeFull    SizeLabel = "FULL"
)

// Severity tags a sizing adjustment.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

// BlockerCode is a hard condition that forces position size to zero.
type BlockerCode string

const (
	BlockerLowConfidence   BlockerCode = "LOW_CONFIDENCE"
	BlockerHighEntropy     BlockerCode = "HIGH_ENTROPY"
	BlockerVolCrisis       BlockerCode = "VOL_CRISIS"
	BlockerExtremeVolSpike BlockerCode = "EXTREME_VOL_SPIKE"
	BlockerConstitution    BlockerCode = "CONSTITUTION_BLOCK"
	BlockerDriftCritical   BlockerCode = "DRIFT_CRITICAL"
	BlockerNoSignal        BlockerCode = "NO_SIGNAL"
	BlockerConflictHigh    BlockerCode = "CONFLICT_HIGH"
)

// DivergenceFlag marks a threshold breach between the synthetic forecast and
// the primary analog replay.
type DivergenceFlag string

const (
	FlagHighDivergence DivergenceFlag = "HIGH_DIVERGENCE"
	FlagLowCorr        DivergenceFlag = "LOW_CORR"
	FlagTermDrift      DivergenceFlag = "TERM_DRIFT"
	FlagDirMismatch    DivergenceFlag = "DIR_MISMATCH"
	FlagPerfectMatch   DivergenceFlag = "PERFECT_MATCH"
)

// RiskPreset scales the base position size before blocker checks.
type RiskPreset string

const (
	PresetConservative RiskPreset = "CONSERVATIVE"
	PresetBalanced     RiskPreset = "BALANCED"
	PresetAggressive   RiskPreset = "AGGRESSIVE"
)

// Multiplier returns the preset scaling applied to the base size.
func (p RiskPreset) Multiplier() float64 {
	switch p {
	case PresetConservative:
		return 0.5
	case PresetAggressive:
		return 1.5
	default:
		return 1.0
	}
}

// ParsePreset normalizes a preset string, defaulting to BALANCED.
func ParsePreset(s string) RiskPreset {
	switch RiskPreset(s) {
	case PresetConservative, PresetBalanced, PresetAggressive:
		return RiskPreset(s)
	}
	return PresetBalanced
}

// PhaseLabel classifies the market phase of a price window.
type PhaseLabel string

const (
	PhaseMarkup       PhaseLabel = "markup"
	PhaseMarkdown     PhaseLabel = "markdown"
	PhaseAccumulation PhaseLabel = "accumulation"
	PhaseDistribution PhaseLabel = "distribution"
)

// ParsePhase validates a phase filter string. An empty string means no
// filter and returns nil.
func ParsePhase(s string) (*PhaseLabel, error) {
	if s == "" {
		return nil, nil
	}
	switch PhaseLabel(s) {
	case PhaseMarkup, PhaseMarkdown, PhaseAccumulation, PhaseDistribution:
		p := PhaseLabel(s)
		return &p, nil
	}
	return nil, fmt.Errorf("unknown phase %q", s)
}

// ForwardRole distinguishes live decisions from shadow (paper) tracking.
type ForwardRole string

const (
	RoleActive ForwardRole = "ACTIVE"
	RoleShadow ForwardRole = "SHADOW"
)
