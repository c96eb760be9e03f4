package calibration

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/series"
)

// Drift band classification thresholds.
const (
	driftWarning  = 0.40
	driftCritical = 0.70

	// ewmaAlpha controls how fast the rolling drift score adapts to new
	// forecast errors.
	ewmaAlpha = 0.2

	// staleAfter marks calibration data as stale when no update happened
	// within this window; stale symbols fall back to conservative defaults.
	staleAfter = 14 * 24 * time.Hour

	// conservativeReliability is the fallback when calibration data is
	// missing or stale. Deliberately below neutral so an uncalibrated symbol
	// never sizes at full confidence.
	conservativeReliability = 0.5
)

// Band classifies a symbol's drift severity.
type Band string

const (
	BandOK       Band = "OK"
	BandWarning  Band = "WARNING"
	BandCritical Band = "CRITICAL"
)

// SymbolCalibration is the read-side calibration signal for one symbol.
type SymbolCalibration struct {
	DriftScore  float64   `json:"driftScore"`
	Reliability float64   `json:"reliability"`
	Band        Band      `json:"band"`
	Samples     int       `json:"samples"`
	Stale       bool      `json:"stale"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Snapshot is an immutable copy of the monitor's state. Forecast builds read
// from a snapshot so a mid-computation update can never produce a partially
// updated view.
type Snapshot struct {
	taken   time.Time
	symbols map[string]SymbolCalibration
}

// For returns the calibration signal for a symbol. Missing or stale entries
// return a conservative default rather than failing.
func (s Snapshot) For(symbol string) SymbolCalibration {
	cal, ok := s.symbols[symbol]
	if !ok {
		return SymbolCalibration{
			DriftScore:  0,
			Reliability: conservativeReliability,
			Band:        BandOK,
			Stale:       true,
		}
	}

	if s.taken.Sub(cal.UpdatedAt) > staleAfter {
		cal.Stale = true
		if cal.Reliability > conservativeReliability {
			cal.Reliability = conservativeReliability
		}
	}

	return cal
}

// Monitor maintains per-symbol drift state. It is the only writer of
// calibration state; forecast builds are read-only consumers via Snapshot().
// The resolution loop is advisory and must never block a forecast request.
type Monitor struct {
	repo  *Repository
	store *series.Store
	log   zerolog.Logger

	mu    sync.RWMutex
	state map[string]SymbolCalibration
}

// NewMonitor creates a drift/calibration monitor, loading persisted state.
func NewMonitor(repo *Repository, store *series.Store, log zerolog.Logger) (*Monitor, error) {
	m := &Monitor{
		repo:  repo,
		store: store,
		log:   log.With().Str("component", "calibration_monitor").Logger(),
		state: make(map[string]SymbolCalibration),
	}

	records, err := repo.DriftStates()
	if err != nil {
		return nil, fmt.Errorf("failed to load drift states: %w", err)
	}
	for _, rec := range records {
		m.state[rec.Symbol] = fromRecord(rec)
	}

	return m, nil
}

// Name implements the scheduler Job interface.
func (m *Monitor) Name() string { return "calibration_monitor" }

// Run resolves all matured forecasts against realized prices and updates the
// rolling drift scores. Failures on one symbol do not affect others.
func (m *Monitor) Run() error {
	now := time.Now().UTC()

	due, err := m.repo.DueForecasts(now)
	if err != nil {
		return err
	}

	resolved := 0
	for _, f := range due {
		if err := m.resolveOne(f, now); err != nil {
			m.log.Warn().Err(err).
				Str("symbol", f.Symbol).
				Int64("forecast_id", f.ID).
				Msg("Failed to resolve forecast")
			continue
		}
		resolved++
	}

	if resolved > 0 {
		m.log.Info().Int("resolved", resolved).Msg("Calibration pass complete")
	}

	return nil
}

// RecordForecast registers a freshly issued forecast for later scoring.
func (m *Monitor) RecordForecast(symbol string, horizon domain.Horizon, issuedAt time.Time, forecastReturn float64) error {
	return m.repo.RecordForecast(symbol, horizon.Days(), issuedAt, forecastReturn)
}

// Snapshot returns an immutable copy of the current calibration state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make(map[string]SymbolCalibration, len(m.state))
	for k, v := range m.state {
		symbols[k] = v
	}

	return Snapshot{taken: time.Now().UTC(), symbols: symbols}
}

// resolveOne scores a single matured forecast and folds its error into the
// symbol's rolling drift score.
func (m *Monitor) resolveOne(f IssuedForecast, now time.Time) error {
	realized, err := m.realizedReturn(f)
	if err != nil {
		return err
	}

	if err := m.repo.Resolve(f.ID, realized, now); err != nil {
		return err
	}

	// Error is normalized against the forecast magnitude with a floor so
	// small-return periods don't explode the ratio.
	errAbs := math.Abs(f.ForecastReturn - realized)
	scale := math.Max(math.Abs(f.ForecastReturn), 0.02)
	sampleError := math.Min(1, errAbs/scale/2)

	m.mu.Lock()
	cal := m.state[f.Symbol]
	if cal.Samples == 0 {
		cal.DriftScore = sampleError
	} else {
		cal.DriftScore = cal.DriftScore*(1-ewmaAlpha) + sampleError*ewmaAlpha
	}
	cal.Samples++
	cal.UpdatedAt = now
	cal.Band = classify(cal.DriftScore)
	cal.Reliability = math.Max(0, 1-cal.DriftScore)
	cal.Stale = false
	m.state[f.Symbol] = cal
	m.mu.Unlock()

	return m.repo.UpsertDriftState(DriftRecord{
		Symbol:     f.Symbol,
		DriftScore: cal.DriftScore,
		Samples:    cal.Samples,
		UpdatedAt:  now,
	})
}

// realizedReturn computes the return actually observed from the forecast's
// issue date to its target date.
func (m *Monitor) realizedReturn(f IssuedForecast) (float64, error) {
	candles, err := m.store.Candles(f.Symbol, &f.TargetDate)
	if err != nil {
		return 0, err
	}

	var issueClose, targetClose float64
	for _, c := range candles {
		if !c.Date.After(f.IssuedAt) {
			issueClose = c.Close
		}
		targetClose = c.Close
	}

	if issueClose == 0 {
		return 0, fmt.Errorf("%w: no close at or before %s for %s",
			domain.ErrDataUnavailable, f.IssuedAt.Format("2006-01-02"), f.Symbol)
	}

	return (targetClose - issueClose) / issueClose, nil
}

func classify(score float64) Band {
	switch {
	case score >= driftCritical:
		return BandCritical
	case score >= driftWarning:
		return BandWarning
	default:
		return BandOK
	}
}

func fromRecord(rec DriftRecord) SymbolCalibration {
	return SymbolCalibration{
		DriftScore:  rec.DriftScore,
		Reliability: math.Max(0, 1-rec.DriftScore),
		Band:        classify(rec.DriftScore),
		Samples:     rec.Samples,
		UpdatedAt:   rec.UpdatedAt,
	}
}
