// Package forward tracks how issued strategy decisions would have performed.
// The served preset is recorded as the ACTIVE track; the other presets are
// evaluated on the same build and recorded as SHADOW tracks, so presets can
// be compared on realized outcomes before being promoted.
package forward

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/series"
)

// EquityPoint is one step of a replayed equity curve.
type EquityPoint struct {
	Date   string  `json:"date"`
	Equity float64 `json:"equity"`
	Symbol string  `json:"symbol"`
	Return float64 `json:"return"`
}

// EquityCurve is the replayed performance of one (preset, horizon, role)
// track, starting from 1.0.
type EquityCurve struct {
	Preset      string        `json:"preset"`
	Horizon     int           `json:"horizon"`
	Role        string        `json:"role"`
	Points      []EquityPoint `json:"points"`
	FinalEquity float64       `json:"finalEquity"`
	Trades      int           `json:"trades"`
	Wins        int           `json:"wins"`
}

// Tracker records strategy decisions and resolves them against realized
// prices once their horizon matures.
type Tracker struct {
	repo  *Repository
	store *series.Store
	log   zerolog.Logger
}

func NewTracker(repo *Repository, store *series.Store, log zerolog.Logger) *Tracker {
	return &Tracker{
		repo:  repo,
		store: store,
		log:   log.With().Str("component", "forward_tracker").Logger(),
	}
}

// Record appends one decision to the ledger. NO_TRADE decisions are recorded
// too, as zero-size rows, so the curve reflects time spent flat.
func (t *Tracker) Record(symbol string, preset domain.RiskPreset, horizon domain.Horizon, role domain.ForwardRole, direction string, finalSize, entryPrice float64) error {
	now := time.Now().UTC()
	return t.repo.Record(Decision{
		Symbol:      symbol,
		Preset:      string(preset),
		HorizonDays: horizon.Days(),
		Role:        string(role),
		Direction:   direction,
		FinalSize:   finalSize,
		EntryPrice:  entryPrice,
		DecidedAt:   now,
		TargetDate:  now.AddDate(0, 0, horizon.Days()),
	})
}

// Name implements the scheduler Job interface.
func (t *Tracker) Name() string { return "forward_resolver" }

// Run resolves every matured decision against the realized close. Symbols
// with missing data stay unresolved and are retried on the next run.
func (t *Tracker) Run() error {
	due, err := t.repo.Due(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to load due forward decisions: %w", err)
	}

	resolved := 0
	for _, d := range due {
		realized, err := t.realizedReturn(d)
		if err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				continue
			}
			t.log.Warn().Err(err).Str("symbol", d.Symbol).Int64("id", d.ID).Msg("Failed to resolve forward decision")
			continue
		}
		if err := t.repo.Resolve(d.ID, realized, time.Now().UTC()); err != nil {
			t.log.Warn().Err(err).Int64("id", d.ID).Msg("Failed to persist forward resolution")
			continue
		}
		resolved++
	}

	if resolved > 0 {
		t.log.Info().Int("resolved", resolved).Int("due", len(due)).Msg("Forward decisions resolved")
	}
	return nil
}

// realizedReturn computes the position return of one decision at maturity:
// the realized price move scaled by direction and size.
func (t *Tracker) realizedReturn(d Decision) (float64, error) {
	target := d.TargetDate
	closePrice, _, err := t.store.LatestClose(d.Symbol, &target)
	if err != nil {
		return 0, err
	}
	if d.EntryPrice <= 0 {
		return 0, fmt.Errorf("invalid entry price %.4f for decision %d", d.EntryPrice, d.ID)
	}

	move := (closePrice - d.EntryPrice) / d.EntryPrice
	if d.Direction == "SHORT" {
		move = -move
	}
	return move * d.FinalSize, nil
}

// Equity replays the resolved decisions of one track into an equity curve.
func (t *Tracker) Equity(preset domain.RiskPreset, horizon domain.Horizon, role domain.ForwardRole) (*EquityCurve, error) {
	decisions, err := t.repo.Resolved(string(preset), horizon.Days(), string(role))
	if err != nil {
		return nil, err
	}

	curve := &EquityCurve{
		Preset:      string(preset),
		Horizon:     horizon.Days(),
		Role:        string(role),
		Points:      []EquityPoint{},
		FinalEquity: 1.0,
	}

	equity := 1.0
	for _, d := range decisions {
		if d.RealizedReturn == nil {
			continue
		}
		equity *= 1 + *d.RealizedReturn
		curve.Points = append(curve.Points, EquityPoint{
			Date:   d.TargetDate.Format("2006-01-02"),
			Equity: equity,
			Symbol: d.Symbol,
			Return: *d.RealizedReturn,
		})
		if d.FinalSize > 0 {
			curve.Trades++
			if *d.RealizedReturn > 0 {
				curve.Wins++
			}
		}
	}
	curve.FinalEquity = equity

	return curve, nil
}
