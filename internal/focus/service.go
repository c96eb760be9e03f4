// Package focus orchestrates a full forecast build for one (symbol, horizon,
// asOf, phase) key: series snapshot, analog matching, aftermath aggregation,
// synthetic forecast, divergence and risk sizing, bundled into a FocusPack.
package focus

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/calibration"
	"github.com/aristath/fractal/internal/config"
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/events"
	"github.com/aristath/fractal/internal/fractal"
	"github.com/aristath/fractal/internal/risk"
	"github.com/aristath/fractal/internal/series"
)

// Request identifies one focus build.
type Request struct {
	Symbol        string
	Horizon       domain.Horizon
	AsOf          *time.Time         // simulation mode when set
	Phase         *domain.PhaseLabel // restrict analogs to a phase
	MatchOverride string             // primary-match id override
	Preset        domain.RiskPreset
}

// Pack is the full forecast bundle for one focus key.
type Pack struct {
	Symbol             string                        `json:"symbol"`
	Horizon            int                           `json:"horizon"`
	AsOf               string                        `json:"asOf,omitempty"`
	CurrentWindow      []float64                     `json:"currentWindow"`
	Matches            []fractal.HistoricalMatch     `json:"matches"`
	Stats              *fractal.OverlayStats         `json:"stats"`
	DistributionSeries map[string][]float64          `json:"distributionSeries"`
	Forecast           fractal.ForecastPack          `json:"forecast"`
	Divergence         fractal.DivergenceMetrics     `json:"divergence"`
	Decision           risk.SizingDecision           `json:"decision"`
	Diagnostics        risk.Diagnostics              `json:"diagnostics"`
	Phase              domain.PhaseLabel             `json:"phase"`
	VolRegime          domain.VolRegime              `json:"regime"`
	VolSpike           float64                       `json:"volSpike"`
	Calibration        calibration.SymbolCalibration `json:"calibration"`
	CurrentPrice       float64                       `json:"currentPrice"`
	GeneratedAt        time.Time                     `json:"generatedAt"`
}

// Overlay reconstructs the OverlayResult view of the pack.
func (p *Pack) Overlay() fractal.OverlayResult {
	return fractal.OverlayResult{
		Matches:            p.Matches,
		Stats:              p.Stats,
		DistributionSeries: p.DistributionSeries,
	}
}

// Service builds FocusPacks. Each build is a pure computation over the candle
// snapshot and the calibration snapshot; the cache and in-flight registry are
// the only shared state, and both are safe for concurrent use.
type Service struct {
	store      *series.Store
	matcher    *fractal.Matcher
	forecaster *fractal.Forecaster
	riskEngine *risk.Engine
	monitor    *calibration.Monitor
	cache      *Cache
	inflight   *inflightRegistry
	bus        *events.Bus
	cfg        config.MatcherConfig
	log        zerolog.Logger
}

// NewService wires the focus build pipeline.
func NewService(
	store *series.Store,
	matcher *fractal.Matcher,
	forecaster *fractal.Forecaster,
	riskEngine *risk.Engine,
	monitor *calibration.Monitor,
	cache *Cache,
	bus *events.Bus,
	cfg config.MatcherConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:      store,
		matcher:    matcher,
		forecaster: forecaster,
		riskEngine: riskEngine,
		monitor:    monitor,
		cache:      cache,
		inflight:   newInflightRegistry(),
		bus:        bus,
		cfg:        cfg,
		log:        log.With().Str("component", "focus_service").Logger(),
	}
}

// cacheKey is the request signature for cacheable builds.
func cacheKey(req Request) string {
	asOf := "latest"
	if req.AsOf != nil {
		asOf = req.AsOf.Format("2006-01-02")
	}
	phase := "all"
	if req.Phase != nil {
		phase = string(*req.Phase)
	}
	return fmt.Sprintf("focus:%s:%s:%s:%s", req.Symbol, req.Horizon, asOf, phase)
}

// cacheable reports whether a request uses the default primary match and
// preset, i.e. matches the (symbol, horizon, asOf, phase) cache signature.
func cacheable(req Request) bool {
	return req.MatchOverride == "" && (req.Preset == "" || req.Preset == domain.PresetBalanced)
}

// Build produces the FocusPack for a request, serving from cache when a
// fresh entry exists. Concurrent builds for the same key follow
// last-requested-wins: a superseded build is cancelled and its result
// discarded instead of racing the cache entry. Requests with a match
// override or non-default preset bypass both the cache and the registry,
// so they never cancel an in-flight default build for the same symbol.
func (s *Service) Build(ctx context.Context, req Request) (*Pack, error) {
	if req.Preset == "" {
		req.Preset = domain.PresetBalanced
	}

	if !cacheable(req) {
		return s.build(ctx, req)
	}

	key := cacheKey(req)
	var cached Pack
	if hit, err := s.cache.Get(key, &cached); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, rebuilding")
	} else if hit {
		return &cached, nil
	}

	buildCtx, token := s.inflight.begin(ctx, key)
	defer s.inflight.release(key, token)

	pack, err := s.build(buildCtx, req)
	if err != nil {
		return nil, err
	}

	if s.inflight.commit(key, token) {
		if err := s.cache.Set(key, pack, DefaultTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
		s.bus.Publish(events.FocusRebuilt, map[string]interface{}{
			"symbol":  req.Symbol,
			"horizon": req.Horizon.Days(),
		})

		// Live builds feed the drift monitor; simulations do not.
		if req.AsOf == nil && pack.Stats != nil {
			if err := s.monitor.RecordForecast(req.Symbol, req.Horizon, time.Now().UTC(), pack.Stats.MedianReturn); err != nil {
				s.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("Failed to record forecast for calibration")
			}
		}
	}

	return pack, nil
}

// build runs the full pipeline without cache interaction.
func (s *Service) build(ctx context.Context, req Request) (*Pack, error) {
	candles, err := s.store.CandlesForBuild(req.Symbol, req.AsOf, s.matcher.MinHistory(req.Horizon))
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches, err := s.matcher.Match(candles, req.Horizon, req.Phase)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	overlay := fractal.Aggregate(matches, req.Horizon)
	closes := series.Closes(candles)
	currentPrice := closes[len(closes)-1]
	forecast := s.forecaster.Forecast(closes, req.Horizon)

	var divergence fractal.DivergenceMetrics
	primary := overlay.PrimaryMatch(req.MatchOverride)
	if req.MatchOverride != "" && primary == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownMatch, req.MatchOverride)
	}
	if primary != nil {
		divergence = fractal.Diverge(forecast, primary.AftermathReturns, currentPrice, req.Horizon)
	} else {
		divergence.Agreement = fractal.AgreementWeak
	}

	cal := s.monitor.Snapshot().For(req.Symbol)

	inputs := risk.Inputs{
		Overlay:          overlay.Stats,
		Divergence:       divergence,
		VolRegime:        fractal.ClassifyVolRegime(closes),
		VolSpike:         fractal.VolSpikeRatio(closes),
		Calibration:      cal,
		PresetMultiplier: req.Preset.Multiplier(),
	}

	windowCloses := closes[len(closes)-s.cfg.WindowLen:]

	pack := &Pack{
		Symbol:             req.Symbol,
		Horizon:            req.Horizon.Days(),
		CurrentWindow:      fractal.NewNormalizedWindow(windowCloses).Shape,
		Matches:            overlay.Matches,
		Stats:              overlay.Stats,
		DistributionSeries: overlay.DistributionSeries,
		Forecast:           forecast,
		Divergence:         divergence,
		Decision:           s.riskEngine.Decide(inputs),
		Diagnostics:        s.riskEngine.Diagnose(inputs),
		Phase:              fractal.ClassifyPhase(windowCloses),
		VolRegime:          inputs.VolRegime,
		VolSpike:           inputs.VolSpike,
		Calibration:        cal,
		CurrentPrice:       currentPrice,
		GeneratedAt:        time.Now().UTC(),
	}
	if req.AsOf != nil {
		pack.AsOf = req.AsOf.Format("2006-01-02")
	}

	return pack, nil
}

// Replay returns the full aftermath path of one historical match.
func (s *Service) Replay(ctx context.Context, symbol string, horizon domain.Horizon, matchID string) (*fractal.HistoricalMatch, error) {
	pack, err := s.Build(ctx, Request{Symbol: symbol, Horizon: horizon})
	if err != nil {
		return nil, err
	}

	for i := range pack.Matches {
		if pack.Matches[i].ID == matchID {
			return &pack.Matches[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownMatch, matchID)
}

// ReDecide re-runs risk sizing for a pack with the horizon-conflict signal
// set, replacing its decision and diagnostics. Used after consensus detects
// cross-horizon disagreement.
func (s *Service) ReDecide(pack *Pack, preset domain.RiskPreset, horizonConflict bool) {
	inputs := risk.Inputs{
		Overlay:          pack.Stats,
		Divergence:       pack.Divergence,
		VolRegime:        pack.VolRegime,
		VolSpike:         pack.VolSpike,
		Calibration:      pack.Calibration,
		PresetMultiplier: preset.Multiplier(),
		HorizonConflict:  horizonConflict,
	}

	pack.Decision = s.riskEngine.Decide(inputs)
	pack.Diagnostics = s.riskEngine.Diagnose(inputs)
}

// InvalidateSymbol drops all cached packs for a symbol, called when its
// underlying history refreshes.
func (s *Service) InvalidateSymbol(symbol string) error {
	return s.cache.InvalidatePrefix("focus:" + symbol + ":")
}
