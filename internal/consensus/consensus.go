// Package consensus cross-checks a symbol's forecast across all core
// horizons and reports whether they agree on a direction.
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/config"
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/events"
	"github.com/aristath/fractal/internal/focus"
)

// PackBuilder builds a FocusPack for one horizon. Implemented by
// focus.Service.
type PackBuilder interface {
	Build(ctx context.Context, req focus.Request) (*focus.Pack, error)
}

// Direction is a horizon's vote.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionHold  Direction = "HOLD"
)

// HorizonVote is one horizon's contribution to the consensus.
type HorizonVote struct {
	Horizon      int       `json:"horizon"`
	Direction    Direction `json:"direction"`
	MedianReturn float64   `json:"medianReturn"`
	FinalSize    float64   `json:"finalSize"`
	Error        string    `json:"error,omitempty"`
}

// Result is the cross-horizon consensus for one symbol.
type Result struct {
	Symbol       string        `json:"symbol"`
	Votes        []HorizonVote `json:"votes"`
	Direction    Direction     `json:"direction"`
	Strength     float64       `json:"strength"`
	Quorum       bool          `json:"quorum"`
	Evaluated    int           `json:"evaluated"`
	ConflictHigh bool          `json:"conflictHigh"`
	EvaluatedAt  time.Time     `json:"evaluatedAt"`
}

// Engine evaluates per-horizon forecasts in parallel and folds them into a
// single directional verdict.
type Engine struct {
	builder PackBuilder
	bus     *events.Bus
	cfg     config.ConsensusConfig
	log     zerolog.Logger

	mu   sync.Mutex
	last map[string]Direction
}

func NewEngine(builder PackBuilder, bus *events.Bus, cfg config.ConsensusConfig, log zerolog.Logger) *Engine {
	return &Engine{
		builder: builder,
		bus:     bus,
		cfg:     cfg,
		log:     log.With().Str("component", "consensus").Logger(),
		last:    make(map[string]Direction),
	}
}

type voteResult struct {
	idx  int
	vote HorizonVote
	ok   bool
}

// Evaluate builds all core horizons for the symbol concurrently and counts
// directional votes. Failed horizons are excluded from the electorate rather
// than failing the whole evaluation; the quorum is only reachable when enough
// horizons actually produced a verdict.
func (e *Engine) Evaluate(ctx context.Context, symbol string, preset domain.RiskPreset) (*Result, error) {
	horizons := domain.CoreHorizons
	results := make(chan voteResult, len(horizons))

	for i, h := range horizons {
		go func(idx int, horizon domain.Horizon) {
			pack, err := e.builder.Build(ctx, focus.Request{
				Symbol:  symbol,
				Horizon: horizon,
				Preset:  preset,
			})
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", symbol).Int("horizon", horizon.Days()).Msg("Horizon evaluation failed")
				results <- voteResult{idx: idx, vote: HorizonVote{Horizon: horizon.Days(), Error: err.Error()}}
				return
			}

			median := 0.0
			if pack.Stats != nil {
				median = pack.Stats.MedianReturn
			}

			results <- voteResult{
				idx: idx,
				vote: HorizonVote{
					Horizon:      horizon.Days(),
					Direction:    e.direction(median),
					MedianReturn: median,
					FinalSize:    pack.Decision.FinalSize,
				},
				ok: true,
			}
		}(i, h)
	}

	votes := make([]HorizonVote, len(horizons))
	evaluated := 0
	for range horizons {
		res := <-results
		votes[res.idx] = res.vote
		if res.ok {
			evaluated++
		}
	}

	result := e.tally(symbol, votes, evaluated)
	e.publishIfChanged(symbol, result.Direction)

	return result, nil
}

// direction maps a median terminal return to a vote, with a dead band
// around zero so noise does not register as conviction.
func (e *Engine) direction(medianReturn float64) Direction {
	switch {
	case medianReturn > e.cfg.DeadBand:
		return DirectionLong
	case medianReturn < -e.cfg.DeadBand:
		return DirectionShort
	default:
		return DirectionHold
	}
}

func (e *Engine) tally(symbol string, votes []HorizonVote, evaluated int) *Result {
	counts := map[Direction]int{}
	for _, v := range votes {
		if v.Error == "" {
			counts[v.Direction]++
		}
	}

	majority := DirectionHold
	majorityCount := 0
	for _, d := range []Direction{DirectionLong, DirectionShort, DirectionHold} {
		if counts[d] > majorityCount {
			majority = d
			majorityCount = counts[d]
		}
	}

	strength := 0.0
	if evaluated > 0 {
		strength = float64(majorityCount) / float64(evaluated)
	}

	quorum := majorityCount >= e.cfg.Quorum && majority != DirectionHold

	result := &Result{
		Symbol:       symbol,
		Votes:        votes,
		Direction:    DirectionHold,
		Strength:     strength,
		Quorum:       quorum,
		Evaluated:    evaluated,
		ConflictHigh: counts[DirectionLong] > 0 && counts[DirectionShort] > 0,
		EvaluatedAt:  time.Now().UTC(),
	}
	if quorum {
		result.Direction = majority
	}

	return result
}

func (e *Engine) publishIfChanged(symbol string, direction Direction) {
	e.mu.Lock()
	prev, seen := e.last[symbol]
	e.last[symbol] = direction
	e.mu.Unlock()

	if seen && prev != direction {
		e.bus.Publish(events.ConsensusChanged, map[string]interface{}{
			"symbol": symbol,
			"from":   prev,
			"to":     direction,
		})
	}
}
