package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/consensus"
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/focus"
	"github.com/aristath/fractal/internal/forward"
	"github.com/aristath/fractal/internal/risk"
	"github.com/aristath/fractal/internal/series"
)

// Handlers serves the forecast API.
type Handlers struct {
	focus     *focus.Service
	consensus *consensus.Engine
	forward   *forward.Tracker
	store     *series.Store
	log       zerolog.Logger
}

func NewHandlers(
	focusSvc *focus.Service,
	consensusEngine *consensus.Engine,
	tracker *forward.Tracker,
	store *series.Store,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		focus:     focusSvc,
		consensus: consensusEngine,
		forward:   tracker,
		store:     store,
		log:       log.With().Str("component", "handlers").Logger(),
	}
}

// HandleSymbols returns all symbols with available history.
func (h *Handlers) HandleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.store.Symbols()
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

// HandleOverlay serves the full FocusPack for a symbol and horizon.
// Query: symbol (required), aftermathDays or horizon (default 30),
// asOf (YYYY-MM-DD, simulation), phase, matchId.
func (h *Handlers) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseFocusRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	pack, err := h.focus.Build(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, pack)
}

// HandleReplay returns the aftermath path of one historical match.
func (h *Handlers) HandleReplay(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseFocusRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	matchID := r.URL.Query().Get("matchId")
	if matchID == "" {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "matchId is required"})
		return
	}

	match, err := h.focus.Replay(r.Context(), req.Symbol, req.Horizon, matchID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, match)
}

// strategyResponse is the decision view served to strategy consumers.
type strategyResponse struct {
	Symbol      string                   `json:"symbol"`
	Horizon     int                      `json:"horizon"`
	Preset      domain.RiskPreset        `json:"preset"`
	Action      domain.Action            `json:"action"`
	Edge        float64                  `json:"edge"`
	Decision    risk.SizingDecision      `json:"decision"`
	Levels      risk.TradeLevels         `json:"levels"`
	Diagnostics risk.Diagnostics         `json:"diagnostics"`
	Regime      domain.VolRegime         `json:"regime"`
	Consensus   *consensus.Result        `json:"consensus"`
	GeneratedAt time.Time                `json:"generatedAt"`
}

// HandleStrategy serves a sized decision for one symbol, horizon and preset.
// The served preset is tracked as ACTIVE and the other presets as SHADOW so
// their forward performance can be compared.
func (h *Handlers) HandleStrategy(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseFocusRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	served := domain.ParsePreset(r.URL.Query().Get("preset"))

	pack, err := h.focus.Build(r.Context(), focus.Request{Symbol: req.Symbol, Horizon: req.Horizon})
	if err != nil {
		h.respondError(w, err)
		return
	}

	cons, err := h.consensus.Evaluate(r.Context(), req.Symbol, domain.PresetBalanced)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("Consensus evaluation failed")
		cons = nil
	}
	conflict := cons != nil && cons.ConflictHigh

	var servedPack focus.Pack
	for _, preset := range []domain.RiskPreset{domain.PresetConservative, domain.PresetBalanced, domain.PresetAggressive} {
		presetPack := *pack
		h.focus.ReDecide(&presetPack, preset, conflict)

		role := domain.RoleShadow
		if preset == served {
			role = domain.RoleActive
			servedPack = presetPack
		}

		action := h.action(&presetPack)
		if err := h.forward.Record(req.Symbol, preset, req.Horizon, role, string(action), presetPack.Decision.FinalSize, presetPack.CurrentPrice); err != nil {
			h.log.Warn().Err(err).Str("symbol", req.Symbol).Str("preset", string(preset)).Msg("Failed to record forward decision")
		}
	}

	edge := 0.0
	if servedPack.Stats != nil {
		edge = servedPack.Stats.MedianReturn
	}

	h.respondJSON(w, http.StatusOK, strategyResponse{
		Symbol:      req.Symbol,
		Horizon:     req.Horizon.Days(),
		Preset:      served,
		Action:      h.action(&servedPack),
		Edge:        edge,
		Decision:    servedPack.Decision,
		Levels:      risk.DeriveLevels(servedPack.CurrentPrice, servedPack.Stats),
		Diagnostics: servedPack.Diagnostics,
		Regime:      servedPack.VolRegime,
		Consensus:   cons,
		GeneratedAt: time.Now().UTC(),
	})
}

// HandleConsensus serves the cross-horizon consensus for a symbol.
func (h *Handlers) HandleConsensus(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}
	preset := domain.ParsePreset(r.URL.Query().Get("preset"))

	result, err := h.consensus.Evaluate(r.Context(), symbol, preset)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// HandleForwardEquity serves the replayed equity curve for one forward track.
func (h *Handlers) HandleForwardEquity(w http.ResponseWriter, r *http.Request) {
	preset := domain.ParsePreset(r.URL.Query().Get("preset"))

	days := 30
	if v := r.URL.Query().Get("horizon"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "horizon must be an integer day count"})
			return
		}
		days = parsed
	}
	horizon, err := domain.ParseHorizon(days)
	if err != nil {
		h.respondError(w, err)
		return
	}

	role := domain.RoleActive
	if r.URL.Query().Get("role") == string(domain.RoleShadow) {
		role = domain.RoleShadow
	}

	curve, err := h.forward.Equity(preset, horizon, role)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, curve)
}

// HandleInvalidate drops cached packs for a symbol after a history refresh.
func (h *Handlers) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	if err := h.focus.InvalidateSymbol(symbol); err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "symbol": symbol})
}

// action maps a pack's edge and sizing outcome to a directional call.
func (h *Handlers) action(pack *focus.Pack) domain.Action {
	if pack.Decision.FinalSize == 0 || pack.Stats == nil {
		return domain.ActionHold
	}
	if pack.Stats.MedianReturn > 0 {
		return domain.ActionLong
	}
	if pack.Stats.MedianReturn < 0 {
		return domain.ActionShort
	}
	return domain.ActionHold
}

// parseFocusRequest extracts the common focus-build parameters.
func (h *Handlers) parseFocusRequest(r *http.Request) (focus.Request, error) {
	q := r.URL.Query()

	symbol := q.Get("symbol")
	if symbol == "" {
		return focus.Request{}, errBadRequest("symbol is required")
	}

	days := 30
	horizonParam := q.Get("aftermathDays")
	if horizonParam == "" {
		horizonParam = q.Get("horizon")
	}
	if horizonParam != "" {
		parsed, err := strconv.Atoi(horizonParam)
		if err != nil {
			return focus.Request{}, errBadRequest("horizon must be an integer day count")
		}
		days = parsed
	}
	horizon, err := domain.ParseHorizon(days)
	if err != nil {
		return focus.Request{}, err
	}

	req := focus.Request{
		Symbol:        symbol,
		Horizon:       horizon,
		MatchOverride: q.Get("matchId"),
	}

	if asOfParam := q.Get("asOf"); asOfParam != "" {
		asOf, err := time.Parse("2006-01-02", asOfParam)
		if err != nil {
			return focus.Request{}, errBadRequest("asOf must be YYYY-MM-DD")
		}
		req.AsOf = &asOf
	}

	phase, err := domain.ParsePhase(q.Get("phase"))
	if err != nil {
		return focus.Request{}, errBadRequest(err.Error())
	}
	req.Phase = phase

	return req, nil
}

// badRequestError marks client parameter errors for the response mapper.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequestError{msg: msg} }

// respondError maps domain errors to HTTP status codes.
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	var badReq badRequestError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &badReq):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidHorizon):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnknownSymbol), errors.Is(err, domain.ErrUnknownMatch):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDataUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
