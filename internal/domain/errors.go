package domain

import "errors"

// Typed errors surfaced to callers. Expected degradations (no matches, stale
// calibration) are represented in results instead of errors.
var (
	// ErrDataUnavailable indicates the price history is shorter than the
	// requested window + horizon.
	ErrDataUnavailable = errors.New("insufficient price history")

	// ErrInvalidHorizon indicates an unsupported horizon key, rejected before
	// any computation runs.
	ErrInvalidHorizon = errors.New("unsupported horizon")

	// ErrUnknownSymbol indicates no history database exists for the symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrUnknownMatch indicates a replay request referenced a match id that
	// the matcher did not produce.
	ErrUnknownMatch = errors.New("unknown match id")
)
