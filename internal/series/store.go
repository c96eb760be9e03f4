// Package series provides read-only access to historical OHLC candle data.
// Each symbol has its own SQLite history database under the data directory,
// written by the (out-of-scope) ingestion pipeline.
package series

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/aristath/fractal/internal/domain"
)

// Store provides access to historical price data
type Store struct {
	historyDir string
	log        zerolog.Logger
}

// NewStore creates a new history store accessor
func NewStore(historyDir string, log zerolog.Logger) *Store {
	return &Store{
		historyDir: historyDir,
		log:        log.With().Str("component", "series_store").Logger(),
	}
}

// Candles fetches the full daily candle history for a symbol in ascending
// date order. When asOf is non-nil, candles after that date are excluded
// (simulation mode).
func (s *Store) Candles(symbol string, asOf *time.Time) ([]domain.Candle, error) {
	db, err := s.openHistoryDB(symbol)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `
		SELECT date, open_price, high_price, low_price, close_price
		FROM daily_prices
		GROUP BY date
		ORDER BY date ASC
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var dateStr string
		var c domain.Candle

		if err := rows.Scan(&dateStr, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q in history for %s: %w", dateStr, symbol, err)
		}
		c.Date = date

		if asOf != nil && date.After(*asOf) {
			continue
		}

		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return candles, nil
}

// CandlesForBuild fetches candles and verifies that at least minLen bars are
// available, returning ErrDataUnavailable otherwise. minLen is typically
// window length + horizon + the matcher's candidate lookback.
func (s *Store) CandlesForBuild(symbol string, asOf *time.Time, minLen int) ([]domain.Candle, error) {
	candles, err := s.Candles(symbol, asOf)
	if err != nil {
		return nil, err
	}

	if len(candles) < minLen {
		return nil, fmt.Errorf("%w: %s has %d candles, need %d",
			domain.ErrDataUnavailable, symbol, len(candles), minLen)
	}

	return candles, nil
}

// LatestClose returns the most recent close at or before asOf.
func (s *Store) LatestClose(symbol string, asOf *time.Time) (float64, time.Time, error) {
	candles, err := s.Candles(symbol, asOf)
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(candles) == 0 {
		return 0, time.Time{}, fmt.Errorf("%w: %s has no candles", domain.ErrDataUnavailable, symbol)
	}

	last := candles[len(candles)-1]
	return last.Close, last.Date, nil
}

// Symbols lists the symbols with a history database present.
func (s *Store) Symbols() ([]string, error) {
	entries, err := os.ReadDir(s.historyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, "_history.db") {
			symbols = append(symbols, strings.TrimSuffix(name, "_history.db"))
		}
	}

	return symbols, nil
}

// openHistoryDB opens the per-symbol history database read-only.
func (s *Store) openHistoryDB(symbol string) (*sql.DB, error) {
	dbPath := filepath.Join(s.historyDir, fmt.Sprintf("%s_history.db", sanitizeSymbol(symbol)))

	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database for %s: %w", symbol, err)
	}

	return db, nil
}

// sanitizeSymbol strips path separators so a symbol can never escape the
// history directory.
func sanitizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	symbol = strings.ReplaceAll(symbol, "/", "")
	symbol = strings.ReplaceAll(symbol, "\\", "")
	symbol = strings.ReplaceAll(symbol, "..", "")
	return symbol
}

// Closes extracts the close series from candles.
func Closes(candles []domain.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// Highs extracts the high series from candles.
func Highs(candles []domain.Candle) []float64 {
	highs := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
	}
	return highs
}

// Lows extracts the low series from candles.
func Lows(candles []domain.Candle) []float64 {
	lows := make([]float64, len(candles))
	for i, c := range candles {
		lows[i] = c.Low
	}
	return lows
}
