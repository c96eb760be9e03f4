// Package calibration tracks forecast-vs-realized error per symbol and turns
// it into a drift score and reliability signal consumed by risk sizing.
package calibration

import (
	"database/sql"
	"fmt"
	"time"
)

// Schema for the calibration database. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS issued_forecasts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	horizon_days INTEGER NOT NULL,
	issued_at TEXT NOT NULL,
	target_date TEXT NOT NULL,
	forecast_return REAL NOT NULL,
	realized_return REAL,
	resolved_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_forecasts_unresolved
	ON issued_forecasts (target_date) WHERE resolved_at IS NULL;

CREATE TABLE IF NOT EXISTS drift_state (
	symbol TEXT PRIMARY KEY,
	drift_score REAL NOT NULL,
	samples INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`

// IssuedForecast is a forecast recorded for later scoring against realized
// prices.
type IssuedForecast struct {
	ID             int64
	Symbol         string
	Horizon        int
	IssuedAt       time.Time
	TargetDate     time.Time
	ForecastReturn float64
}

// Repository persists issued forecasts and per-symbol drift state.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a calibration repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordForecast stores a freshly issued forecast for later resolution.
func (r *Repository) RecordForecast(symbol string, horizonDays int, issuedAt time.Time, forecastReturn float64) error {
	targetDate := issuedAt.AddDate(0, 0, horizonDays)

	_, err := r.db.Exec(`
		INSERT INTO issued_forecasts (symbol, horizon_days, issued_at, target_date, forecast_return)
		VALUES (?, ?, ?, ?, ?)
	`, symbol, horizonDays, issuedAt.Format("2006-01-02"), targetDate.Format("2006-01-02"), forecastReturn)
	if err != nil {
		return fmt.Errorf("failed to record forecast: %w", err)
	}

	return nil
}

// DueForecasts returns unresolved forecasts whose horizon has elapsed.
func (r *Repository) DueForecasts(now time.Time) ([]IssuedForecast, error) {
	rows, err := r.db.Query(`
		SELECT id, symbol, horizon_days, issued_at, target_date, forecast_return
		FROM issued_forecasts
		WHERE resolved_at IS NULL AND target_date <= ?
		ORDER BY target_date ASC
	`, now.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query due forecasts: %w", err)
	}
	defer rows.Close()

	var due []IssuedForecast
	for rows.Next() {
		var f IssuedForecast
		var issuedStr, targetStr string

		if err := rows.Scan(&f.ID, &f.Symbol, &f.Horizon, &issuedStr, &targetStr, &f.ForecastReturn); err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}

		if f.IssuedAt, err = time.Parse("2006-01-02", issuedStr); err != nil {
			return nil, fmt.Errorf("invalid issued_at %q: %w", issuedStr, err)
		}
		if f.TargetDate, err = time.Parse("2006-01-02", targetStr); err != nil {
			return nil, fmt.Errorf("invalid target_date %q: %w", targetStr, err)
		}

		due = append(due, f)
	}

	return due, rows.Err()
}

// Resolve marks a forecast as scored with its realized return.
func (r *Repository) Resolve(id int64, realizedReturn float64, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE issued_forecasts
		SET realized_return = ?, resolved_at = ?
		WHERE id = ?
	`, realizedReturn, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to resolve forecast %d: %w", id, err)
	}

	return nil
}

// DriftRecord is the persisted drift state for one symbol.
type DriftRecord struct {
	Symbol     string
	DriftScore float64
	Samples    int
	UpdatedAt  time.Time
}

// UpsertDriftState stores the rolling drift score for a symbol.
func (r *Repository) UpsertDriftState(rec DriftRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO drift_state (symbol, drift_score, samples, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			drift_score = excluded.drift_score,
			samples = excluded.samples,
			updated_at = excluded.updated_at
	`, rec.Symbol, rec.DriftScore, rec.Samples, rec.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert drift state: %w", err)
	}

	return nil
}

// DriftStates loads all persisted drift states.
func (r *Repository) DriftStates() ([]DriftRecord, error) {
	rows, err := r.db.Query(`SELECT symbol, drift_score, samples, updated_at FROM drift_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query drift states: %w", err)
	}
	defer rows.Close()

	var records []DriftRecord
	for rows.Next() {
		var rec DriftRecord
		var updatedStr string

		if err := rows.Scan(&rec.Symbol, &rec.DriftScore, &rec.Samples, &updatedStr); err != nil {
			return nil, fmt.Errorf("failed to scan drift state: %w", err)
		}

		if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
			return nil, fmt.Errorf("invalid updated_at %q: %w", updatedStr, err)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
