package forward

import (
	"database/sql"
	"fmt"
	"time"
)

// Schema for the forward-tracking ledger. Every strategy decision is
// appended here, matured rows get their realized return filled in, and the
// equity endpoints replay the resolved rows.
const Schema = `
CREATE TABLE IF NOT EXISTS forward_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	preset TEXT NOT NULL,
	horizon_days INTEGER NOT NULL,
	role TEXT NOT NULL,
	direction TEXT NOT NULL,
	final_size REAL NOT NULL,
	entry_price REAL NOT NULL,
	decided_at TIMESTAMP NOT NULL,
	target_date TIMESTAMP NOT NULL,
	realized_return REAL,
	resolved_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_forward_open
	ON forward_decisions (target_date) WHERE resolved_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_forward_track
	ON forward_decisions (preset, horizon_days, role, decided_at);
`

// Decision is one row of the forward ledger.
type Decision struct {
	ID             int64
	Symbol         string
	Preset         string
	HorizonDays    int
	Role           string
	Direction      string
	FinalSize      float64
	EntryPrice     float64
	DecidedAt      time.Time
	TargetDate     time.Time
	RealizedReturn *float64
	ResolvedAt     *time.Time
}

// Repository persists forward decisions.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record appends a decision to the ledger.
func (r *Repository) Record(d Decision) error {
	_, err := r.db.Exec(`
		INSERT INTO forward_decisions
			(symbol, preset, horizon_days, role, direction, final_size, entry_price, decided_at, target_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Symbol, d.Preset, d.HorizonDays, d.Role, d.Direction,
		d.FinalSize, d.EntryPrice, d.DecidedAt, d.TargetDate,
	)
	if err != nil {
		return fmt.Errorf("failed to record forward decision: %w", err)
	}
	return nil
}

// Due returns unresolved decisions whose target date has passed.
func (r *Repository) Due(now time.Time) ([]Decision, error) {
	rows, err := r.db.Query(`
		SELECT id, symbol, preset, horizon_days, role, direction, final_size, entry_price, decided_at, target_date
		FROM forward_decisions
		WHERE resolved_at IS NULL AND target_date <= ?
		ORDER BY target_date ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due decisions: %w", err)
	}
	defer rows.Close()

	var due []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.Symbol, &d.Preset, &d.HorizonDays, &d.Role,
			&d.Direction, &d.FinalSize, &d.EntryPrice, &d.DecidedAt, &d.TargetDate); err != nil {
			return nil, fmt.Errorf("failed to scan forward decision: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// Resolve fills in the realized return for a matured decision.
func (r *Repository) Resolve(id int64, realizedReturn float64, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE forward_decisions
		SET realized_return = ?, resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL`,
		realizedReturn, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve forward decision: %w", err)
	}
	return nil
}

// Resolved returns the resolved decisions for one track in decision order.
func (r *Repository) Resolved(preset string, horizonDays int, role string) ([]Decision, error) {
	rows, err := r.db.Query(`
		SELECT id, symbol, preset, horizon_days, role, direction, final_size, entry_price,
			decided_at, target_date, realized_return, resolved_at
		FROM forward_decisions
		WHERE preset = ? AND horizon_days = ? AND role = ? AND resolved_at IS NOT NULL
		ORDER BY decided_at ASC`, preset, horizonDays, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved decisions: %w", err)
	}
	defer rows.Close()

	var resolved []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.Symbol, &d.Preset, &d.HorizonDays, &d.Role,
			&d.Direction, &d.FinalSize, &d.EntryPrice, &d.DecidedAt, &d.TargetDate,
			&d.RealizedReturn, &d.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resolved decision: %w", err)
		}
		resolved = append(resolved, d)
	}
	return resolved, rows.Err()
}
