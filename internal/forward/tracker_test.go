package forward

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fractal/internal/database"
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/series"
)

// writeRisingHistory creates a symbol history where close[i] = 100 + i,
// starting at 2021-01-01.
func writeRisingHistory(t *testing.T, dir, symbol string, n int) {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(dir, symbol+"_history.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE daily_prices (
			date TEXT NOT NULL,
			open_price REAL,
			high_price REAL,
			low_price REAL,
			close_price REAL
		)`)
	require.NoError(t, err)

	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := float64(100 + i)
		_, err = db.Exec("INSERT INTO daily_prices VALUES (?, ?, ?, ?, ?)",
			start.AddDate(0, 0, i).Format("2006-01-02"), price, price, price, price)
		require.NoError(t, err)
	}
}

func newTestTracker(t *testing.T, historyDir string) (*Tracker, *Repository) {
	t.Helper()

	db, err := database.Open(t.TempDir(), "forward", database.ProfileStandard)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(Schema))

	repo := NewRepository(db.Conn())
	store := series.NewStore(historyDir, zerolog.Nop())
	return NewTracker(repo, store, zerolog.Nop()), repo
}

// maturedDecision inserts a ledger row whose target date is already in the
// past, anchored to the rising fixture series.
func maturedDecision(t *testing.T, repo *Repository, symbol, direction string, size float64) {
	t.Helper()
	require.NoError(t, repo.Record(Decision{
		Symbol:      symbol,
		Preset:      string(domain.PresetBalanced),
		HorizonDays: 7,
		Role:        string(domain.RoleActive),
		Direction:   direction,
		FinalSize:   size,
		EntryPrice:  131, // close on 2021-02-01
		DecidedAt:   time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC),
		TargetDate:  time.Date(2021, 2, 8, 0, 0, 0, 0, time.UTC),
	}))
}

func TestRepository_DecisionLifecycle(t *testing.T) {
	_, repo := newTestTracker(t, t.TempDir())

	decided := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Record(Decision{
		Symbol: "ACME", Preset: "BALANCED", HorizonDays: 30, Role: "ACTIVE",
		Direction: "LONG", FinalSize: 0.4, EntryPrice: 131,
		DecidedAt: decided, TargetDate: decided.AddDate(0, 0, 30),
	}))

	due, err := repo.Due(decided.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.Due(decided.AddDate(0, 0, 31))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ACME", due[0].Symbol)
	assert.Equal(t, 0.4, due[0].FinalSize)

	require.NoError(t, repo.Resolve(due[0].ID, 0.02, time.Now().UTC()))

	due, err = repo.Due(decided.AddDate(0, 0, 31))
	require.NoError(t, err)
	assert.Empty(t, due)

	resolved, err := repo.Resolved("BALANCED", 30, "ACTIVE")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.NotNil(t, resolved[0].RealizedReturn)
	assert.Equal(t, 0.02, *resolved[0].RealizedReturn)
}

func TestTracker_RunScalesByDirectionAndSize(t *testing.T) {
	historyDir := t.TempDir()
	writeRisingHistory(t, historyDir, "ACME", 100)

	tracker, repo := newTestTracker(t, historyDir)

	maturedDecision(t, repo, "ACME", "LONG", 0.5)
	maturedDecision(t, repo, "ACME", "SHORT", 1.0)
	maturedDecision(t, repo, "ACME", "LONG", 0) // NO_TRADE row

	require.NoError(t, tracker.Run())

	resolved, err := repo.Resolved(string(domain.PresetBalanced), 7, string(domain.RoleActive))
	require.NoError(t, err)
	require.Len(t, resolved, 3)

	// Price moved 131 -> 138 over the horizon.
	move := (138.0 - 131.0) / 131.0
	for _, d := range resolved {
		require.NotNil(t, d.RealizedReturn)
		want := move * d.FinalSize
		if d.Direction == "SHORT" {
			want = -want
		}
		assert.InDelta(t, want, *d.RealizedReturn, 1e-9)
	}
}

func TestTracker_RunSkipsMissingDataForRetry(t *testing.T) {
	historyDir := t.TempDir()
	writeRisingHistory(t, historyDir, "ACME", 100)

	tracker, repo := newTestTracker(t, historyDir)

	maturedDecision(t, repo, "ACME", "LONG", 0.5)
	maturedDecision(t, repo, "GHOST", "LONG", 0.5)

	require.NoError(t, tracker.Run())

	// The symbol without history stays unresolved for the next pass.
	due, err := repo.Due(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "GHOST", due[0].Symbol)
}

func TestTracker_RecordTargetsHorizonEnd(t *testing.T) {
	_, repo := newTestTracker(t, t.TempDir())
	tracker := &Tracker{repo: repo, log: zerolog.Nop()}

	require.NoError(t, tracker.Record("ACME", domain.PresetBalanced, domain.Horizon30,
		domain.RoleShadow, "LONG", 0.3, 100))

	due, err := repo.Due(time.Now().UTC().AddDate(0, 0, 31))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, string(domain.RoleShadow), due[0].Role)
	assert.InDelta(t, 30*24.0, due[0].TargetDate.Sub(due[0].DecidedAt).Hours(), 1.0)
}

func TestTracker_EquityReplay(t *testing.T) {
	tracker, repo := newTestTracker(t, t.TempDir())

	base := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := []struct {
		size     float64
		realized float64
	}{
		{0.5, 0.10},
		{0.5, -0.05},
		{0, 0}, // flat period
	}
	for i, row := range rows {
		require.NoError(t, repo.Record(Decision{
			Symbol: "ACME", Preset: "BALANCED", HorizonDays: 7, Role: "ACTIVE",
			Direction: "LONG", FinalSize: row.size, EntryPrice: 100,
			DecidedAt:  base.AddDate(0, 0, i),
			TargetDate: base.AddDate(0, 0, i+7),
		}))
	}

	due, err := repo.Due(base.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.Len(t, due, 3)
	for i, d := range due {
		require.NoError(t, repo.Resolve(d.ID, rows[i].realized, time.Now().UTC()))
	}

	curve, err := tracker.Equity(domain.PresetBalanced, domain.Horizon7, domain.RoleActive)
	require.NoError(t, err)

	require.Len(t, curve.Points, 3)
	assert.InDelta(t, 1.10*0.95, curve.FinalEquity, 1e-9)
	assert.Equal(t, 2, curve.Trades) // the zero-size row is not a trade
	assert.Equal(t, 1, curve.Wins)
	assert.InDelta(t, 1.10, curve.Points[0].Equity, 1e-9)
}

func TestTracker_EquityEmptyTrack(t *testing.T) {
	tracker, _ := newTestTracker(t, t.TempDir())

	curve, err := tracker.Equity(domain.PresetAggressive, domain.Horizon90, domain.RoleShadow)
	require.NoError(t, err)

	assert.Empty(t, curve.Points)
	assert.Equal(t, 1.0, curve.FinalEquity)
	assert.Zero(t, curve.Trades)
}