package focus

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fractal/internal/calibration"
	"github.com/aristath/fractal/internal/config"
	"github.com/aristath/fractal/internal/database"
	"github.com/aristath/fractal/internal/domain"
	"github.com/aristath/fractal/internal/events"
	"github.com/aristath/fractal/internal/fractal"
	"github.com/aristath/fractal/internal/risk"
	"github.com/aristath/fractal/internal/series"
)

func testServiceConfig() config.MatcherConfig {
	return config.MatcherConfig{
		WindowLen:        20,
		TopK:             4,
		MinGapDays:       10,
		MinSimilarity:    0.2,
		WeightSimilarity: 0.45,
		WeightStability:  0.20,
		WeightVolRegime:  0.20,
		WeightDrawdown:   0.15,
	}
}

// writeHistory creates a per-symbol history database with n wavy daily candles.
func writeHistory(t *testing.T, dir, symbol string, n int) {
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
		price := 100 + 8*math.Sin(float64(i)/6) + float64(i)*0.03
		_, err = db.Exec("INSERT INTO daily_prices VALUES (?, ?, ?, ?, ?)",
			start.AddDate(0, 0, i).Format("2006-01-02"), price, price*1.01, price*0.99, price)
		require.NoError(t, err)
	}
}

func newTestService(t *testing.T, historyDir string, cfg config.MatcherConfig) *Service {
	t.Helper()

	appDir := t.TempDir()

	calibDB, err := database.Open(appDir, "calibration", database.ProfileStandard)
	require.NoError(t, err)
	t.Cleanup(func() { calibDB.Close() })
	require.NoError(t, calibDB.Migrate(calibration.Schema))

	cacheDB, err := database.Open(appDir, "cache", database.ProfileCache)
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate(CacheSchema))

	store := series.NewStore(historyDir, zerolog.Nop())
	monitor, err := calibration.NewMonitor(calibration.NewRepository(calibDB.Conn()), store, zerolog.Nop())
	require.NoError(t, err)

	riskCfg := config.RiskConfig{
		MinConfidence: 0.05,
		MaxEntropy:    0.95,
		VolSpikeRatio: 3.0,
		MaxSizeByRegime: map[string]float64{
			"LOW": 1.0, "MEDIUM": 1.0, "EXPANSION": 0.8,
			"CONTRACTION": 0.8, "HIGH": 0.5, "CRISIS": 0.0,
		},
	}

	return NewService(
		store,
		fractal.NewMatcher(cfg, zerolog.Nop()),
		fractal.NewForecaster(zerolog.Nop()),
		risk.NewEngine(riskCfg, zerolog.Nop()),
		monitor,
		NewCache(cacheDB.Conn()),
		events.NewBus(zerolog.Nop()),
		cfg,
		zerolog.Nop(),
	)
}

func TestService_BuildFullPack(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 300)

	svc := newTestService(t, historyDir, testServiceConfig())

	pack, err := svc.Build(context.Background(), Request{Symbol: "ACME", Horizon: domain.Horizon30})
	require.NoError(t, err)

	assert.Equal(t, "ACME", pack.Symbol)
	assert.Equal(t, 30, pack.Horizon)
	assert.NotEmpty(t, pack.Matches)
	require.NotNil(t, pack.Stats)
	assert.Len(t, pack.Forecast.PricePath, 30)
	assert.Len(t, pack.CurrentWindow, 19) // WindowLen closes become L-1 anchored returns
	assert.Greater(t, pack.CurrentPrice, 0.0)

	for band, path := range pack.DistributionSeries {
		assert.Len(t, path, 30, "band %s", band)
	}

	assert.GreaterOrEqual(t, pack.Decision.FinalSize, 0.0)
	assert.LessOrEqual(t, pack.Decision.FinalSize, 1.0)
	assert.NotContains(t, pack.Decision.Blockers, domain.BlockerHighEntropy)
}

func TestService_BuildUnknownSymbol(t *testing.T) {
	svc := newTestService(t, t.TempDir(), testServiceConfig())

	_, err := svc.Build(context.Background(), Request{Symbol: "GHOST", Horizon: domain.Horizon30})
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)
}

func TestService_BuildShortHistory(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 30)

	svc := newTestService(t, historyDir, testServiceConfig())

	_, err := svc.Build(context.Background(), Request{Symbol: "ACME", Horizon: domain.Horizon30})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestService_SecondBuildServedFromCache(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 300)

	svc := newTestService(t, historyDir, testServiceConfig())
	req := Request{Symbol: "ACME", Horizon: domain.Horizon14}

	first, err := svc.Build(context.Background(), req)
	require.NoError(t, err)

	second, err := svc.Build(context.Background(), req)
	require.NoError(t, err)

	// A cache hit returns the stored pack, so the build timestamp matches
	assert.Equal(t, first.GeneratedAt.Unix(), second.GeneratedAt.Unix())
	assert.Equal(t, first.Matches, second.Matches)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestService_BuildIsDeterministic(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 300)

	// Two independent services (separate caches) over the same history
	svcA := newTestService(t, historyDir, testServiceConfig())
	svcB := newTestService(t, historyDir, testServiceConfig())

	req := Request{Symbol: "ACME", Horizon: domain.Horizon30}

	packA, err := svcA.Build(context.Background(), req)
	require.NoError(t, err)
	packB, err := svcB.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, packA.Matches, packB.Matches)
	assert.Equal(t, packA.Stats, packB.Stats)
	assert.Equal(t, packA.Forecast, packB.Forecast)
	assert.Equal(t, packA.Decision, packB.Decision)
}

func TestService_NoMatchesIsDegradedNotError(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 300)

	cfg := testServiceConfig()
	cfg.MinSimilarity = 1.1 // no candidate can qualify

	svc := newTestService(t, historyDir, cfg)

	pack, err := svc.Build(context.Background(), Request{Symbol: "ACME", Horizon: domain.Horizon30})
	require.NoError(t, err)

	assert.Empty(t, pack.Matches)
	assert.Nil(t, pack.Stats)
	assert.Contains(t, pack.Decision.Blockers, domain.BlockerNoSignal)
	assert.Equal(t, 0.0, pack.Decision.FinalSize)
}

func TestService_ReplayUnknownMatch(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 300)

	svc := newTestService(t, historyDir, testServiceConfig())

	_, err := svc.Replay(context.Background(), "ACME", domain.Horizon30, "1999-12-31")
	assert.ErrorIs(t, err, domain.ErrUnknownMatch)
}

func TestService_AsOfSimulation(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 300)

	svc := newTestService(t, historyDir, testServiceConfig())

	asOf := time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)
	pack, err := svc.Build(context.Background(), Request{Symbol: "ACME", Horizon: domain.Horizon30, AsOf: &asOf})
	require.NoError(t, err)

	assert.Equal(t, "2021-09-01", pack.AsOf)

	// No match may anchor after the simulation date
	for _, m := range pack.Matches {
		assert.False(t, m.AnchorDate.After(asOf))
	}
}

func TestService_ReDecideAppliesConflict(t *testing.T) {
	historyDir := t.TempDir()
	writeHistory(t, historyDir, "ACME", 300)

	svc := newTestService(t, historyDir, testServiceConfig())

	pack, err := svc.Build(context.Background(), Request{Symbol: "ACME", Horizon: domain.Horizon30})
	require.NoError(t, err)
	baseline := pack.Decision.FinalSize

	svc.ReDecide(pack, domain.PresetBalanced, true)

	if baseline > 0 {
		assert.Less(t, pack.Decision.FinalSize, baseline)
	} else {
		assert.Equal(t, 0.0, pack.Decision.FinalSize)
	}
}
