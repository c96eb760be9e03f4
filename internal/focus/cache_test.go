package focus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/fractal/internal/database"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	db, err := database.Open(t.TempDir(), "cache", database.ProfileCache)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(CacheSchema))
	return NewCache(db.Conn())
}

type cachedThing struct {
	Name  string
	Score float64
	Path  []float64
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	cache := newTestCache(t)

	stored := cachedThing{Name: "ACME", Score: 0.87, Path: []float64{1, 2, 3}}
	require.NoError(t, cache.Set("focus:ACME:30d", stored, time.Minute))

	var loaded cachedThing
	hit, err := cache.Get("focus:ACME:30d", &loaded)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, stored, loaded)
}

func TestCache_MissingKey(t *testing.T) {
	cache := newTestCache(t)

	var loaded cachedThing
	hit, err := cache.Get("focus:NOPE:30d", &loaded)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.Set("focus:ACME:30d", cachedThing{Name: "old"}, -time.Minute))

	var loaded cachedThing
	hit, err := cache.Get("focus:ACME:30d", &loaded)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_OverwriteReplacesValue(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.Set("k", cachedThing{Name: "first"}, time.Minute))
	require.NoError(t, cache.Set("k", cachedThing{Name: "second"}, time.Minute))

	var loaded cachedThing
	hit, err := cache.Get("k", &loaded)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "second", loaded.Name)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.Set("focus:ACME:7d", cachedThing{Name: "a"}, time.Minute))
	require.NoError(t, cache.Set("focus:ACME:30d", cachedThing{Name: "b"}, time.Minute))
	require.NoError(t, cache.Set("focus:OTHER:30d", cachedThing{Name: "c"}, time.Minute))

	require.NoError(t, cache.InvalidatePrefix("focus:ACME:"))

	var loaded cachedThing
	hit, _ := cache.Get("focus:ACME:7d", &loaded)
	assert.False(t, hit)
	hit, _ = cache.Get("focus:ACME:30d", &loaded)
	assert.False(t, hit)
	hit, _ = cache.Get("focus:OTHER:30d", &loaded)
	assert.True(t, hit)
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	cache := newTestCache(t)

	require.NoError(t, cache.Set("stale", cachedThing{}, -time.Minute))
	require.NoError(t, cache.Set("fresh", cachedThing{}, time.Minute))

	require.NoError(t, cache.Sweep())

	var loaded cachedThing
	hit, _ := cache.Get("fresh", &loaded)
	assert.True(t, hit)

	// Expired row must be physically gone, not just treated as a miss
	assert.Equal(t, 1, cacheRowCount(t, cache))
}

func cacheRowCount(t *testing.T, c *Cache) int {
	t.Helper()
	var n int
	require.NoError(t, c.db.QueryRow("SELECT COUNT(*) FROM focus_cache").Scan(&n))
	return n
}

func TestInflight_LatestTokenCommits(t *testing.T) {
	reg := newInflightRegistry()

	ctx1, token1 := reg.begin(context.Background(), "focus:ACME:30d")
	_, token2 := reg.begin(context.Background(), "focus:ACME:30d")

	// The first build was superseded: its context is cancelled and its
	// commit is rejected.
	assert.Error(t, ctx1.Err())
	assert.False(t, reg.commit("focus:ACME:30d", token1))
	assert.True(t, reg.commit("focus:ACME:30d", token2))
}

func TestInflight_IndependentKeys(t *testing.T) {
	reg := newInflightRegistry()

	ctxA, tokenA := reg.begin(context.Background(), "focus:ACME:7d")
	_, tokenB := reg.begin(context.Background(), "focus:ACME:30d")

	assert.NoError(t, ctxA.Err())
	assert.True(t, reg.commit("focus:ACME:7d", tokenA))
	assert.True(t, reg.commit("focus:ACME:30d", tokenB))
}

func TestInflight_CommitTwiceRejected(t *testing.T) {
	reg := newInflightRegistry()

	_, token := reg.begin(context.Background(), "k")
	assert.True(t, reg.commit("k", token))
	assert.False(t, reg.commit("k", token))
}

func TestInflight_ReleaseCancelsAbandonedBuild(t *testing.T) {
	reg := newInflightRegistry()

	ctx, token := reg.begin(context.Background(), "focus:ACME:30d")
	reg.release("focus:ACME:30d", token)

	// The abandoned build's context is cancelled and its slot is free for
	// the next build, which commits normally.
	assert.Error(t, ctx.Err())
	ctx2, token2 := reg.begin(context.Background(), "focus:ACME:30d")
	assert.NoError(t, ctx2.Err())
	assert.True(t, reg.commit("focus:ACME:30d", token2))
}

func TestInflight_StaleReleaseKeepsLatest(t *testing.T) {
	reg := newInflightRegistry()

	_, token1 := reg.begin(context.Background(), "focus:ACME:30d")
	ctx2, token2 := reg.begin(context.Background(), "focus:ACME:30d")

	// A superseded build releasing on exit must not disturb its successor.
	reg.release("focus:ACME:30d", token1)
	assert.NoError(t, ctx2.Err())
	assert.True(t, reg.commit("focus:ACME:30d", token2))
}

func TestInflight_ReleaseAfterCommitIsNoop(t *testing.T) {
	reg := newInflightRegistry()

	_, token := reg.begin(context.Background(), "k")
	require.True(t, reg.commit("k", token))
	reg.release("k", token)

	_, token2 := reg.begin(context.Background(), "k")
	assert.True(t, reg.commit("k", token2))
}
