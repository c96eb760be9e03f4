package focus

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// CacheSchema for the cache database. Idempotent.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS focus_cache (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_focus_cache_expiry ON focus_cache (expires_at);
`

// DefaultTTL bounds how long a cached FocusPack is served before a rebuild.
const DefaultTTL = 15 * time.Minute

// Cache stores FocusPacks as msgpack blobs keyed by request signature.
type Cache struct {
	db *sql.DB
}

// NewCache creates a focus cache over the cache database.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Get retrieves a cached value into dest. Returns false when the key is
// missing or expired.
func (c *Cache) Get(key string, dest interface{}) (bool, error) {
	var blob []byte
	var expiresAt int64

	err := c.db.QueryRow(
		"SELECT value, expires_at FROM focus_cache WHERE key = ?", key,
	).Scan(&blob, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if expiresAt < time.Now().Unix() {
		return false, nil
	}

	if err := msgpack.Unmarshal(blob, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	return true, nil
}

// Set stores a value with expiration = now + ttl.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) error {
	blob, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO focus_cache (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, blob, time.Now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// InvalidatePrefix removes all cache entries whose key starts with prefix.
// Used when a symbol's underlying history refreshes.
func (c *Cache) InvalidatePrefix(prefix string) error {
	_, err := c.db.Exec("DELETE FROM focus_cache WHERE key LIKE ?", prefix+"%")
	return err
}

// Sweep deletes expired entries. Registered as a periodic job.
func (c *Cache) Sweep() error {
	_, err := c.db.Exec("DELETE FROM focus_cache WHERE expires_at < ?", time.Now().Unix())
	return err
}

// Name implements the scheduler Job interface for the sweep job.
func (c *Cache) Name() string { return "focus_cache_sweep" }

// Run implements the scheduler Job interface for the sweep job.
func (c *Cache) Run() error { return c.Sweep() }
