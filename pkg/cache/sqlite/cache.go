// Package sqlite is a persistent cache tier backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/acacalc/acacalc/pkg/cache"
	"github.com/acacalc/acacalc/pkg/models"
)

// Cache is a key/value cache tier backed by SQLite.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_counters (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	hits INTEGER NOT NULL DEFAULT 0,
	misses INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO cache_counters (id) VALUES (1);
`

// New opens (and migrates) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// The file is shared by concurrent handlers; a single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, now: time.Now}, nil
}

// Get returns the stored value, or cache.ErrNotFound when the key is
// absent or its native TTL has lapsed.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var createdAt, ttlSeconds int64

	err := c.db.QueryRowContext(ctx,
		`SELECT value, created_at, ttl_seconds FROM cache_entries WHERE cache_key = ?`, key,
	).Scan(&value, &createdAt, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		c.count(ctx, "misses")
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	if ttlSeconds > 0 && c.now().Unix()-createdAt > ttlSeconds {
		c.count(ctx, "misses")
		return nil, cache.ErrNotFound
	}

	c.count(ctx, "hits")
	return value, nil
}

// count bumps a persisted lookup counter. A failed update only skews
// the statistics, so it does not fail the lookup.
func (c *Cache) count(ctx context.Context, column string) {
	_, _ = c.db.ExecContext(ctx, `UPDATE cache_counters SET `+column+` = `+column+` + 1 WHERE id = 1`)
}

// Set stores value under key, replacing any existing row.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_key, value, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?)`,
		key, value, c.now().Unix(), int64(ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Stats returns the entry count and the lookup counters accumulated in
// the database by every process that has used it.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var stats models.CacheStats
	err := c.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM cache_entries), hits, misses
		FROM cache_counters WHERE id = 1`,
	).Scan(&stats.Entries, &stats.Hits, &stats.Misses)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries
// are removed. It returns the number of rows deleted.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = c.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE ttl_seconds > 0 AND ? - created_at > ttl_seconds`,
			c.now().Unix())
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

var _ cache.Backend = (*Cache)(nil)
