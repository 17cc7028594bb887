package models

import (
	"encoding/json"
	"time"
)

// CacheKind selects a logical cache namespace and its TTL.
type CacheKind string

const (
	KindCalculation CacheKind = "calc"
	KindNarrative   CacheKind = "narrative"
)

// CacheEntry is the persisted form of a cached payload. Timestamp is the
// store time in whole epoch seconds, so an entry's age is measured from the
// start of the second it was stored and it can expire up to one second
// before the configured TTL has fully elapsed.
type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// StoredAt returns the entry's store time.
func (e *CacheEntry) StoredAt() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// Expired reports whether the entry is older than ttl at now.
func (e *CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt()) > ttl
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
