package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheEntry_ExpiredMeasuresFromWholeSecond(t *testing.T) {
	stored := time.Unix(1_700_000_000, 0).Add(900 * time.Millisecond)
	entry := CacheEntry{Timestamp: stored.Unix()}
	ttl := time.Minute

	assert.Equal(t, time.Unix(1_700_000_000, 0), entry.StoredAt())
	assert.False(t, entry.Expired(stored.Add(ttl-time.Second), ttl))
	// Truncation to the second makes the entry lapse just before the full
	// TTL has passed since the actual store time.
	assert.True(t, entry.Expired(stored.Add(ttl-500*time.Millisecond), ttl))
	assert.True(t, entry.Expired(stored.Add(ttl+time.Millisecond), ttl))
}
