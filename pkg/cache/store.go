// Package cache implements the two-tier result cache shared by the
// calculation and narrative endpoints.
//
// Reads try the persistent tier first and fall back to the local tier.
// Writes go to both. Persistent-tier failures are logged and counted but
// never returned to the caller: they read as a miss and writes are dropped.
// Expiry is checked lazily on read against the kind's TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/models"
)

// ErrNotFound is returned by backends for absent keys.
var ErrNotFound = errors.New("cache: not found")

// Backend is a persistent key/value tier. Implementations must be safe for
// concurrent use. ttl is a hint for native expiry; the Store does its own
// expiry check on read.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	tierPersistent = "persistent"
	tierLocal      = "local"
)

// Options configures a Store.
type Options struct {
	// Persistent may be nil, in which case only the local tier is used.
	Persistent      Backend
	LocalMaxEntries int
	TTL             map[models.CacheKind]time.Duration
	// BackendTimeout bounds each persistent-tier call. Zero means 2s.
	BackendTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	Now            func() time.Time
}

// Store is the two-tier cache.
type Store struct {
	persistent     Backend
	local          *Local
	ttl            map[models.CacheKind]time.Duration
	backendTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Collector
	now            func() time.Time
}

// DefaultTTL applies to kinds missing from Options.TTL.
const DefaultTTL = 7 * 24 * time.Hour

// New creates a Store.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LocalMaxEntries <= 0 {
		opts.LocalMaxEntries = 1000
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = 2 * time.Second
	}
	ttl := make(map[models.CacheKind]time.Duration, len(opts.TTL))
	for k, v := range opts.TTL {
		ttl[k] = v
	}
	return &Store{
		persistent:     opts.Persistent,
		local:          NewLocal(opts.LocalMaxEntries, opts.Now),
		ttl:            ttl,
		backendTimeout: opts.BackendTimeout,
		logger:         opts.Logger.With(zap.String("component", "cache")),
		metrics:        opts.Metrics,
		now:            opts.Now,
	}
}

// TTL returns the configured lifetime for kind.
func (s *Store) TTL(kind models.CacheKind) time.Duration {
	if d, ok := s.ttl[kind]; ok && d > 0 {
		return d
	}
	return DefaultTTL
}

// Get returns a live entry for key in the kind's namespace.
func (s *Store) Get(ctx context.Context, key string, kind models.CacheKind) (*models.CacheEntry, bool) {
	nsKey := namespaced(kind, key)
	ttl := s.TTL(kind)
	now := s.now()

	if entry, ok := s.getPersistent(ctx, nsKey, kind, ttl, now); ok {
		s.local.Set(nsKey, entry, ttl)
		return entry, true
	}

	entry, ok := s.local.Get(nsKey)
	switch {
	case !ok:
		s.metrics.CacheLookup(string(kind), tierLocal, "miss")
		return nil, false
	case entry.Expired(now, ttl):
		s.local.Delete(nsKey)
		s.metrics.CacheLookup(string(kind), tierLocal, "expired")
		return nil, false
	}
	s.metrics.CacheLookup(string(kind), tierLocal, "hit")
	return entry, true
}

func (s *Store) getPersistent(ctx context.Context, nsKey string, kind models.CacheKind, ttl time.Duration, now time.Time) (*models.CacheEntry, bool) {
	if s.persistent == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	data, err := s.persistent.Get(ctx, nsKey)
	if errors.Is(err, ErrNotFound) {
		s.metrics.CacheLookup(string(kind), tierPersistent, "miss")
		return nil, false
	}
	if err != nil {
		s.logger.Warn("persistent cache read failed", zap.String("key", nsKey), zap.Error(err))
		s.metrics.CacheBackendError("get")
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || len(entry.Data) == 0 {
		s.logger.Warn("persistent cache entry corrupt", zap.String("key", nsKey), zap.Error(err))
		s.metrics.CacheBackendError("decode")
		s.deletePersistent(ctx, nsKey)
		return nil, false
	}
	if entry.Expired(now, ttl) {
		s.metrics.CacheLookup(string(kind), tierPersistent, "expired")
		s.deletePersistent(ctx, nsKey)
		return nil, false
	}
	s.metrics.CacheLookup(string(kind), tierPersistent, "hit")
	return &entry, true
}

func (s *Store) deletePersistent(ctx context.Context, nsKey string) {
	if err := s.persistent.Delete(ctx, nsKey); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Debug("persistent cache delete failed", zap.String("key", nsKey), zap.Error(err))
		s.metrics.CacheBackendError("delete")
	}
}

// Set stores payload under key, replacing any previous entry. The local
// tier is always written; a persistent-tier failure is only logged.
func (s *Store) Set(ctx context.Context, key string, kind models.CacheKind, payload []byte) {
	nsKey := namespaced(kind, key)
	ttl := s.TTL(kind)
	entry := &models.CacheEntry{Data: payload, Timestamp: s.now().Unix()}

	s.local.Set(nsKey, entry, ttl)

	if s.persistent == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("encode cache entry", zap.String("key", nsKey), zap.Error(err))
		return
	}
	// A client that hangs up after the computation should not lose the write.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.backendTimeout)
	defer cancel()
	if err := s.persistent.Set(ctx, nsKey, data, ttl); err != nil {
		s.logger.Warn("persistent cache write failed", zap.String("key", nsKey), zap.Error(err))
		s.metrics.CacheBackendError("set")
	}
}

// Close releases the persistent tier.
func (s *Store) Close() error {
	if s.persistent == nil {
		return nil
	}
	return s.persistent.Close()
}

func namespaced(kind models.CacheKind, key string) string {
	return string(kind) + ":" + key
}
