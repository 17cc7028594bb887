package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/models"
)

type memBackend struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	gets    int
	sets    int
	deletes int
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func (m *memBackend) Close() error { return nil }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestStore(backend Backend, clk *clock, m *metrics.Collector) *Store {
	return New(Options{
		Persistent:      backend,
		LocalMaxEntries: 10,
		TTL: map[models.CacheKind]time.Duration{
			models.KindCalculation: time.Hour,
			models.KindNarrative:   2 * time.Hour,
		},
		Metrics: m,
		Now:     clk.Now,
	})
}

func TestStore_SetThenGetReturnsPayload(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := newTestStore(newMemBackend(), clk, nil)
	ctx := context.Background()

	s.Set(ctx, "k", models.KindCalculation, []byte(`{"fpl":1}`))

	entry, ok := s.Get(ctx, "k", models.KindCalculation)
	require.True(t, ok)
	assert.JSONEq(t, `{"fpl":1}`, string(entry.Data))
	assert.Equal(t, clk.t.Unix(), entry.Timestamp)
}

func TestStore_KindsAreNamespaced(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	s := newTestStore(backend, clk, nil)
	ctx := context.Background()

	s.Set(ctx, "k", models.KindCalculation, []byte(`1`))

	_, ok := s.Get(ctx, "k", models.KindNarrative)
	assert.False(t, ok)
	assert.Contains(t, backend.data, "calc:k")
}

func TestStore_PersistentEntryIsEnvelope(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	s := newTestStore(backend, clk, nil)

	s.Set(context.Background(), "k", models.KindCalculation, []byte(`{"a":1}`))

	var entry map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(backend.data["calc:k"], &entry))
	assert.JSONEq(t, `{"a":1}`, string(entry["data"]))
	assert.Equal(t, "1700000000", string(entry["timestamp"]))
}

func TestStore_ExpiresPerKindTTL(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	s := newTestStore(backend, clk, nil)
	ctx := context.Background()

	s.Set(ctx, "k", models.KindCalculation, []byte(`1`))
	s.Set(ctx, "k", models.KindNarrative, []byte(`2`))

	clk.t = clk.t.Add(90 * time.Minute)

	_, ok := s.Get(ctx, "k", models.KindCalculation)
	assert.False(t, ok, "calculation entry should be past its 1h ttl")
	assert.NotContains(t, backend.data, "calc:k", "expired persistent entry should be removed")

	_, ok = s.Get(ctx, "k", models.KindNarrative)
	assert.True(t, ok, "narrative entry is within its 2h ttl")
}

func TestStore_ExactlyAtTTLIsStillLive(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := newTestStore(nil, clk, nil)
	ctx := context.Background()

	s.Set(ctx, "k", models.KindCalculation, []byte(`1`))
	clk.t = clk.t.Add(time.Hour)

	_, ok := s.Get(ctx, "k", models.KindCalculation)
	assert.True(t, ok)

	clk.t = clk.t.Add(time.Second)
	_, ok = s.Get(ctx, "k", models.KindCalculation)
	assert.False(t, ok)
}

func TestStore_PersistentReadErrorFallsBackToLocal(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	m := metrics.New()
	s := newTestStore(backend, clk, m)
	ctx := context.Background()

	s.Set(ctx, "k", models.KindCalculation, []byte(`1`))
	backend.getErr = errors.New("connection refused")

	entry, ok := s.Get(ctx, "k", models.KindCalculation)
	require.True(t, ok)
	assert.Equal(t, "1", string(entry.Data))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheBackendErrors.WithLabelValues("get")))
}

func TestStore_PersistentWriteErrorIsSwallowed(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	backend.setErr = errors.New("read-only replica")
	m := metrics.New()
	s := newTestStore(backend, clk, m)
	ctx := context.Background()

	s.Set(ctx, "k", models.KindCalculation, []byte(`1`))

	_, ok := s.Get(ctx, "k", models.KindCalculation)
	assert.True(t, ok, "local tier still serves the entry")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheBackendErrors.WithLabelValues("set")))
}

func TestStore_PersistentHitBackfillsLocal(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	ctx := context.Background()

	// Written by another replica.
	other := newTestStore(backend, clk, nil)
	other.Set(ctx, "k", models.KindCalculation, []byte(`"shared"`))

	s := newTestStore(backend, clk, nil)
	_, ok := s.Get(ctx, "k", models.KindCalculation)
	require.True(t, ok)

	backend.getErr = errors.New("down")
	entry, ok := s.Get(ctx, "k", models.KindCalculation)
	require.True(t, ok)
	assert.Equal(t, `"shared"`, string(entry.Data))
}

func TestStore_CorruptPersistentEntryIsMiss(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	backend.data["calc:k"] = []byte("not json")
	s := newTestStore(backend, clk, nil)

	_, ok := s.Get(context.Background(), "k", models.KindCalculation)
	assert.False(t, ok)
	assert.NotContains(t, backend.data, "calc:k")
}

func TestStore_LocalOnly(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	s := newTestStore(nil, clk, nil)
	ctx := context.Background()

	_, ok := s.Get(ctx, "k", models.KindNarrative)
	assert.False(t, ok)

	s.Set(ctx, "k", models.KindNarrative, []byte(`1`))
	_, ok = s.Get(ctx, "k", models.KindNarrative)
	assert.True(t, ok)
	assert.NoError(t, s.Close())
}

func TestStore_DefaultTTL(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, DefaultTTL, s.TTL(models.KindCalculation))
}

func TestStore_SetSurvivesCancelledContext(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	backend := newMemBackend()
	s := newTestStore(backend, clk, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Set(ctx, "k", models.KindCalculation, []byte(`1`))

	assert.Contains(t, backend.data, "calc:k")
}
