package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/acacalc/acacalc/pkg/cache"
	badgercache "github.com/acacalc/acacalc/pkg/cache/badger"
	rediscache "github.com/acacalc/acacalc/pkg/cache/redis"
	sqlitecache "github.com/acacalc/acacalc/pkg/cache/sqlite"
	"github.com/acacalc/acacalc/pkg/calculator"
	"github.com/acacalc/acacalc/pkg/config"
	"github.com/acacalc/acacalc/pkg/engine"
	"github.com/acacalc/acacalc/pkg/household"
	"github.com/acacalc/acacalc/pkg/logging"
	"github.com/acacalc/acacalc/pkg/metrics"
	"github.com/acacalc/acacalc/pkg/models"
	"github.com/acacalc/acacalc/pkg/narrative"
	"github.com/acacalc/acacalc/pkg/reform"
	"github.com/acacalc/acacalc/pkg/scenario"
)

const defaultConfigPath = "acacalc.yaml"

// loadConfig reads path, falling back to defaults when the default config
// file is absent, then applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != defaultConfigPath {
			return nil, err
		}
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stack is the wired calculation pipeline shared by serve and calculate.
type stack struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Collector
	store      *cache.Store
	backend    cache.Backend
	calculator *calculator.Service
	narrative  *narrative.Service
}

func (s *stack) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close cache", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func buildStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stack, error) {
	m := metrics.New()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store := cache.New(cache.Options{
		Persistent:      backend,
		LocalMaxEntries: cfg.Cache.LocalMaxEntries,
		TTL: map[models.CacheKind]time.Duration{
			models.KindCalculation: cfg.Cache.CalculationTTL,
			models.KindNarrative:   cfg.Cache.NarrativeTTL,
		},
		BackendTimeout: cfg.Cache.BackendTimeout,
		Logger:         logger,
		Metrics:        m,
	})

	cat := reform.Default()
	for _, rc := range cfg.Reforms {
		if err := cat.Override(rc.ID, rc.Name, reform.Overlay(rc.Overlay)); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("reforms: %w", err)
		}
	}

	eng := engine.NewClient(engine.Config{
		URL:     cfg.Engine.URL,
		APIKey:  cfg.Engine.APIKey,
		Timeout: cfg.Engine.Timeout,
	})
	runner := scenario.NewRunner(eng, cat, cfg.Engine.Period, m)
	orch := scenario.NewOrchestrator(runner, scenario.Config{
		Concurrency: cfg.Scenario.Concurrency,
		Household: household.Options{
			Year:      cfg.Engine.Period,
			WithAxes:  true,
			AxisCount: cfg.Engine.AxisCount,
			AxisMax:   cfg.Engine.AxisMax,
		},
	}, logger, m)

	narr, err := narrative.NewFromConfig(cfg.Narrative, store, logger, m)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("narrative: %w", err)
	}

	return &stack{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		store:      store,
		backend:    backend,
		calculator: calculator.New(orch, store, cat.IDs(), logger),
		narrative:  narr,
	}, nil
}

// openBackend opens the configured persistent tier. "none" returns a nil
// backend so the store runs on the local tier alone.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendSQLite:
		c, err := sqlitecache.New(cfg.Cache.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite cache: %w", err)
		}
		return c, nil
	case config.BackendRedis:
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		return c, nil
	case config.BackendBadger:
		c, err := badgercache.Open(badgercache.Config{
			Path:     cfg.Cache.Badger.Path,
			InMemory: cfg.Cache.Badger.InMemory,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init badger cache: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}
