// Package badger is a persistent cache tier backed by an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/acacalc/acacalc/pkg/cache"
)

// Config holds BadgerDB settings. Path is ignored when InMemory is set.
type Config struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// Cache is a cache tier backed by BadgerDB. Entries carry Badger's native
// TTL so expired keys are dropped during compaction.
type Cache struct {
	db     *badger.DB
	logger *zap.Logger
	stop   chan struct{}
	done   chan struct{}
}

type zapBadgerLogger struct {
	s *zap.SugaredLogger
}

func (l zapBadgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l zapBadgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l zapBadgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l zapBadgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }

// Open opens the database described by cfg and starts value-log GC for
// on-disk databases.
func Open(cfg Config, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required unless in_memory is set")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1).
		WithLogger(zapBadgerLogger{s: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	c := &Cache{db: db, logger: logger, stop: make(chan struct{}), done: make(chan struct{})}
	if cfg.InMemory {
		close(c.done)
	} else {
		go c.gcLoop(5 * time.Minute)
	}
	return c, nil
}

// Get returns the stored value or cache.ErrNotFound.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

// Set stores value with ttl as the entry's native expiry.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Clear drops every key.
func (c *Cache) Clear(_ context.Context) error {
	if err := c.db.DropAll(); err != nil {
		return fmt.Errorf("badger drop: %w", err)
	}
	return nil
}

// Close stops GC and closes the database.
func (c *Cache) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
	return c.db.Close()
}

func (c *Cache) gcLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			for c.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

var _ cache.Backend = (*Cache)(nil)
