package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	badgercache "github.com/acacalc/acacalc/pkg/cache/badger"
	rediscache "github.com/acacalc/acacalc/pkg/cache/redis"
	sqlitecache "github.com/acacalc/acacalc/pkg/cache/sqlite"
	"github.com/acacalc/acacalc/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent result cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics (sqlite backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Cache.Backend != config.BackendSQLite {
				return fmt.Errorf("cache stats: not supported for the %s backend", cfg.Cache.Backend)
			}
			c, err := sqlitecache.New(cfg.Cache.SQLite.Path)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nHits:    %d\nMisses:  %d\n", stats.Entries, stats.Hits, stats.Misses)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			n, err := clearBackend(cmd.Context(), cfg, expiredOnly)
			if err != nil {
				return err
			}
			switch {
			case n < 0:
				fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			case expiredOnly:
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d expired cache entries.\n", n)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache entries.\n", n)
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries (sqlite backend)")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

// clearBackend empties the configured persistent tier. It returns -1 when
// the backend cannot report a count.
func clearBackend(ctx context.Context, cfg *config.Config, expiredOnly bool) (int64, error) {
	if expiredOnly && cfg.Cache.Backend != config.BackendSQLite {
		return 0, fmt.Errorf("cache clear --expired: %s expires entries natively", cfg.Cache.Backend)
	}

	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		c, err := sqlitecache.New(cfg.Cache.SQLite.Path)
		if err != nil {
			return 0, err
		}
		defer func() { _ = c.Close() }()
		return c.Clear(ctx, expiredOnly)
	case config.BackendRedis:
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		}, zap.NewNop())
		if err != nil {
			return 0, err
		}
		defer func() { _ = c.Close() }()
		return c.Clear(ctx)
	case config.BackendBadger:
		c, err := badgercache.Open(badgercache.Config{
			Path:     cfg.Cache.Badger.Path,
			InMemory: cfg.Cache.Badger.InMemory,
		}, zap.NewNop())
		if err != nil {
			return 0, err
		}
		defer func() { _ = c.Close() }()
		return -1, c.Clear(ctx)
	}
	return 0, fmt.Errorf("cache clear: nothing to clear for the %s backend", cfg.Cache.Backend)
}
