package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/acacalc/acacalc/pkg/audit"
	"github.com/acacalc/acacalc/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calculation API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit: %w", err)
				}
				defer func() { _ = auditor.Close() }()
			}

			if !st.narrative.Configured() {
				logger.Warn("no narrative provider configured; /explain will fail")
			}

			srv := server.New(cfg, st.calculator, st.narrative, auditor, st.metrics, logger)
			logger.Info("starting acacalc",
				zap.String("config", configPath),
				zap.String("cache_backend", cfg.Cache.Backend),
				zap.String("engine", cfg.Engine.URL),
			)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
