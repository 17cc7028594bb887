package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acacalc/acacalc/pkg/audit"
	"github.com/acacalc/acacalc/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve calculations as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// stdout carries the protocol; keep logs on stderr.
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

			deps := mcp.Deps{Calculator: st.calculator, Explainer: st.narrative}

			if c, ok := st.backend.(mcp.CacheStatter); ok {
				deps.Cache = c
			}
			if cfg.Audit.Enabled {
				a, err := audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit: %w", err)
				}
				defer func() { _ = a.Close() }()
				deps.Auditor = a
			}

			return mcp.New(deps, version, logger).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
