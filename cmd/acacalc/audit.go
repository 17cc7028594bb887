package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/acacalc/acacalc/pkg/audit"
	"github.com/acacalc/acacalc/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the request audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

// auditRunner is the body of an audit subcommand.
type auditRunner func(cmd *cobra.Command, l *audit.Logger) error

// withAuditLog registers --config on cmd and opens the audit database
// around run.
func withAuditLog(cmd *cobra.Command, run auditRunner) *cobra.Command {
	var configPath string
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		l, err := audit.New(cfg.Audit)
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		defer l.Close()
		return run(cmd, l)
	}
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		opts   models.AuditQueryOpts
		since  string
		asJSON bool
	)

	cmd := withAuditLog(&cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
	}, func(cmd *cobra.Command, l *audit.Logger) error {
		if since != "" {
			t, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			opts.Since = t
		}

		entries, err := l.Query(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatAuditEntries(entries))
		return nil
	})

	f := cmd.Flags()
	f.StringVar(&opts.Endpoint, "endpoint", "", "filter by endpoint, e.g. /calculate")
	f.StringVar(&opts.CacheKey, "key", "", "filter by cache key")
	f.StringVar(&opts.CacheStatus, "cache", "", "filter by cache status (hit|miss)")
	f.StringVar(&opts.RequestID, "request-id", "", "filter by request ID")
	f.StringVar(&since, "since", "", "start date (YYYY-MM-DD) or age such as 24h")
	f.IntVar(&opts.Limit, "limit", 50, "max entries to return")
	f.BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

// parseSince accepts a calendar date or a duration back from now.
func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use YYYY-MM-DD or a duration like 24h", v)
}

func newAuditStatsCmd() *cobra.Command {
	return withAuditLog(&cobra.Command{
		Use:   "stats",
		Short: "Show request and cache-hit counts by endpoint and day",
	}, func(cmd *cobra.Command, l *audit.Logger) error {
		stats, err := l.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), formatAuditStats(stats))
		return nil
	})
}

func newAuditCleanupCmd() *cobra.Command {
	return withAuditLog(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
	}, func(cmd *cobra.Command, l *audit.Logger) error {
		deleted, err := l.Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries.\n", deleted)
		return nil
	})
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-18s %-18s %-5s %6s %8s %-20s %s\n",
		"REQUEST ID", "ENDPOINT", "KEY", "CACHE", "STATUS", "LATENCY", "TIME", "FAILED")
	b.WriteString(strings.Repeat("-", 130) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-38s %-18s %-18s %-5s %6d %6dms %-20s %s\n",
			e.RequestID, e.Endpoint, e.CacheKey, e.CacheStatus, e.StatusCode,
			e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"),
			strings.Join(e.FailedReforms, ","))
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-18s %-12s %8s %8s %7s\n", "ENDPOINT", "DAY", "REQUESTS", "HITS", "HIT %")
	b.WriteString(strings.Repeat("-", 58) + "\n")
	for _, s := range stats {
		rate := 0.0
		if s.Count > 0 {
			rate = 100 * float64(s.Hits) / float64(s.Count)
		}
		fmt.Fprintf(&b, "%-18s %-12s %8d %8d %6.1f%%\n", s.Endpoint, s.Day, s.Count, s.Hits, rate)
	}
	return b.String()
}
