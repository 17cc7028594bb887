// Package audit records every handled calculation and narrative request in
// a dedicated SQLite database.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/acacalc/acacalc/pkg/models"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically and is understood by SQLite's date functions.
const timeLayout = "2006-01-02 15:04:05.000"

// Logger writes and queries audit entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	now  func() time.Time
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		request_id     TEXT PRIMARY KEY,
		endpoint       TEXT NOT NULL,
		cache_key      TEXT,
		cache_status   TEXT,
		status_code    INTEGER,
		failed_reforms TEXT,
		error          TEXT,
		latency_ms     INTEGER,
		created_at     TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_endpoint ON audit_log(endpoint)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_key ON audit_log(cache_key)`)
	return err
}

// Log inserts an audit entry. A nil Logger discards entries.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}

	var failed string
	if len(entry.FailedReforms) > 0 {
		b, _ := json.Marshal(entry.FailedReforms)
		failed = string(b)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(request_id, endpoint, cache_key, cache_status, status_code,
		 failed_reforms, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Endpoint, entry.CacheKey, entry.CacheStatus,
		entry.StatusCode, failed, entry.Error, entry.LatencyMs,
		createdAt.UTC().Format(timeLayout),
	)
	return err
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, endpoint, cache_key, cache_status, status_code,
		failed_reforms, error, latency_ms, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Endpoint != "" {
		q += " AND endpoint = ?"
		args = append(args, opts.Endpoint)
	}
	if opts.CacheKey != "" {
		q += " AND cache_key = ?"
		args = append(args, opts.CacheKey)
	}
	if opts.CacheStatus != "" {
		q += " AND cache_status = ?"
		args = append(args, opts.CacheStatus)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var cacheKey, cacheStatus, failed, errMsg sql.NullString
		var createdAt string
		if err := rows.Scan(
			&e.RequestID, &e.Endpoint, &cacheKey, &cacheStatus, &e.StatusCode,
			&failed, &errMsg, &e.LatencyMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.CacheKey = cacheKey.String
		e.CacheStatus = cacheStatus.String
		e.Error = errMsg.String
		if failed.Valid && failed.String != "" {
			_ = json.Unmarshal([]byte(failed.String), &e.FailedReforms)
		}
		if t, err := time.ParseInLocation(timeLayout, createdAt, time.UTC); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns request and cache-hit counts grouped by endpoint and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT endpoint, date(created_at) AS day,
		        SUM(CASE WHEN cache_status = ? THEN 1 ELSE 0 END) AS hits,
		        count(*) AS cnt
		 FROM audit_log GROUP BY endpoint, day ORDER BY day DESC, endpoint`, models.CacheHit)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Endpoint, &day, &s.Hits, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
