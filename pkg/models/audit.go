package models

import "time"

// Cache statuses recorded in the audit log.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// AuditEntry records one handled calculation or narrative request.
type AuditEntry struct {
	RequestID     string    `json:"request_id"`
	Endpoint      string    `json:"endpoint"`
	CacheKey      string    `json:"cache_key"`
	CacheStatus   string    `json:"cache_status"`
	StatusCode    int       `json:"status_code"`
	FailedReforms []string  `json:"failed_reforms,omitempty"`
	Error         string    `json:"error,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Endpoint    string
	CacheKey    string
	CacheStatus string
	Since       time.Time
	RequestID   string
	Limit       int
}

// AuditStat holds aggregate audit counts for an endpoint/day combination.
type AuditStat struct {
	Endpoint string
	Day      string
	Hits     int
	Count    int
}
