package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/acacalc/acacalc/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all acacalc configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	Log       LogConfig          `yaml:"log"`
	Engine    EngineConfig       `yaml:"engine"`
	Scenario  ScenarioConfig     `yaml:"scenario"`
	Cache     CacheConfig        `yaml:"cache"`
	Narrative NarrativeConfig    `yaml:"narrative"`
	Reforms   []ReformConfig     `yaml:"reforms"`
	Audit     models.AuditConfig `yaml:"audit"`
	CORS      CORSConfig         `yaml:"cors"`
}

// LogConfig controls the zap logger. Format is "json" or "console".
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig points at the computation engine and shapes the income sweep.
type EngineConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	Period    int           `yaml:"period"`
	AxisCount int           `yaml:"axis_count"`
	AxisMax   float64       `yaml:"axis_max"`
}

// ScenarioConfig bounds the per-request reform fan-out.
type ScenarioConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Cache backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// CacheConfig controls both cache tiers.
type CacheConfig struct {
	LocalMaxEntries int           `yaml:"local_max_entries"`
	CalculationTTL  time.Duration `yaml:"calculation_ttl"`
	NarrativeTTL    time.Duration `yaml:"narrative_ttl"`
	BackendTimeout  time.Duration `yaml:"backend_timeout"`
	Backend         string        `yaml:"backend"`
	SQLite          SQLiteConfig  `yaml:"sqlite"`
	Redis           RedisConfig   `yaml:"redis"`
	Badger          BadgerConfig  `yaml:"badger"`
}

// SQLiteConfig locates the SQLite cache file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BadgerConfig locates the Badger directory.
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// NarrativeConfig controls the /explain generator.
type NarrativeConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	// Fallback orders the providers to try. Empty means declaration order.
	Fallback    []RouteTarget `yaml:"fallback"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	Burst       int           `yaml:"burst"`
	KeyRounding float64       `yaml:"key_rounding"`
}

// ProviderConfig defines an upstream LLM provider.
// Type is "anthropic" (default) or "openai".
type ProviderConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// RouteTarget identifies a provider and optional model override in the
// fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ReformConfig overrides the name or overlay of a built-in reform.
type ReformConfig struct {
	ID      string                    `yaml:"id"`
	Name    string                    `yaml:"name"`
	Overlay map[string]map[string]any `yaml:"overlay"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			URL:       "http://localhost:5000",
			Timeout:   2 * time.Minute,
			Period:    2026,
			AxisCount: 10_001,
			AxisMax:   1_000_000,
		},
		Scenario: ScenarioConfig{
			Concurrency: 3,
		},
		Cache: CacheConfig{
			LocalMaxEntries: 1000,
			CalculationTTL:  7 * 24 * time.Hour,
			NarrativeTTL:    7 * 24 * time.Hour,
			BackendTimeout:  2 * time.Second,
			Backend:         BackendSQLite,
			SQLite:          SQLiteConfig{Path: "acacalc-cache.db"},
			Redis:           RedisConfig{Addr: "localhost:6379", Prefix: "acacalc:"},
			Badger:          BadgerConfig{Path: "acacalc-badger"},
		},
		Narrative: NarrativeConfig{
			MaxTokens:   2000,
			Timeout:     time.Minute,
			RateLimit:   2,
			Burst:       5,
			KeyRounding: 1,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "acacalc-audit.db",
			RetentionDays: 30,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv fills gaps from the environment: with no narrative providers
// configured, ANTHROPIC_API_KEY enables a default Anthropic provider.
func (c *Config) ApplyEnv() {
	if len(c.Narrative.Providers) == 0 {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			c.Narrative.Providers = []ProviderConfig{{
				Name:   "anthropic",
				Type:   "anthropic",
				URL:    "https://api.anthropic.com",
				APIKey: key,
				Model:  "claude-sonnet-4-20250514",
			}}
		} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Narrative.Providers = []ProviderConfig{{
				Name:   "openai",
				Type:   "openai",
				APIKey: key,
				Model:  "gpt-4o",
			}}
		}
	}
	if c.Engine.APIKey == "" {
		c.Engine.APIKey = os.Getenv("ACACALC_ENGINE_API_KEY")
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case BackendSQLite, BackendRedis, BackendBadger, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Engine.URL == "" {
		errs = append(errs, errors.New("engine.url is required"))
	}
	if c.Scenario.Concurrency < 1 {
		errs = append(errs, errors.New("scenario.concurrency must be at least 1"))
	}
	if c.Engine.AxisCount < 1 {
		errs = append(errs, errors.New("engine.axis_count must be at least 1"))
	}
	if c.Cache.LocalMaxEntries < 1 {
		errs = append(errs, errors.New("cache.local_max_entries must be at least 1"))
	}
	if c.Cache.CalculationTTL <= 0 || c.Cache.NarrativeTTL <= 0 {
		errs = append(errs, errors.New("cache ttls must be positive"))
	}
	names := make(map[string]bool, len(c.Narrative.Providers))
	for i, p := range c.Narrative.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("narrative.providers[%d].name is required", i))
		}
		switch p.Type {
		case "", "anthropic", "openai":
		default:
			errs = append(errs, fmt.Errorf("narrative.providers[%d].type: unknown type %q", i, p.Type))
		}
		names[p.Name] = true
	}
	for i, t := range c.Narrative.Fallback {
		if !names[t.Provider] {
			errs = append(errs, fmt.Errorf("narrative.fallback[%d]: unknown provider %q", i, t.Provider))
		}
	}
	for i, r := range c.Reforms {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("reforms[%d].id is required", i))
		}
	}
	return errors.Join(errs...)
}
