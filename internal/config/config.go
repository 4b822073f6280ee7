// Package config defines all configuration structures for the
// ResearchPool-Intelligence platform. No I/O or parsing logic lives here,
// only plain data types and validation.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters. Redis backs the cross-run
// seen-store and the per-source pipeline run locks.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer parameters. The platform only publishes
// (item-published and run-completed events); consumption belongs to
// downstream systems.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	ClientID     string        `mapstructure:"client_id"`
	RequiredAcks string        `mapstructure:"required_acks"` // "none" | "one" | "all"
	Compression  string        `mapstructure:"compression"`   // "" | "gzip" | "snappy" | "lz4" | "zstd"
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	Async        bool          `mapstructure:"async"`
}

// LLMConfig holds parameters for the analysis-stage language model client.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
}

// LogConfig holds structured-logging parameters. Fields map one-to-one onto
// logging.LogConfig.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "console"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	HealthAddr      string        `mapstructure:"health_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ScoringConfig overrides the built-in relevance lexicons. Empty lists keep
// the defaults shipped with the scorer.
type ScoringConfig struct {
	PrimaryConcepts   []string `mapstructure:"primary_concepts"`
	SecondaryConcepts []string `mapstructure:"secondary_concepts"`
}

// SourceConfig holds the per-source harvesting profile. One entry exists per
// configured source under the top-level "sources" map, keyed by the source
// name ("aggregator", "video", "image", "news", "biomed").
type SourceConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Queries []string `mapstructure:"queries"`

	// Window is the discovery lookback. Sources whose native query window is
	// coarser than this set LocalRecencyFilter so the scanner re-filters
	// locally.
	Window             time.Duration `mapstructure:"window"`
	LocalRecencyFilter bool          `mapstructure:"local_recency_filter"`

	// MinEngagement drops low-signal records before dedup. Zero disables the
	// threshold, which is the norm for literature sources.
	MinEngagement int `mapstructure:"min_engagement"`

	// RatePerMinute sizes the sliding-window limiter shared by scanning and
	// detail fetching. RatePatience bounds how long a caller waits on a
	// saturated window before giving up with a rate-limited error.
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	RatePatience  time.Duration `mapstructure:"rate_patience"`

	// TypeFilters keeps only the listed work types ("journal-article", ...).
	// Empty keeps everything.
	TypeFilters []string `mapstructure:"type_filters"`

	// AnalysisEnabled turns the LLM analysis stage on for this source.
	AnalysisEnabled bool `mapstructure:"analysis_enabled"`

	// ProhibitedPhrases and WarningPhrases extend the built-in compliance
	// lexicons for this source only.
	ProhibitedPhrases []string `mapstructure:"prohibited_phrases"`
	WarningPhrases    []string `mapstructure:"warning_phrases"`

	// TagLexicon maps a pool tag to the keywords that trigger it in a
	// record's title or content. Matching is case-insensitive on word
	// boundaries.
	TagLexicon map[string][]string `mapstructure:"tag_lexicon"`

	// Competitors lists names whose mention earns the "competitor" tag.
	Competitors []string `mapstructure:"competitors"`

	// BaseURL absolutizes relative record URLs for this source.
	BaseURL string `mapstructure:"base_url"`

	// WeightOverrides replaces the default scoring weights. Keys must be
	// exactly the five dimension names and values must sum to 1.0 ± 1e-3.
	WeightOverrides map[string]float64 `mapstructure:"weight_overrides"`

	// MaxItems caps how many records a single run publishes. Zero means
	// unlimited.
	MaxItems int `mapstructure:"max_items"`

	// Interval is the worker ticker period for this source.
	Interval time.Duration `mapstructure:"interval"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the entire platform. Every
// infrastructure component and application service reads its settings from
// the relevant sub-struct; nothing re-reads the environment after Load.
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Database DatabaseConfig          `mapstructure:"database"`
	Redis    RedisConfig             `mapstructure:"redis"`
	Kafka    KafkaConfig             `mapstructure:"kafka"`
	LLM      LLMConfig               `mapstructure:"llm"`
	Log      LogConfig               `mapstructure:"log"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
	Worker   WorkerConfig            `mapstructure:"worker"`
	Scoring  ScoringConfig           `mapstructure:"scoring"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// scoreDimensions are the exact keys a weight-override map must carry.
var scoreDimensions = []string{"relevance", "recency", "source_quality", "engagement", "compliance"}

// weightSumTolerance bounds the deviation of an override sum from 1.0.
const weightSumTolerance = 1e-3

// Validate performs semantic validation of the fully-populated Config. It
// returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	switch c.Kafka.RequiredAcks {
	case "none", "one", "all":
	default:
		return fmt.Errorf("config: kafka.required_acks %q is invalid; expected none|one|all", c.Kafka.RequiredAcks)
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Sources
	for name, src := range c.Sources {
		if err := src.validate(name); err != nil {
			return err
		}
	}

	return nil
}

// validate checks a single source profile. Disabled sources are still
// validated so that a broken profile fails fast rather than at enable time.
func (s *SourceConfig) validate(name string) error {
	if s.Enabled && len(s.Queries) == 0 {
		return fmt.Errorf("config: sources.%s.queries must contain at least one query", name)
	}
	if s.Window < 0 {
		return fmt.Errorf("config: sources.%s.window must not be negative", name)
	}
	if s.MinEngagement < 0 {
		return fmt.Errorf("config: sources.%s.min_engagement must not be negative", name)
	}
	if s.RatePerMinute < 0 {
		return fmt.Errorf("config: sources.%s.rate_per_minute must not be negative", name)
	}
	if s.MaxItems < 0 {
		return fmt.Errorf("config: sources.%s.max_items must not be negative", name)
	}
	if s.BaseURL != "" && !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("config: sources.%s.base_url must start with http:// or https://", name)
	}
	if len(s.WeightOverrides) > 0 {
		if len(s.WeightOverrides) != len(scoreDimensions) {
			return fmt.Errorf("config: sources.%s.weight_overrides must name all %d dimensions", name, len(scoreDimensions))
		}
		sum := 0.0
		for _, dim := range scoreDimensions {
			w, ok := s.WeightOverrides[dim]
			if !ok {
				return fmt.Errorf("config: sources.%s.weight_overrides is missing dimension %q", name, dim)
			}
			if w < 0 {
				return fmt.Errorf("config: sources.%s.weight_overrides[%s] must not be negative", name, dim)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > weightSumTolerance {
			return fmt.Errorf("config: sources.%s.weight_overrides must sum to 1.0, got %.4f", name, sum)
		}
	}
	return nil
}

// EnabledSources returns the names of all enabled source profiles.
func (c *Config) EnabledSources() []string {
	out := make([]string, 0, len(c.Sources))
	for name, src := range c.Sources {
		if src.Enabled {
			out = append(out, name)
		}
	}
	return out
}
