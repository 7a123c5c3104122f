// Package config provides the configuration schema for accessctl. It is
// file-based (YAML) with environment overrides; every knob has a default
// so the engine runs with an empty file.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the access-control engine.
type Config struct {
	// Database configures policy and assignment persistence.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Audit configures where the audit trail is written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Assignments configures the assignment registry.
	Assignments AssignmentsConfig `yaml:"assignments" mapstructure:"assignments"`

	// DecisionCache configures the optional short-TTL decision cache.
	// Disabled by default: cached decisions may serve revoked access for
	// up to TTL.
	DecisionCache DecisionCacheConfig `yaml:"decision_cache" mapstructure:"decision_cache"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	// Defaults to "info". DevMode overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables development conveniences (verbose logging).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory". Memory loses everything on exit and
	// exists for development.
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=sqlite memory"`
	// Path is the SQLite database file. Required for the sqlite driver.
	Path string `yaml:"path" mapstructure:"path"`
}

// AuditConfig configures the audit trail destination.
type AuditConfig struct {
	// Output is "stdout", "file://<absolute-dir>", or "database".
	// "database" stores entries in the relational store alongside the
	// policies they document.
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,audit_output"`
	// RetentionDays applies to file output (default 90).
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`
	// MaxFileSizeMB caps one trail file before rotation (default 100).
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
	// RecentSize is the in-memory query window for file output (default 1000).
	RecentSize int `yaml:"recent_size" mapstructure:"recent_size" validate:"omitempty,min=1"`
}

// AssignmentsConfig configures grant validation.
type AssignmentsConfig struct {
	// MinReasonLength is the minimum justification length (default 10).
	MinReasonLength int `yaml:"min_reason_length" mapstructure:"min_reason_length" validate:"omitempty,min=1"`
}

// DecisionCacheConfig configures the resolver's decision cache.
type DecisionCacheConfig struct {
	// Enabled turns the cache on. Default false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// TTL bounds staleness (default 5s). Also the revocation lag bound.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// MaxSize is the entry cap (default 4096).
	MaxSize int `yaml:"max_size" mapstructure:"max_size" validate:"omitempty,min=1"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled turns the endpoint on. Default false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Addr is the listen address (default "127.0.0.1:9464").
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// Defaults used by SetDefaults.
const (
	DefaultLogLevel         = "info"
	DefaultDatabaseDriver   = "sqlite"
	DefaultDatabasePath     = "accessctl.db"
	DefaultAuditOutput      = "database"
	DefaultRetentionDays    = 90
	DefaultMaxFileSizeMB    = 100
	DefaultRecentSize       = 1000
	DefaultMinReasonLength  = 10
	DefaultDecisionCacheTTL = 5 * time.Second
	DefaultDecisionCacheMax = 4096
	DefaultMetricsAddr      = "127.0.0.1:9464"
)

// SetDefaults fills empty optional fields.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Audit.Output == "" {
		c.Audit.Output = DefaultAuditOutput
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = DefaultRetentionDays
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
	if c.Audit.RecentSize == 0 {
		c.Audit.RecentSize = DefaultRecentSize
	}
	if c.Assignments.MinReasonLength == 0 {
		c.Assignments.MinReasonLength = DefaultMinReasonLength
	}
	if c.DecisionCache.TTL == 0 {
		c.DecisionCache.TTL = DefaultDecisionCacheTTL
	}
	if c.DecisionCache.MaxSize == 0 {
		c.DecisionCache.MaxSize = DefaultDecisionCacheMax
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

// SetDevDefaults applies development-mode overrides. Call after CLI
// flags may have flipped DevMode.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"
	if !viper.IsSet("database.driver") {
		c.Database.Driver = "memory"
		c.Database.Path = ""
	}
	if !viper.IsSet("audit.output") {
		c.Audit.Output = "stdout"
	}
}
