package config

import (
	"strings"
	"testing"
	"time"
)

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Audit.Output != "database" {
		t.Errorf("Audit.Output = %q, want %q", cfg.Audit.Output, "database")
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", cfg.Audit.RetentionDays)
	}
	if cfg.Assignments.MinReasonLength != 10 {
		t.Errorf("MinReasonLength = %d, want 10", cfg.Assignments.MinReasonLength)
	}
	if cfg.DecisionCache.Enabled {
		t.Error("DecisionCache should default to disabled")
	}
	if cfg.DecisionCache.TTL != 5*time.Second || cfg.DecisionCache.MaxSize != 4096 {
		t.Errorf("DecisionCache = %+v", cfg.DecisionCache)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should default to disabled")
	}
}

func TestSetDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		LogLevel: "warn",
		Database: DatabaseConfig{Driver: "memory"},
		Audit:    AuditConfig{Output: "stdout", RetentionDays: 7},
	}
	cfg.SetDefaults()

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Database.Driver != "memory" || cfg.Database.Path != "" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Audit.Output != "stdout" || cfg.Audit.RetentionDays != 7 {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
}

func validConfig() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantMsg: "LogLevel",
		},
		{
			name:    "bad driver",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantMsg: "Driver",
		},
		{
			name:    "bad audit output",
			mutate:  func(c *Config) { c.Audit.Output = "syslog" },
			wantMsg: "file://<absolute-dir>",
		},
		{
			name:    "relative audit file path",
			mutate:  func(c *Config) { c.Audit.Output = "file://relative/dir" },
			wantMsg: "file://<absolute-dir>",
		},
		{
			name:    "bad metrics addr",
			mutate:  func(c *Config) { c.Metrics.Addr = "no-port" },
			wantMsg: "host:port",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Database.Driver = "sqlite"
				c.Database.Path = ""
			},
			wantMsg: "database.path",
		},
		{
			name: "database audit over memory driver",
			mutate: func(c *Config) {
				c.Database.Driver = "memory"
				c.Database.Path = ""
				c.Audit.Output = "database"
			},
			wantMsg: "sqlite driver",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateAcceptsFileOutput(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Audit.Output = "file:///var/log/accessctl"
	if err := cfg.Validate(); err != nil {
		t.Errorf("absolute file output should validate: %v", err)
	}

	cfg = validConfig()
	cfg.Database.Driver = "memory"
	cfg.Database.Path = ""
	cfg.Audit.Output = "stdout"
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory driver with stdout audit should validate: %v", err)
	}
}

func TestSetDevDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.DevMode = true
	cfg.SetDevDefaults()

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver = %q, want memory in dev mode", cfg.Database.Driver)
	}
	if cfg.Audit.Output != "stdout" {
		t.Errorf("Audit.Output = %q, want stdout in dev mode", cfg.Audit.Output)
	}

	prod := validConfig()
	prod.SetDevDefaults()
	if prod.Database.Driver != "sqlite" {
		t.Errorf("dev defaults applied without DevMode: %+v", prod.Database)
	}
}
