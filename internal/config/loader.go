package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper points Viper at the configuration file and wires environment
// variables. When configFile is empty, standard locations are searched
// for accessctl.yaml/.yml; requiring an explicit YAML extension keeps
// the binary itself from matching.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then returns ConfigFileNotFoundError, which
		// callers treat as env-only configuration.
		viper.SetConfigName("accessctl")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ACCESSCTL_DATABASE_PATH and friends.
	viper.SetEnvPrefix("ACCESSCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for accessctl.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".accessctl"),
		"/etc/accessctl",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "accessctl"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys so they can be overridden
// via environment variables, e.g. ACCESSCTL_AUDIT_OUTPUT.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("database.driver")
	_ = viper.BindEnv("database.path")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.retention_days")
	_ = viper.BindEnv("audit.max_file_size_mb")
	_ = viper.BindEnv("audit.recent_size")

	_ = viper.BindEnv("assignments.min_reason_length")

	_ = viper.BindEnv("decision_cache.enabled")
	_ = viper.BindEnv("decision_cache.ttl")
	_ = viper.BindEnv("decision_cache.max_size")

	_ = viper.BindEnv("metrics.enabled")
	_ = viper.BindEnv("metrics.addr")

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration, applies defaults and dev
// overrides, and validates.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration and applies defaults without
// dev overrides or validation. Use when CLI flags may still flip
// DevMode.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Absent file means env-only configuration.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the loaded config file path, or empty in
// env-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
