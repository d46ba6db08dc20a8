// Package config handles configuration loading for docuflow.
// It supports XDG config paths, project-level overrides, and
// environment variables, plus the static per-tier quota table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all process configuration for docuflow.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Defaults     DefaultsConfig     `mapstructure:"defaults"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
}

// AnthropicConfig holds settings for the Claude-backed extraction agent.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// DefaultsConfig holds default values for submitted tasks.
type DefaultsConfig struct {
	Tier string `mapstructure:"tier"`
}

// CoordinationConfig holds distributed coordination settings.
type CoordinationConfig struct {
	// HeartbeatInterval is how often servers are health-probed.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// CacheTTL bounds how long responses are cached by request id.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// RequestTimeout is the default per-request timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Servers lists remote coordination endpoints to register at
	// startup. Empty disables distributed coordination.
	Servers []CoordinationServer `mapstructure:"servers"`
}

// CoordinationServer describes one remote coordination endpoint.
type CoordinationServer struct {
	ID           string        `mapstructure:"id"`
	Endpoint     string        `mapstructure:"endpoint"`
	Capabilities []string      `mapstructure:"capabilities"`
	Priority     int           `mapstructure:"priority"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds debug log settings.
type LoggingConfig struct {
	// DebugLogPath is the file path for the debug log; empty disables it.
	DebugLogPath string `mapstructure:"debug_log_path"`
}

// ArchiveConfig holds result archive settings.
type ArchiveConfig struct {
	// DBPath is the SQLite database path; empty uses the XDG data dir.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
//  1. Environment variables (DOCUFLOW_*, ANTHROPIC_API_KEY)
//  2. Project config (.docuflow.yaml in current directory or a parent)
//  3. User config (~/.config/docuflow/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("DOCUFLOW")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures built-in default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("defaults.tier", "free")

	v.SetDefault("coordination.heartbeat_interval", "30s")
	v.SetDefault("coordination.cache_ttl", "5m")
	v.SetDefault("coordination.request_timeout", "30s")

	v.SetDefault("logging.debug_log_path", "")
	v.SetDefault("archive.db_path", "")
}

// getUserConfigDir returns the XDG config directory for docuflow.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "docuflow")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "docuflow")
	}
	return filepath.Join(home, ".config", "docuflow")
}

// findProjectConfig searches for .docuflow.yaml in the current
// directory and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, ".docuflow.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
