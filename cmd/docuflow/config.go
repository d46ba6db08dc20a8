package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docuflow/docuflow/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `View docuflow configuration.

Without arguments, displays all configuration values.
With one argument (key), displays the value for that key.

Configuration is loaded from ~/.config/docuflow/config.yaml with
project-specific overrides from .docuflow.yaml and DOCUFLOW_*
environment variables.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			displayAllConfig(cfg)
			return
		}
		displayConfigKey(cfg, args[0])
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("defaults.tier: %s\n", cfg.Defaults.Tier)
	fmt.Printf("coordination.heartbeat_interval: %s\n", cfg.Coordination.HeartbeatInterval)
	fmt.Printf("coordination.cache_ttl: %s\n", cfg.Coordination.CacheTTL)
	fmt.Printf("coordination.request_timeout: %s\n", cfg.Coordination.RequestTimeout)
	fmt.Printf("logging.debug_log_path: %s\n", cfg.Logging.DebugLogPath)
	fmt.Printf("archive.db_path: %s\n", cfg.Archive.DBPath)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "defaults.tier":
		return cfg.Defaults.Tier, nil
	case "coordination.heartbeat_interval":
		return cfg.Coordination.HeartbeatInterval.String(), nil
	case "coordination.cache_ttl":
		return cfg.Coordination.CacheTTL.String(), nil
	case "coordination.request_timeout":
		return cfg.Coordination.RequestTimeout.String(), nil
	case "logging.debug_log_path":
		return cfg.Logging.DebugLogPath, nil
	case "archive.db_path":
		return cfg.Archive.DBPath, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}
