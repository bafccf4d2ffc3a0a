package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CADBRIDGE_CONFIG env, ./cadbridge.yaml, /etc/cadbridge/config.yaml)
//  3. Environment variable overrides
//  4. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CADBRIDGE_CONFIG environment variable
// 3. ./cadbridge.yaml in the current directory
// 4. /etc/cadbridge/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check CADBRIDGE_CONFIG env var.
	if envPath := os.Getenv("CADBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"cadbridge.yaml",
		"/etc/cadbridge/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CADBRIDGE_HOST"); v != "" {
		cfg.Socket.Host = v
		cfg.XMLRPC.Host = v
	}
	if v := os.Getenv("CADBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Socket.Port = port
		}
	}
	if v := os.Getenv("CADBRIDGE_XMLRPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.XMLRPC.Port = port
		}
	}
	if v := os.Getenv("CADBRIDGE_XMLRPC_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.XMLRPC.Enabled = enabled
		}
	}
	if v := os.Getenv("CADBRIDGE_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dispatch.DefaultTimeout = d
		}
	}
	if v := os.Getenv("CADBRIDGE_HISTORY"); v != "" {
		cfg.History.Type = v
	}
	if v := os.Getenv("CADBRIDGE_HISTORY_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.History.MaxSize = size
		}
	}
	if v := os.Getenv("CADBRIDGE_HISTORY_PATH"); v != "" {
		cfg.History.SQLite.Path = v
	}
	if v := os.Getenv("CADBRIDGE_METRICS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Metrics.Enabled = enabled
		}
	}
}
