// Package config provides unified configuration for the bridge daemon.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CADBRIDGE_ prefix)
//  4. Validation
package config

import "time"

// Config holds all configuration for the bridge daemon.
type Config struct {
	Socket        SocketConfig        `yaml:"socket"`
	XMLRPC        XMLRPCConfig        `yaml:"xmlrpc"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

// LogConfig holds logging settings. The CADBRIDGE_LOG_LEVEL and
// CADBRIDGE_DEBUG environment variables override these.
type LogConfig struct {
	Level string `yaml:"level"` // ERROR, WARN, INFO, DEBUG, TRACE; default: "INFO"
	Debug string `yaml:"debug"` // comma-separated debug categories
}

// SocketConfig holds the JSON-RPC socket frontend settings.
type SocketConfig struct {
	Host string `yaml:"host"` // default: "localhost"
	Port int    `yaml:"port"` // default: 9876
}

// XMLRPCConfig holds the XML-RPC frontend settings.
type XMLRPCConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Host    string `yaml:"host"`    // default: "localhost"
	Port    int    `yaml:"port"`    // default: 9875
}

// DispatchConfig holds queue-drain settings.
type DispatchConfig struct {
	TickInterval   time.Duration `yaml:"tick_interval"`   // default: 50ms
	DefaultTimeout time.Duration `yaml:"default_timeout"` // default: 30s
}

// HistoryConfig holds execution-history store settings.
type HistoryConfig struct {
	Type    string       `yaml:"type"`     // "memory", "sqlite", or "none", default: "memory"
	MaxSize int          `yaml:"max_size"` // for memory store, default: 1000
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings. Metrics are
// served on the XML-RPC HTTP mux, so they require the XML-RPC frontend.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Socket: SocketConfig{
			Host: "localhost",
			Port: 9876,
		},
		XMLRPC: XMLRPCConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    9875,
		},
		Dispatch: DispatchConfig{
			TickInterval:   50 * time.Millisecond,
			DefaultTimeout: 30 * time.Second,
		},
		History: HistoryConfig{
			Type:    "memory",
			MaxSize: 1000,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}
