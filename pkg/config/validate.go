package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// socket.port must be a valid port; 0 means an ephemeral port and is
	// allowed for tests.
	if c.Socket.Port < 0 || c.Socket.Port > 65535 {
		errs = append(errs, fmt.Errorf("socket.port must be 0..65535, got %d", c.Socket.Port))
	}

	if c.XMLRPC.Enabled {
		if c.XMLRPC.Port < 0 || c.XMLRPC.Port > 65535 {
			errs = append(errs, fmt.Errorf("xmlrpc.port must be 0..65535, got %d", c.XMLRPC.Port))
		}
		if c.XMLRPC.Enabled && c.Socket.Port != 0 && c.XMLRPC.Port == c.Socket.Port {
			errs = append(errs, fmt.Errorf("xmlrpc.port and socket.port must differ, both are %d", c.Socket.Port))
		}
	}

	if c.Dispatch.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.tick_interval must be > 0, got %s", c.Dispatch.TickInterval))
	}
	if c.Dispatch.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.default_timeout must be > 0, got %s", c.Dispatch.DefaultTimeout))
	}

	// history.type must be a known value.
	switch c.History.Type {
	case "memory", "sqlite", "none":
		// valid
	default:
		errs = append(errs, fmt.Errorf("history.type must be \"memory\", \"sqlite\", or \"none\", got %q", c.History.Type))
	}

	// If history.type is "sqlite", a path must be set.
	if c.History.Type == "sqlite" && c.History.SQLite.Path == "" {
		errs = append(errs, fmt.Errorf("history.sqlite.path is required when history.type is \"sqlite\""))
	}
	if c.History.Type == "memory" && c.History.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("history.max_size must be > 0, got %d", c.History.MaxSize))
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Path == "" {
		errs = append(errs, fmt.Errorf("observability.metrics.path is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}
