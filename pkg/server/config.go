package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	TCPPort     int `toml:"tcp_port"`
	WSPort      int `toml:"ws_port"`
	MetricsPort int `toml:"metrics_port"`
}

type LimitsSection struct {
	MaxMessageLength      int `toml:"max_message_length"`
	MaxHandleLength       int `toml:"max_handle_length"`
	MaxConnections        int `toml:"max_connections"`
	SessionTimeoutSeconds int `toml:"session_timeout_seconds"`
}

// ServerConfig holds the resolved server configuration
type ServerConfig struct {
	TCPPort               int
	WSPort                int // WebSocket transport port (0 = disabled)
	MetricsPort           int // Internal /metrics + /health port (0 = disabled)
	MaxMessageLength      uint32
	MaxHandleLength       int
	MaxConnections        int // 0 = unlimited
	SessionTimeoutSeconds int // 0 = idle sessions are never reaped
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		TCPPort:               8080,
		WSPort:                8081,
		MetricsPort:           9090,
		MaxMessageLength:      4096,
		MaxHandleLength:       32,
		MaxConnections:        0, // unlimited
		SessionTimeoutSeconds: 0, // the base protocol has no idle timeout
	}
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	cfg := DefaultConfig()
	return TOMLConfig{
		Server: ServerSection{
			TCPPort:     cfg.TCPPort,
			WSPort:      cfg.WSPort,
			MetricsPort: cfg.MetricsPort,
		},
		Limits: LimitsSection{
			MaxMessageLength:      int(cfg.MaxMessageLength),
			MaxHandleLength:       cfg.MaxHandleLength,
			MaxConnections:        cfg.MaxConnections,
			SessionTimeoutSeconds: cfg.SessionTimeoutSeconds,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates a default file if
// not found, and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path); err != nil {
			// If we can't write, just return defaults without error
			// (might be a permissions issue, but we can still run)
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	// Load from file
	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables follow the pattern: PARLEY_SECTION_KEY
// Example: PARLEY_SERVER_TCP_PORT=9000
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	// Server section
	if val := os.Getenv("PARLEY_SERVER_TCP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.TCPPort = port
		}
	}
	if val := os.Getenv("PARLEY_SERVER_WS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.WSPort = port
		}
	}
	if val := os.Getenv("PARLEY_SERVER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.MetricsPort = port
		}
	}

	// Limits section
	if val := os.Getenv("PARLEY_LIMITS_MAX_MESSAGE_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxMessageLength = limit
		}
	}
	if val := os.Getenv("PARLEY_LIMITS_MAX_HANDLE_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxHandleLength = limit
		}
	}
	if val := os.Getenv("PARLEY_LIMITS_MAX_CONNECTIONS"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxConnections = limit
		}
	}
	if val := os.Getenv("PARLEY_LIMITS_SESSION_TIMEOUT_SECONDS"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil {
			config.Limits.SessionTimeoutSeconds = timeout
		}
	}

	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	// Active settings use defaults, commented settings show available options
	content := `# Parley Server Configuration
# This file was auto-generated with default values
# Restart the server for changes to take effect
#
# Environment variables can override these settings:
# PARLEY_SECTION_KEY (e.g., PARLEY_SERVER_TCP_PORT=9000)

[server]
# Port for TCP connections
tcp_port = 8080

# Port for the WebSocket transport (/ws), carrying the same binary frames
# Set to 0 to disable
ws_port = 8081

# Port for the internal metrics server (/metrics, /health)
# Never expose this publicly. Set to 0 to disable
metrics_port = 9090

[limits]
# Maximum chat message length in bytes
max_message_length = 4096

# Maximum handle length in bytes
max_handle_length = 32

# Maximum concurrent connections (0 = unlimited)
max_connections = 0

# Disconnect sessions idle longer than this many seconds (0 = never)
session_timeout_seconds = 0
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}
	cfg.WSPort = c.Server.WSPort
	cfg.MetricsPort = c.Server.MetricsPort

	if c.Limits.MaxMessageLength != 0 {
		cfg.MaxMessageLength = uint32(c.Limits.MaxMessageLength)
	}
	if c.Limits.MaxHandleLength != 0 {
		cfg.MaxHandleLength = c.Limits.MaxHandleLength
	}
	if c.Limits.MaxConnections != 0 {
		cfg.MaxConnections = c.Limits.MaxConnections
	}
	if c.Limits.SessionTimeoutSeconds != 0 {
		cfg.SessionTimeoutSeconds = c.Limits.SessionTimeoutSeconds
	}

	return cfg
}
