// Package config provides configuration parsing and validation for PeerLink.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server Server `yaml:"server"`
	Relay  Relay  `yaml:"relay"`
	Health Health `yaml:"health"`
	Log    Log    `yaml:"log"`
}

// Server contains listener and admission settings.
type Server struct {
	Host string `yaml:"host"` // Listen host, empty for all interfaces
	Port int    `yaml:"port"` // Listen port
	Path string `yaml:"path"` // Path prefix for all endpoints

	Key string `yaml:"key"` // Shared admission credential

	AllowDiscovery bool `yaml:"allow_discovery"` // Expose the live identifier set

	MaxConnections    int   `yaml:"max_connections"`     // Concurrent transport connection cap
	MaxMessageBytes   int64 `yaml:"max_message_bytes"`   // Per-message size limit
	MessagesPerSecond int   `yaml:"messages_per_second"` // Per-connection inbound rate limit

	TLS TLS `yaml:"tls"`
}

// TLS defines optional TLS settings for the listener.
type TLS struct {
	Cert string `yaml:"cert"` // Certificate file path
	Key  string `yaml:"key"`  // Private key file path
}

// Enabled reports whether TLS material has been configured.
func (t TLS) Enabled() bool {
	return t.Cert != "" && t.Key != ""
}

// Relay contains liveness and sweep timing.
type Relay struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // Expected client keep-alive cadence
	StalenessTimeout  time.Duration `yaml:"staleness_timeout"`  // Eviction threshold; must exceed the heartbeat interval
	SweepInterval     time.Duration `yaml:"sweep_interval"`     // How often the sweeper scans the registry
}

// Health defines the status/metrics HTTP server settings.
type Health struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Log contains logging settings.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:              "",
			Port:              9000,
			Path:              "/peerjs",
			Key:               "peerjs",
			AllowDiscovery:    false,
			MaxConnections:    5000,
			MaxMessageBytes:   64 * 1024, // negotiation payloads are small; SDP tops out well below this
			MessagesPerSecond: 50,
		},
		Relay: Relay{
			HeartbeatInterval: 5 * time.Second,
			StalenessTimeout:  15 * time.Second,
			SweepInterval:     5 * time.Second,
		},
		Health: Health{
			Enabled:      false,
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes on top of the defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// FromEnv returns the default configuration with environment overrides
// applied, for running without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Environment variable names recognized by applyEnv.
const (
	EnvHost              = "PEERLINK_HOST"
	EnvPort              = "PEERLINK_PORT"
	EnvPath              = "PEERLINK_PATH"
	EnvKey               = "PEERLINK_KEY"
	EnvAllowDiscovery    = "PEERLINK_ALLOW_DISCOVERY"
	EnvHeartbeatInterval = "PEERLINK_HEARTBEAT_INTERVAL"
	EnvStalenessTimeout  = "PEERLINK_STALENESS_TIMEOUT"
	EnvLogLevel          = "PEERLINK_LOG_LEVEL"
	EnvLogFormat         = "PEERLINK_LOG_FORMAT"
)

// applyEnv overrides individual settings from the environment. Malformed
// values are ignored in favor of the existing setting; Validate catches
// anything that matters afterwards.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvHost); ok {
		c.Server.Host = v
	}
	if v, ok := os.LookupEnv(EnvPort); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv(EnvPath); ok {
		c.Server.Path = v
	}
	if v, ok := os.LookupEnv(EnvKey); ok {
		c.Server.Key = v
	}
	if v, ok := os.LookupEnv(EnvAllowDiscovery); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Server.AllowDiscovery = b
		}
	}
	if v, ok := os.LookupEnv(EnvHeartbeatInterval); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Relay.HeartbeatInterval = d
		}
	}
	if v, ok := os.LookupEnv(EnvStalenessTimeout); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Relay.StalenessTimeout = d
		}
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok {
		c.Log.Format = v
	}
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		// Simple lookup
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.Path, "/") || c.Server.Path == "/" {
		errs = append(errs, fmt.Sprintf("server.path must start with '/' and name a prefix, got %q", c.Server.Path))
	}
	if strings.HasSuffix(c.Server.Path, "/") {
		errs = append(errs, fmt.Sprintf("server.path must not end with '/', got %q", c.Server.Path))
	}
	if c.Server.Key == "" {
		errs = append(errs, "server.key is required")
	}
	if c.Server.MaxConnections < 1 {
		errs = append(errs, "server.max_connections must be positive")
	}
	if c.Server.MaxMessageBytes < 1024 {
		errs = append(errs, "server.max_message_bytes must be at least 1024")
	}
	if c.Server.MessagesPerSecond < 1 {
		errs = append(errs, "server.messages_per_second must be positive")
	}
	if (c.Server.TLS.Cert == "") != (c.Server.TLS.Key == "") {
		errs = append(errs, "server.tls.cert and server.tls.key must be set together")
	}

	if c.Relay.HeartbeatInterval <= 0 {
		errs = append(errs, "relay.heartbeat_interval must be positive")
	}
	if c.Relay.SweepInterval <= 0 {
		errs = append(errs, "relay.sweep_interval must be positive")
	}
	if c.Relay.StalenessTimeout <= c.Relay.HeartbeatInterval {
		errs = append(errs, fmt.Sprintf(
			"relay.staleness_timeout (%s) must be greater than relay.heartbeat_interval (%s); 3x is the recommended ratio",
			c.Relay.StalenessTimeout, c.Relay.HeartbeatInterval))
	}

	if c.Health.Enabled && c.Health.Address == "" {
		errs = append(errs, "health.address is required when enabled")
	}

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ListenAddr returns the host:port the server should bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}
