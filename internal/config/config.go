package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Static  StaticConfig  `yaml:"static"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig contains listener and worker pool configuration
type ServerConfig struct {
	Port                int    `yaml:"port"`
	BindAddress         string `yaml:"bind_address"`
	WorkerPoolSize      int    `yaml:"worker_pool_size"`
	QueueSize           int    `yaml:"queue_size"`
	ShutdownGracePeriod int    `yaml:"shutdown_grace_period"` // seconds
	MaxHeaderBytes      int    `yaml:"max_header_bytes"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes"`
}

// SessionConfig contains session store configuration
type SessionConfig struct {
	Timeout       int    `yaml:"timeout"`        // seconds
	SweepInterval int    `yaml:"sweep_interval"` // seconds, 0 disables the sweeper
	CookieName    string `yaml:"cookie_name"`
}

// StaticConfig points at the directory served as static content
type StaticConfig struct {
	Root string `yaml:"root"`
}

// MetricsConfig contains the Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracingConfig controls the OpenTelemetry span exporter
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Output      string  `yaml:"output"`       // stdout, stderr or a file path
	SampleRatio float64 `yaml:"sample_ratio"` // fraction of root spans kept
}

// Default returns the configuration used when no file is given.
// Load decodes the file on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			BindAddress:         "0.0.0.0",
			WorkerPoolSize:      16,
			QueueSize:           1024,
			ShutdownGracePeriod: 60,
			MaxHeaderBytes:      64 * 1024,
			MaxBodyBytes:        10 * 1024 * 1024,
		},
		Session: SessionConfig{
			Timeout:       1800,
			SweepInterval: 60,
			CookieName:    "sid",
		},
		Static: StaticConfig{
			Root: "./static",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Output:      "stderr",
			SampleRatio: 1.0,
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be at least 1, got %d", s.WorkerPoolSize)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	if s.ShutdownGracePeriod < 1 {
		return fmt.Errorf("shutdown_grace_period must be at least 1 second, got %d", s.ShutdownGracePeriod)
	}

	if s.MaxHeaderBytes < 1024 {
		return fmt.Errorf("max_header_bytes must be at least 1024 bytes, got %d", s.MaxHeaderBytes)
	}

	if s.MaxBodyBytes < 1 {
		return fmt.Errorf("max_body_bytes must be at least 1 byte, got %d", s.MaxBodyBytes)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval cannot be negative, got %d", s.SweepInterval)
	}

	if s.CookieName == "" {
		return fmt.Errorf("cookie_name cannot be empty")
	}

	if strings.ContainsAny(s.CookieName, "=; \t") {
		return fmt.Errorf("cookie_name contains invalid characters: '%s'", s.CookieName)
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("path must start with '/', got '%s'", m.Path)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is treated as a file path.
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// Validate validates tracing configuration
func (t *TracingConfig) Validate() error {
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be between 0 and 1, got %g", t.SampleRatio)
	}

	if t.Enabled && t.Output == "" {
		return fmt.Errorf("output cannot be empty when tracing is enabled")
	}

	return nil
}

// GetShutdownGracePeriod returns the drain grace period as a time.Duration
func (s *ServerConfig) GetShutdownGracePeriod() time.Duration {
	return time.Duration(s.ShutdownGracePeriod) * time.Second
}

// GetTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetSweepInterval returns the sweeper period as a time.Duration
func (s *SessionConfig) GetSweepInterval() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}
