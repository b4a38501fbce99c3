// Package config handles agent configuration with sane defaults so the
// tracing core functions with zero configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level agent configuration.
type Config struct {
	Agent  AgentConfig  `yaml:"agent"`
	Export ExportConfig `yaml:"export"`
}

// AgentConfig identifies the monitored service and the agent's own surface.
type AgentConfig struct {
	// Service name reported in the resource identity
	ServiceName string `yaml:"service_name"`

	// Service version reported in the resource identity
	ServiceVersion string `yaml:"service_version"`

	// Environment (production, staging, development)
	Environment string `yaml:"environment"`

	// Log level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// Health/diagnostics endpoint port (0 disables)
	HealthPort int `yaml:"health_port"`
}

// ExportConfig controls span export.
type ExportConfig struct {
	// Collector endpoint (host:port)
	Endpoint string `yaml:"endpoint"`

	// Per-request transport timeout
	Timeout time.Duration `yaml:"timeout"`

	// Probe the endpoint over gRPC at startup
	ProbeGRPC bool `yaml:"probe_grpc"`

	// TLS configuration
	TLS struct {
		Enabled    bool   `yaml:"enabled"`
		CAFile     string `yaml:"ca_file"`
		SkipVerify bool   `yaml:"skip_verify"`
	} `yaml:"tls"`

	// Authentication
	Auth struct {
		// API key header
		APIKey string `yaml:"api_key"`
		// Bearer token
		BearerToken string `yaml:"bearer_token"`
	} `yaml:"auth"`

	// Batching
	Batch struct {
		// Max spans per batch
		MaxSize int `yaml:"max_size"`
		// Max wait before an underfull batch is sent
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"batch"`

	// Bounded producer queue
	Queue struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"queue"`

	// Grace period for the final drain on shutdown
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// Expand environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns defaults tuned to favor host-application latency
// over telemetry completeness.
func DefaultConfig() *Config {
	cfg := &Config{
		Agent: AgentConfig{
			ServiceName: "kortex-agent",
			Environment: "production",
			LogLevel:    "info",
			HealthPort:  8889,
		},
	}
	cfg.Export.Endpoint = "localhost:4318"
	cfg.Export.Timeout = 10 * time.Second
	cfg.Export.Batch.MaxSize = 100
	cfg.Export.Batch.Timeout = time.Second
	cfg.Export.Queue.Capacity = 10000
	cfg.Export.ShutdownGrace = 5 * time.Second
	return cfg
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KORTEX_ENDPOINT"); v != "" {
		c.Export.Endpoint = v
	}
	if v := os.Getenv("KORTEX_API_KEY"); v != "" {
		c.Export.Auth.APIKey = v
	}
	if v := os.Getenv("KORTEX_SERVICE_NAME"); v != "" {
		c.Agent.ServiceName = v
	}
	if v := os.Getenv("KORTEX_ENVIRONMENT"); v != "" {
		c.Agent.Environment = v
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Export.Endpoint == "" {
		return fmt.Errorf("export endpoint is required")
	}
	if c.Export.Batch.MaxSize <= 0 {
		return fmt.Errorf("batch max_size must be positive")
	}
	if c.Export.Batch.Timeout < 10*time.Millisecond {
		return fmt.Errorf("batch timeout must be at least 10ms")
	}
	if c.Export.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive")
	}
	return nil
}
