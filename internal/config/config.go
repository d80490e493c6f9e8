// Package config loads and validates the channelsync YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/njoerd114/channelsync/internal/model"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// StatePath is the SQLite property store. Defaults to
	// ~/.local/share/channelsync/state.db.
	StatePath string `yaml:"state_path,omitempty"`

	// PollInterval controls how often the daemon runs a full cycle.
	// Minimum 1m, maximum 24h. Defaults to 15m if unset.
	PollInterval time.Duration `yaml:"poll_interval"`

	// AdapterTimeout bounds every outbound channel call. Maximum 2m.
	// Defaults to 30s.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	// MaxConcurrentChannels bounds in-flight channel calls per manager.
	MaxConcurrentChannels int `yaml:"max_concurrent_channels"`

	// RetryAttempts is the number of tries for a retryable channel call.
	RetryAttempts int `yaml:"retry_attempts"`

	// Properties lists one distribution configuration per property. Channel
	// order is kept and is the reporting order of results.
	Properties []model.ChannelConfiguration `yaml:"properties"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "channelsync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/channelsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "channelsync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Property returns the configuration of one property.
func (c *Config) Property(id string) (model.ChannelConfiguration, bool) {
	for _, p := range c.Properties {
		if p.PropertyID == id {
			return p, true
		}
	}
	return model.ChannelConfiguration{}, false
}

// validate fills defaults and checks that all fields are well-formed.
func (c *Config) validate() error {
	if c.PollInterval == 0 {
		c.PollInterval = 15 * time.Minute
	}
	if c.PollInterval < time.Minute {
		return fmt.Errorf("poll_interval %v is too short (minimum 1m)", c.PollInterval)
	}
	if c.PollInterval > 24*time.Hour {
		return fmt.Errorf("poll_interval %v is too long (maximum 24h)", c.PollInterval)
	}

	if c.AdapterTimeout == 0 {
		c.AdapterTimeout = 30 * time.Second
	}
	if c.AdapterTimeout < 0 || c.AdapterTimeout > 2*time.Minute {
		return fmt.Errorf("adapter_timeout %v must be within 0-2m", c.AdapterTimeout)
	}

	if c.MaxConcurrentChannels == 0 {
		c.MaxConcurrentChannels = 4
	}
	if c.MaxConcurrentChannels < 0 {
		return fmt.Errorf("max_concurrent_channels must not be negative")
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative")
	}

	if len(c.Properties) == 0 {
		return fmt.Errorf("properties must contain at least one entry")
	}
	seen := make(map[string]bool, len(c.Properties))
	for i := range c.Properties {
		p := &c.Properties[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("properties[%d]: %w", i, err)
		}
		if seen[p.PropertyID] {
			return fmt.Errorf("property %q is configured twice", p.PropertyID)
		}
		seen[p.PropertyID] = true
		p.ApplyDefaults()
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
