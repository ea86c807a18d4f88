// Package config loads the scanner configuration from YAML and fills in
// documented defaults for anything omitted.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tokenscout/tokenscout/internal/pipeline"
	"github.com/tokenscout/tokenscout/internal/providers"
)

// ProviderConfig is the per-provider operational envelope.
type ProviderConfig struct {
	Class         string        `yaml:"class"` // premium | standard | free
	MaxConcurrent int           `yaml:"max_concurrent"`
	MinSpacing    time.Duration `yaml:"min_spacing"`
	MaxBatch      int           `yaml:"max_batch"`
	Timeout       time.Duration `yaml:"timeout"`
	Breaker       providers.BreakerConfig `yaml:"breaker"`

	// Snapshot, when set, serves this provider from a JSON snapshot file
	// instead of a live connector.
	Snapshot string `yaml:"snapshot"`
}

// CallSpec converts a provider entry into the planner's call envelope.
func (p ProviderConfig) CallSpec() providers.CallSpec {
	return providers.CallSpec{Timeout: p.Timeout, MaxBatch: p.MaxBatch}
}

// Config is the complete scanner configuration.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Pipeline  pipeline.ControllerConfig `yaml:"pipeline"`

	MetadataProvider string `yaml:"metadata_provider"`
	OHLCVProvider    string `yaml:"ohlcv_provider"`

	CacheEntries int `yaml:"cache_entries"`

	Alerted AlertedConfig `yaml:"alerted"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// AlertedConfig selects the alerted-set backend.
type AlertedConfig struct {
	Backend  string        `yaml:"backend"` // memory | redis | postgres
	RedisURL string        `yaml:"redis_url"`
	DSN      string        `yaml:"dsn"`
	TTL      time.Duration `yaml:"ttl"`
}

// HTTPConfig configures the status endpoint.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"ohlcv": {
				Class:         "premium",
				MaxConcurrent: 2,
				MinSpacing:    300 * time.Millisecond,
				MaxBatch:      1,
				Timeout:       30 * time.Second,
				Breaker:       providers.DefaultBreakerConfig,
			},
			"metadata": {
				Class:         "standard",
				MaxConcurrent: 3,
				MinSpacing:    100 * time.Millisecond,
				MaxBatch:      30,
				Timeout:       15 * time.Second,
				Breaker:       providers.DefaultBreakerConfig,
			},
			"tokenlist": {
				Class:         "free",
				MaxConcurrent: 5,
				MinSpacing:    50 * time.Millisecond,
				MaxBatch:      50,
				Timeout:       12 * time.Second,
				Breaker:       providers.DefaultBreakerConfig,
			},
		},
		Pipeline:         pipeline.DefaultControllerConfig(),
		MetadataProvider: "metadata",
		OHLCVProvider:    "ohlcv",
		CacheEntries:     4096,
		Alerted:          AlertedConfig{Backend: "memory", TTL: 7 * 24 * time.Hour},
		HTTP:             HTTPConfig{Listen: ":8087"},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		if p.MaxConcurrent < 0 {
			return fmt.Errorf("provider %s: max_concurrent must be non-negative", name)
		}
		if p.MaxBatch < 0 {
			return fmt.Errorf("provider %s: max_batch must be non-negative", name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider %s: timeout must be non-negative", name)
		}
	}
	if c.Pipeline.CycleBudget <= 0 {
		return fmt.Errorf("pipeline cycle_budget must be positive")
	}
	for role, name := range map[string]string{
		"metadata_provider": c.MetadataProvider,
		"ohlcv_provider":    c.OHLCVProvider,
	} {
		if name == "" {
			continue
		}
		if _, ok := c.Providers[name]; !ok {
			return fmt.Errorf("%s %q has no providers entry", role, name)
		}
	}
	switch c.Alerted.Backend {
	case "", "memory", "redis", "postgres":
	default:
		return fmt.Errorf("alerted backend %q not recognized", c.Alerted.Backend)
	}
	if c.Alerted.Backend == "redis" && c.Alerted.RedisURL == "" {
		return fmt.Errorf("alerted backend redis requires redis_url")
	}
	if c.Alerted.Backend == "postgres" && c.Alerted.DSN == "" {
		return fmt.Errorf("alerted backend postgres requires dsn")
	}
	return nil
}

// GateConfig converts a provider entry into gate limits, falling back to
// its class defaults.
func (p ProviderConfig) GateConfig() providers.GateConfig {
	cfg := providers.GateConfig{MaxConcurrent: p.MaxConcurrent, MinSpacing: p.MinSpacing}
	if class, ok := providers.DefaultGateConfigs[p.Class]; ok {
		if cfg.MaxConcurrent <= 0 {
			cfg.MaxConcurrent = class.MaxConcurrent
		}
		if cfg.MinSpacing <= 0 {
			cfg.MinSpacing = class.MinSpacing
		}
	}
	return cfg
}
