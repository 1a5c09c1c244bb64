// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/backend"
	"github.com/parleyhq/parley/backend/anthropic"
	"github.com/parleyhq/parley/backend/gemini"
	"github.com/parleyhq/parley/backend/openai"
)

// Config represents the application configuration.
type Config struct {
	Defaults DefaultsConfig           `yaml:"defaults"`
	Backends map[string]BackendConfig `yaml:"backends"`
	Server   ServerConfig             `yaml:"server,omitempty"`
}

// ServerConfig holds server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DefaultsConfig holds default debate settings.
type DefaultsConfig struct {
	Roster           []string `yaml:"roster"`
	MaxTurns         int      `yaml:"max_turns"`
	SynthesisBackend string   `yaml:"synthesis_backend,omitempty"`
}

// BackendConfig holds backend-specific settings. API keys come from the
// environment, never from this file.
type BackendConfig struct {
	Model           string        `yaml:"model,omitempty"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	InputCostPer1K  float64       `yaml:"input_cost_per_1k,omitempty"`
	OutputCostPer1K float64       `yaml:"output_cost_per_1k,omitempty"`
	Enabled         bool          `yaml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Roster:   []string{"anthropic", "openai"},
			MaxTurns: 10,
		},
		Server: ServerConfig{
			Port: 8184,
		},
		Backends: map[string]BackendConfig{
			"anthropic": {Timeout: 5 * time.Minute, Enabled: true},
			"openai":    {Timeout: 5 * time.Minute, Enabled: true},
			"gemini":    {Timeout: 5 * time.Minute, Enabled: true},
			"mock":      {Enabled: false},
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific path. A missing file
// yields the defaults; a present file is merged over them.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, proceed with defaults
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Merge with defaults for any missing backends
	defaultCfg := Default()
	for name, defaultBackend := range defaultCfg.Backends {
		if _, exists := cfg.Backends[name]; !exists {
			cfg.Backends[name] = defaultBackend
		}
	}

	// Apply .env overrides if file exists
	if env, err := LoadEnv(".env"); err == nil {
		ApplyEnvOverrides(cfg, env)
	}

	return cfg, nil
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetBackend returns the configuration for a backend.
func (c *Config) GetBackend(name string) (BackendConfig, bool) {
	b, ok := c.Backends[name]
	return b, ok
}

// backendFactory returns the adapter factory for a known backend name,
// or nil for names this build has no adapter for.
func backendFactory(name string, cfg BackendConfig) backend.Factory {
	switch name {
	case "anthropic":
		return func() backend.Backend {
			return anthropic.New(anthropic.Config{
				Model:           cfg.Model,
				BaseURL:         cfg.BaseURL,
				Timeout:         cfg.Timeout,
				InputCostPer1K:  cfg.InputCostPer1K,
				OutputCostPer1K: cfg.OutputCostPer1K,
			})
		}
	case "openai":
		return func() backend.Backend {
			return openai.New(openai.Config{
				Model:           cfg.Model,
				BaseURL:         cfg.BaseURL,
				Timeout:         cfg.Timeout,
				InputCostPer1K:  cfg.InputCostPer1K,
				OutputCostPer1K: cfg.OutputCostPer1K,
			})
		}
	case "gemini":
		return func() backend.Backend {
			return gemini.New(gemini.Config{
				Model:           cfg.Model,
				BaseURL:         cfg.BaseURL,
				Timeout:         cfg.Timeout,
				InputCostPer1K:  cfg.InputCostPer1K,
				OutputCostPer1K: cfg.OutputCostPer1K,
			})
		}
	case "mock":
		return func() backend.Backend {
			return backend.NewMock(backend.MockConfig{ID: "mock"})
		}
	}
	return nil
}

// CreateRegistry builds a backend registry from this configuration and
// sets the configured default roster.
func (c *Config) CreateRegistry() (*backend.Registry, error) {
	registry := backend.NewRegistry()

	for name, backendCfg := range c.Backends {
		if !backendCfg.Enabled {
			continue
		}
		factory := backendFactory(name, backendCfg)
		if factory == nil {
			return nil, fmt.Errorf("unknown backend %q in config", name)
		}
		registry.Register(name, factory)
	}

	registry.SetDefaultRoster(c.Defaults.Roster...)
	return registry, nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "parley.yaml"
	}
	return filepath.Join(home, ".parley", "config.yaml")
}

// GenerateExample generates an example configuration file.
func GenerateExample() string {
	example := `# parley configuration file
# Place this file at ~/.parley/config.yaml
#
# API keys are read from the environment, never from this file:
#   ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY

defaults:
  roster: [anthropic, openai]   # Speaking order for new debates
  max_turns: 10                 # Cap on participant messages
  synthesis_backend: ""         # Empty = first roster participant

backends:
  anthropic:
    model: ""                   # Empty = adapter default
    timeout: 5m
    enabled: true

  openai:
    model: ""
    timeout: 5m
    enabled: true

  gemini:
    model: ""
    timeout: 5m
    enabled: true

  mock:
    enabled: false              # Offline scripted backend for testing

server:
  port: 8184
`
	return example
}
