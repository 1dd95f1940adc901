package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*BridgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg BridgeConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*BridgeConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*BridgeConfig, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ResolveAPIKey returns the configured API key, falling back to lookup when
// the key is empty and the keyring is enabled.
func (c *BridgeConfig) ResolveAPIKey(lookup func() (string, error)) (string, error) {
	if c.API.Key != "" {
		return c.API.Key, nil
	}
	if !c.API.Keyring {
		return "", fmt.Errorf("api.key is empty and api.keyring is disabled")
	}
	key, err := lookup()
	if err != nil {
		return "", fmt.Errorf("read api key from keyring: %w", err)
	}
	return key, nil
}
