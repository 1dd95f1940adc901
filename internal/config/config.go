package config

import "time"

// BridgeConfig is the root configuration for a bridge instance.
type BridgeConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	API         APIConfig         `yaml:"api"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Store       StoreConfig       `yaml:"store"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
}

// InstanceConfig identifies this bridge.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds AirVPN API settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Key          string        `yaml:"key"`     // API key; leave empty to read it from the keyring
	Keyring      bool          `yaml:"keyring"` // Look the key up in the OS keyring
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"` // 0 = single attempt
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// CoordinatorConfig holds polling settings.
type CoordinatorConfig struct {
	Interval           time.Duration `yaml:"interval"`
	Timeout            time.Duration `yaml:"timeout"`
	RequireInitialData bool          `yaml:"require_initial_data"`
}

// MQTTConfig holds Home Assistant MQTT settings.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	BaseTopic       string `yaml:"base_topic"`
	QoS             *int   `yaml:"qos"` // 0, 1 or 2; unset selects the default
}

// StoreConfig selects where current entity states are kept.
type StoreConfig struct {
	Driver   string       `yaml:"driver"` // "postgres", "sqlite" or empty to disable
	Postgres DBConfig     `yaml:"postgres"`
	SQLite   SQLiteConfig `yaml:"sqlite"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds the HTTP server settings.
type HTTPConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
