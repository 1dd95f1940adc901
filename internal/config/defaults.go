package config

import (
	"time"

	"github.com/rickgao/airvpn-bridge/internal/api"
)

// Default values for optional configuration fields.
const (
	DefaultBaseURL         = api.DefaultBaseURL
	DefaultAPITimeout      = 30 * time.Second
	DefaultRetryBackoff    = 1 * time.Second
	DefaultPollInterval    = 300 * time.Second
	DefaultPollTimeout     = 60 * time.Second
	MinPollInterval        = 30 * time.Second
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultBaseTopic       = "airvpn"
	DefaultQoS             = 1
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 4
	DefaultMinConns        = 1
	DefaultSQLitePath      = "airvpn-bridge.db"
	DefaultHTTPPort        = 8080
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

func (c *BridgeConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Coordinator defaults
	if c.Coordinator.Interval == 0 {
		c.Coordinator.Interval = DefaultPollInterval
	}
	if c.Coordinator.Timeout == 0 {
		c.Coordinator.Timeout = DefaultPollTimeout
	}

	// MQTT defaults
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = DefaultBaseTopic
	}
	if c.MQTT.QoS == nil {
		qos := DefaultQoS
		c.MQTT.QoS = &qos
	}

	// Store defaults
	switch c.Store.Driver {
	case "postgres":
		applyDBDefaults(&c.Store.Postgres)
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			c.Store.SQLite.Path = DefaultSQLitePath
		}
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
