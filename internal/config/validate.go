package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *BridgeConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Key == "" && !c.API.Keyring {
		return errors.New("api.key is required unless api.keyring is enabled")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Coordinator.Interval < MinPollInterval {
		return fmt.Errorf("coordinator.interval must be >= %v, got %v", MinPollInterval, c.Coordinator.Interval)
	}
	if c.Coordinator.Timeout <= 0 {
		return errors.New("coordinator.timeout must be > 0")
	}
	if c.Coordinator.Timeout > c.Coordinator.Interval {
		return fmt.Errorf("coordinator.timeout (%v) cannot exceed coordinator.interval (%v)",
			c.Coordinator.Timeout, c.Coordinator.Interval)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS == nil {
			return errors.New("mqtt.qos is required")
		}
		if *c.MQTT.QoS < 0 || *c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be between 0 and 2, got %d", *c.MQTT.QoS)
		}
	}

	switch c.Store.Driver {
	case "":
	case "postgres":
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required")
		}
	default:
		return fmt.Errorf("store.driver must be postgres, sqlite or empty, got %q", c.Store.Driver)
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.HTTP.MetricsPath, "/") {
		return fmt.Errorf("http.metrics_path must start with /, got %q", c.HTTP.MetricsPath)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
