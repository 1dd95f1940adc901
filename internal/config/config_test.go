package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: home
api:
  base_url: https://airvpn.example/api
  key: abc123
coordinator:
  interval: 10m
  require_initial_data: true
mqtt:
  enabled: true
  broker: tcp://localhost:1883
store:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: airvpn
    user: bridge
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "home" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "home")
	}
	if cfg.API.BaseURL != "https://airvpn.example/api" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://airvpn.example/api")
	}
	if cfg.Coordinator.Interval != 10*time.Minute {
		t.Errorf("Coordinator.Interval = %v, want 10m", cfg.Coordinator.Interval)
	}
	if !cfg.Coordinator.RequireInitialData {
		t.Error("Coordinator.RequireInitialData = false, want true")
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT.Broker = %q", cfg.MQTT.Broker)
	}
	if cfg.Store.Postgres.Host != "localhost" {
		t.Errorf("Store.Postgres.Host = %q, want %q", cfg.Store.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_AIRVPN_KEY", "secret123")

	yaml := `
instance:
  id: home
api:
  key: ${TEST_AIRVPN_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Key != "secret123" {
		t.Errorf("API.Key = %q, want %q", cfg.API.Key, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: home
api:
  key: abc123
store:
  driver: sqlite
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want default %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.API.MaxRetries != 0 {
		t.Errorf("API.MaxRetries = %d, want 0", cfg.API.MaxRetries)
	}
	if cfg.Coordinator.Interval != 300*time.Second {
		t.Errorf("Coordinator.Interval = %v, want 300s", cfg.Coordinator.Interval)
	}
	if cfg.Coordinator.RequireInitialData {
		t.Error("Coordinator.RequireInitialData should default to false")
	}
	if cfg.Store.SQLite.Path != DefaultSQLitePath {
		t.Errorf("Store.SQLite.Path = %q, want default %q", cfg.Store.SQLite.Path, DefaultSQLitePath)
	}
	if cfg.Store.Postgres.Port != 0 {
		t.Errorf("Store.Postgres.Port = %d, want 0 for sqlite driver", cfg.Store.Postgres.Port)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}
	if cfg.MQTT.QoS == nil || *cfg.MQTT.QoS != DefaultQoS {
		t.Errorf("MQTT.QoS = %v, want default %d", cfg.MQTT.QoS, DefaultQoS)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
}

func TestLoadWithDefaults_ExplicitQoSZero(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: home\nmqtt:\n  enabled: true\n  broker: tcp://localhost:1883\n  qos: 0\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.MQTT.QoS == nil || *cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT.QoS = %v, want explicit 0 kept", cfg.MQTT.QoS)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: home\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.HasPrefix(err.Error(), "validate config: ") {
		t.Errorf("error = %q, want validate config prefix", err)
	}
}

func TestLoadAndValidate_Example(t *testing.T) {
	t.Setenv("AIRVPN_API_KEY", "abc123")
	t.Setenv("AIRVPN_DB_PASSWORD", "secret")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "bridge.example.yaml"))
	if err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if cfg.API.Key != "abc123" {
		t.Errorf("API.Key = %q, want %q", cfg.API.Key, "abc123")
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want ErrNotExist", err)
	}
}

func validConfig() BridgeConfig {
	cfg := BridgeConfig{
		Instance: InstanceConfig{ID: "test"},
		API:      APIConfig{Key: "abc"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *BridgeConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *BridgeConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "bad base url",
			mutate:  func(c *BridgeConfig) { c.API.BaseURL = "airvpn.org/api" },
			wantErr: `api.base_url must be an http(s) URL, got "airvpn.org/api"`,
		},
		{
			name:    "missing key",
			mutate:  func(c *BridgeConfig) { c.API.Key = "" },
			wantErr: "api.key is required unless api.keyring is enabled",
		},
		{
			name: "keyring instead of key",
			mutate: func(c *BridgeConfig) {
				c.API.Key = ""
				c.API.Keyring = true
			},
		},
		{
			name:    "interval too short",
			mutate:  func(c *BridgeConfig) { c.Coordinator.Interval = 5 * time.Second },
			wantErr: "coordinator.interval must be >= 30s, got 5s",
		},
		{
			name:    "timeout exceeds interval",
			mutate:  func(c *BridgeConfig) { c.Coordinator.Timeout = 10 * time.Minute },
			wantErr: "coordinator.timeout (10m0s) cannot exceed coordinator.interval (5m0s)",
		},
		{
			name:    "mqtt without broker",
			mutate:  func(c *BridgeConfig) { c.MQTT.Enabled = true },
			wantErr: "mqtt.broker is required when mqtt is enabled",
		},
		{
			name: "mqtt qos out of range",
			mutate: func(c *BridgeConfig) {
				qos := 3
				c.MQTT = MQTTConfig{Enabled: true, Broker: "tcp://localhost:1883", QoS: &qos}
			},
			wantErr: "mqtt.qos must be between 0 and 2, got 3",
		},
		{
			name: "mqtt qos zero",
			mutate: func(c *BridgeConfig) {
				qos := 0
				c.MQTT = MQTTConfig{Enabled: true, Broker: "tcp://localhost:1883", QoS: &qos}
			},
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *BridgeConfig) { c.Store.Driver = "redis" },
			wantErr: `store.driver must be postgres, sqlite or empty, got "redis"`,
		},
		{
			name: "postgres missing password",
			mutate: func(c *BridgeConfig) {
				c.Store.Driver = "postgres"
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 4}
			},
			wantErr: "store.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *BridgeConfig) {
				c.Store.Driver = "postgres"
				c.Store.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "store.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "bad metrics path",
			mutate:  func(c *BridgeConfig) { c.HTTP.MetricsPath = "metrics" },
			wantErr: `http.metrics_path must start with /, got "metrics"`,
		},
		{
			name:    "bad log level",
			mutate:  func(c *BridgeConfig) { c.Log.Level = "trace" },
			wantErr: `log.level must be debug, info, warn or error, got "trace"`,
		},
		{
			name:   "valid config",
			mutate: func(c *BridgeConfig) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	errLocked := errors.New("keyring locked")

	tests := []struct {
		name    string
		api     APIConfig
		lookup  func() (string, error)
		want    string
		wantErr bool
	}{
		{
			name:   "configured key wins",
			api:    APIConfig{Key: "abc", Keyring: true},
			lookup: func() (string, error) { return "from-keyring", nil },
			want:   "abc",
		},
		{
			name:   "keyring",
			api:    APIConfig{Keyring: true},
			lookup: func() (string, error) { return "from-keyring", nil },
			want:   "from-keyring",
		},
		{
			name:    "keyring error",
			api:     APIConfig{Keyring: true},
			lookup:  func() (string, error) { return "", errLocked },
			wantErr: true,
		},
		{
			name:    "no source",
			api:     APIConfig{},
			lookup:  func() (string, error) { return "unused", nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BridgeConfig{API: tt.api}
			got, err := cfg.ResolveAPIKey(tt.lookup)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
