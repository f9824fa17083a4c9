package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mqttlink/internal/link"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    client_id_prefix: "plant"
  auth:
    username: "user"
    password: "secret"
  tls:
    ca_file: "/etc/mqtt/ca.crt"
    version: "tlsv1.3"
  will:
    topic: "plant/status"
    payload: "gone"
    qos: 2
    retain: true
  keepalive: 30
link:
  step_timeout: 250ms
  backoff_floor: 1s
  backoff_ceiling: 1m
  restart_interval: 12h
  reconcile_attempts: 5
journal:
  enabled: true
  path: "/tmp/journal.db"
logging:
  level: debug
  format: text
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Will.Topic != "plant/status" || cfg.MQTT.Will.QoS != 2 || !cfg.MQTT.Will.Retain {
		t.Errorf("MQTT.Will = %+v", cfg.MQTT.Will)
	}
	if cfg.Link.StepTimeout != 250*time.Millisecond {
		t.Errorf("Link.StepTimeout = %v, want 250ms", cfg.Link.StepTimeout)
	}
	if cfg.Link.RestartInterval != 12*time.Hour {
		t.Errorf("Link.RestartInterval = %v, want 12h", cfg.Link.RestartInterval)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/journal.db" {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
	// Unset fields keep their defaults.
	if cfg.Link.MaxSubscriptions != link.DefaultMaxSubscriptions {
		t.Errorf("Link.MaxSubscriptions = %d, want default %d", cfg.Link.MaxSubscriptions, link.DefaultMaxSubscriptions)
	}
	if !cfg.MQTT.TLSEnabled() {
		t.Error("TLSEnabled() = false with ca_file set")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "mqttlink.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Enabled || cfg.Journal.Enabled || cfg.InfluxDB.Enabled {
		t.Error("sample config should leave optional sinks disabled")
	}
	if cfg.Journal.Retention != 30 {
		t.Errorf("Journal.Retention = %d, want 30", cfg.Journal.Retention)
	}
	if ws := cfg.API.WebSocket; ws.MaxMessageSize != 8192 || ws.PingInterval != 30 || ws.PongTimeout != 10 {
		t.Errorf("API.WebSocket = %+v", ws)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
mqtt:
  broker:
    host: ""
    port: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "mqtt.broker.host") || !strings.Contains(err.Error(), "mqtt.broker.port") {
		t.Errorf("Load() error = %v, want both host and port reported", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MQTTLINK_MQTT_HOST", "env-broker")

	cfg, err := LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q, want env-broker", cfg.MQTT.Broker.Host)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:    "bad port",
			modify:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "bad will qos",
			modify:  func(c *Config) { c.MQTT.Will.QoS = 3 },
			wantErr: "mqtt.will.qos",
		},
		{
			name:    "wildcard will topic",
			modify:  func(c *Config) { c.MQTT.Will.Topic = "status/#" },
			wantErr: "mqtt.will.topic",
		},
		{
			name:    "cert without key",
			modify:  func(c *Config) { c.MQTT.TLS.CertFile = "client.crt" },
			wantErr: "mqtt.tls.cert_file",
		},
		{
			name: "ceiling below floor",
			modify: func(c *Config) {
				c.Link.BackoffFloor = time.Minute
				c.Link.BackoffCeiling = time.Second
			},
			wantErr: "link.backoff_ceiling",
		},
		{
			name:   "negative restart interval disables restarts",
			modify: func(c *Config) { c.Link.RestartInterval = -1 },
		},
		{
			name: "journal enabled without path",
			modify: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantErr: "journal.path",
		},
		{
			name:    "influxdb enabled without url",
			modify:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "api enabled with bad port",
			modify: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = -1
			},
			wantErr: "api.port",
		},
		{
			name: "api port zero picks a free port",
			modify: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
		},
		{
			name:    "negative api timeout",
			modify:  func(c *Config) { c.API.Timeouts.Idle = -5 },
			wantErr: "api.timeouts",
		},
		{
			name: "api enabled with zero websocket ping interval",
			modify: func(c *Config) {
				c.API.Enabled = true
				c.API.WebSocket.PingInterval = 0
			},
			wantErr: "api.websocket",
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MQTTLINK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MQTTLINK_MQTT_PORT", "8883")
	t.Setenv("MQTTLINK_MQTT_USERNAME", "testuser")
	t.Setenv("MQTTLINK_MQTT_PASSWORD", "testpass")
	t.Setenv("MQTTLINK_MQTT_CAFILE", "/etc/ca.crt")
	t.Setenv("MQTTLINK_JOURNAL_PATH", "/custom/journal.db")
	t.Setenv("MQTTLINK_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("MQTTLINK_LOG_LEVEL", "debug")
	t.Setenv("MQTTLINK_API_PORT", "9090")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.MQTT.TLS.CAFile != "/etc/ca.crt" {
		t.Errorf("MQTT.TLS.CAFile = %q, want /etc/ca.crt", cfg.MQTT.TLS.CAFile)
	}
	if cfg.Journal.Path != "/custom/journal.db" {
		t.Errorf("Journal.Path = %q, want %q", cfg.Journal.Path, "/custom/journal.db")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestApplyEnvOverrides_InvalidPort(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("MQTTLINK_MQTT_PORT", "not-a-number")

	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want unchanged 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Will.Topic != "status/lastwill" || cfg.MQTT.Will.Payload != "client-offline" || cfg.MQTT.Will.QoS != 1 {
		t.Errorf("defaultConfig MQTT.Will = %+v", cfg.MQTT.Will)
	}
	if cfg.MQTT.CleanSession {
		t.Error("defaultConfig MQTT.CleanSession = true, want false")
	}
	if cfg.MQTT.TLSEnabled() {
		t.Error("defaultConfig TLSEnabled() = true")
	}
}

func TestConfig_LinkOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.MQTT.KeepAlive = 45
	cfg.MQTT.Broker.ClientID = "fixed"
	cfg.Link.RestartInterval = -1

	opts := cfg.LinkOptions()

	if opts.KeepAlive != 45*time.Second {
		t.Errorf("KeepAlive = %v, want 45s", opts.KeepAlive)
	}
	if opts.ClientID != "fixed" {
		t.Errorf("ClientID = %q, want fixed", opts.ClientID)
	}
	if opts.RestartInterval != -1 {
		t.Errorf("RestartInterval = %v, want -1", opts.RestartInterval)
	}
	if opts.BackoffFloor != link.DefaultBackoffFloor || opts.BackoffCeiling != link.DefaultBackoffCeiling {
		t.Errorf("backoff = %v..%v", opts.BackoffFloor, opts.BackoffCeiling)
	}
}

func TestMQTTConfig_TLSSettings(t *testing.T) {
	m := MQTTConfig{TLS: MQTTTLSConfig{CertFile: "c", KeyFile: "k", Insecure: true}}

	got := m.TLSSettings()
	want := link.TLSConfig{CertFile: "c", KeyFile: "k", Insecure: true}
	if got != want {
		t.Errorf("TLSSettings() = %+v, want %+v", got, want)
	}
}
