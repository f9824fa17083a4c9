package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/mqttlink/internal/link"
)

// envPrefix starts every environment override.
const envPrefix = "MQTTLINK_"

// Config is the root configuration structure for mqttlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Link     LinkConfig     `yaml:"link"`
	Journal  JournalConfig  `yaml:"journal"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig `yaml:"broker"`
	Auth         MQTTAuthConfig   `yaml:"auth"`
	TLS          MQTTTLSConfig    `yaml:"tls"`
	Will         MQTTWillConfig   `yaml:"will"`
	KeepAlive    int              `yaml:"keepalive"` // seconds
	CleanSession bool             `yaml:"clean_session"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ClientID fixes the client identifier. Leave empty to generate
	// <client_id_prefix>-<host>-<unix>-<pid> on every connect.
	ClientID       string `yaml:"client_id"`
	ClientIDPrefix string `yaml:"client_id_prefix"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig contains TLS material for the broker connection.
type MQTTTLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CAPath   string `yaml:"ca_path"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Version  string `yaml:"version"` // "tlsv1.2", "tlsv1.3" or empty
	Insecure bool   `yaml:"insecure"`
}

// MQTTWillConfig contains the Last Will and Testament.
type MQTTWillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// LinkConfig tunes the connection supervisor.
type LinkConfig struct {
	StepTimeout       time.Duration `yaml:"step_timeout"`
	BackoffFloor      time.Duration `yaml:"backoff_floor"`
	BackoffCeiling    time.Duration `yaml:"backoff_ceiling"`
	RestartInterval   time.Duration `yaml:"restart_interval"` // negative disables
	ReconcileAttempts int           `yaml:"reconcile_attempts"`
	MaxSubscriptions  int           `yaml:"max_subscriptions"`
}

// JournalConfig contains settings for the SQLite link event journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"` // seconds
	BufferSize  int    `yaml:"buffer_size"`
	Retention   int    `yaml:"retention_days"` // 0 keeps everything
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// APIConfig contains settings for the HTTP status API served by "run".
type APIConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"` // 0 picks a free port
	Timeouts  APITimeoutsConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig   `yaml:"websocket"`
}

// APITimeoutsConfig contains HTTP server timeouts in seconds.
type APITimeoutsConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the /api/v1/ws event stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"` // bytes
	PingInterval   int `yaml:"ping_interval"`    // seconds
	PongTimeout    int `yaml:"pong_timeout"`     // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTLINK_SECTION_KEY
// For example: MQTTLINK_MQTT_HOST, MQTTLINK_JOURNAL_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadDefaults returns the default configuration with environment
// overrides applied, for running without a config file.
func LoadDefaults() (*Config, error) {
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientIDPrefix: link.DefaultClientIDPrefix,
			},
			Will: MQTTWillConfig{
				Topic:   "status/lastwill",
				Payload: "client-offline",
				QoS:     1,
			},
			KeepAlive: int(link.DefaultKeepAlive / time.Second),
		},
		Link: LinkConfig{
			StepTimeout:       link.DefaultStepTimeout,
			BackoffFloor:      link.DefaultBackoffFloor,
			BackoffCeiling:    link.DefaultBackoffCeiling,
			RestartInterval:   link.DefaultRestartInterval,
			ReconcileAttempts: link.DefaultReconcileAttempts,
			MaxSubscriptions:  link.DefaultMaxSubscriptions,
		},
		Journal: JournalConfig{
			Enabled:     false,
			Path:        "./data/mqttlink.db",
			WALMode:     true,
			BusyTimeout: 5,
			BufferSize:  256,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8081,
			Timeouts: APITimeoutsConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	setString(&cfg.MQTT.Broker.Host, "MQTT_HOST")
	setInt(&cfg.MQTT.Broker.Port, "MQTT_PORT")
	setString(&cfg.MQTT.Broker.ClientID, "MQTT_CLIENT_ID")
	setString(&cfg.MQTT.Auth.Username, "MQTT_USERNAME")
	setString(&cfg.MQTT.Auth.Password, "MQTT_PASSWORD")
	setString(&cfg.MQTT.TLS.CAFile, "MQTT_CAFILE")
	setString(&cfg.MQTT.TLS.CertFile, "MQTT_CERTFILE")
	setString(&cfg.MQTT.TLS.KeyFile, "MQTT_KEYFILE")

	// Journal
	setString(&cfg.Journal.Path, "JOURNAL_PATH")

	// InfluxDB
	setString(&cfg.InfluxDB.URL, "INFLUXDB_URL")
	setString(&cfg.InfluxDB.Token, "INFLUXDB_TOKEN")

	// API
	setString(&cfg.API.Host, "API_HOST")
	setInt(&cfg.API.Port, "API_PORT")

	// Logging
	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

// setInt leaves dst unchanged when the variable is not a valid integer.
func setInt(dst *int, key string) {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}
	if c.MQTT.Will.QoS < 0 || c.MQTT.Will.QoS > 2 {
		errs = append(errs, "mqtt.will.qos must be 0, 1, or 2")
	}
	if strings.ContainsAny(c.MQTT.Will.Topic, "+#") {
		errs = append(errs, "mqtt.will.topic must not contain wildcards")
	}
	if (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}

	// Link validation
	if c.Link.StepTimeout < 0 || c.Link.BackoffFloor < 0 || c.Link.BackoffCeiling < 0 {
		errs = append(errs, "link durations must not be negative")
	}
	if c.Link.BackoffCeiling > 0 && c.Link.BackoffCeiling < c.Link.BackoffFloor {
		errs = append(errs, "link.backoff_ceiling must not be below link.backoff_floor")
	}
	if c.Link.ReconcileAttempts < 0 {
		errs = append(errs, "link.reconcile_attempts must not be negative")
	}
	if c.Link.MaxSubscriptions < 0 {
		errs = append(errs, "link.max_subscriptions must not be negative")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}
	if c.Journal.Retention < 0 {
		errs = append(errs, "journal.retention_days must not be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 0 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 0 and 65535")
	}
	if c.API.Timeouts.Read < 0 || c.API.Timeouts.Write < 0 || c.API.Timeouts.Idle < 0 {
		errs = append(errs, "api.timeouts must not be negative")
	}
	if ws := c.API.WebSocket; c.API.Enabled && (ws.MaxMessageSize <= 0 || ws.PingInterval <= 0 || ws.PongTimeout <= 0) {
		errs = append(errs, "api.websocket max_message_size, ping_interval and pong_timeout must be positive")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// LinkOptions converts the mqtt and link sections into link.Options.
func (c *Config) LinkOptions() link.Options {
	return link.Options{
		ClientID:          c.MQTT.Broker.ClientID,
		ClientIDPrefix:    c.MQTT.Broker.ClientIDPrefix,
		CleanSession:      c.MQTT.CleanSession,
		KeepAlive:         time.Duration(c.MQTT.KeepAlive) * time.Second,
		StepTimeout:       c.Link.StepTimeout,
		BackoffFloor:      c.Link.BackoffFloor,
		BackoffCeiling:    c.Link.BackoffCeiling,
		ReconcileAttempts: c.Link.ReconcileAttempts,
		RestartInterval:   c.Link.RestartInterval,
		MaxSubscriptions:  c.Link.MaxSubscriptions,
	}
}

// TLSSettings converts the tls section into link.TLSConfig.
func (m *MQTTConfig) TLSSettings() link.TLSConfig {
	return link.TLSConfig{
		CAFile:   m.TLS.CAFile,
		CAPath:   m.TLS.CAPath,
		CertFile: m.TLS.CertFile,
		KeyFile:  m.TLS.KeyFile,
		Version:  m.TLS.Version,
		Insecure: m.TLS.Insecure,
	}
}

// TLSEnabled reports whether any TLS setting is present.
func (m *MQTTConfig) TLSEnabled() bool {
	return m.TLS != (MQTTTLSConfig{})
}

// GetFlushInterval returns the InfluxDB flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.InfluxDB.FlushInterval) * time.Second
}
