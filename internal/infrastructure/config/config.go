package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names read by applyEnvOverrides.
const (
	EnvConnectionString = "AZ_IOT_CONNECTION_STRING"
	EnvTrustAnchor      = "AZ_IOT_ROOT_CERTIFICATE"
	EnvMQTTHost         = "HUBLINK_MQTT_HOST"
	EnvLogLevel         = "HUBLINK_LOG_LEVEL"
	EnvDatabasePath     = "HUBLINK_DATABASE_PATH"
	EnvMetricsToken     = "HUBLINK_METRICS_TOKEN"
	EnvMaxMessages      = "HUBLINK_TELEMETRY_MAX_MESSAGES"
)

// Config is the root configuration structure for hublink.
// Values come from defaults, an optional YAML file, and environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Session   SessionConfig   `yaml:"session"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the device to the hub.
type DeviceConfig struct {
	// ConnectionString holds HostName, DeviceId and SharedAccessKey.
	// Prefer setting it through AZ_IOT_CONNECTION_STRING.
	ConnectionString string `yaml:"connection_string"`

	// TrustAnchor is the path to the root certificate bundle (PEM).
	TrustAnchor string `yaml:"trust_anchor"`

	// UserAgent is reported to the hub as DeviceClientType.
	UserAgent string `yaml:"user_agent"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	// Host overrides the broker host. Empty uses the connection string host.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
	QoS  int    `yaml:"qos"` // telemetry QoS

	// ConnectTimeout is the handshake timeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// KeepAlive is the keepalive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// InboundBuffer is how many received messages may wait for the loop.
	InboundBuffer int `yaml:"inbound_buffer"`
}

// SessionConfig controls credential lifetime and loop cadence.
type SessionConfig struct {
	// TokenTTL is the credential lifetime in seconds.
	TokenTTL int `yaml:"token_ttl"`

	// RenewFraction is the remaining fraction of the TTL at which the
	// credential is renewed (0.2 renews with 20% of the lifetime left).
	RenewFraction float64 `yaml:"renew_fraction"`

	// TickInterval is the sleep between loop ticks in milliseconds.
	TickInterval int `yaml:"tick_interval"`
}

// ReconnectConfig contains reconnect backoff settings, in milliseconds.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	Jitter       int `yaml:"jitter"`
}

// TelemetryConfig contains periodic telemetry settings.
type TelemetryConfig struct {
	// EveryTicks publishes one message every N loop ticks.
	EveryTicks int `yaml:"every_ticks"`

	// MaxMessages stops the loop after this many messages. 0 runs unbounded.
	MaxMessages int `yaml:"max_messages"`

	// Prefix is the body text preceding the sequence number.
	Prefix string `yaml:"prefix"`
}

// OutboxConfig contains settings for the outbound retry queue.
type OutboxConfig struct {
	// Enabled persists failed publishes in SQLite. When false a bounded
	// in-memory queue is used.
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MetricsConfig contains InfluxDB settings for session metrics.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. Environment variables (override file values)
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables that are already set are left untouched. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with production defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			UserAgent: "hublink",
		},
		MQTT: MQTTConfig{
			Port:           8883,
			TLS:            true,
			QoS:            1,
			ConnectTimeout: 30,
			KeepAlive:      60,
			InboundBuffer:  64,
		},
		Session: SessionConfig{
			TokenTTL:      3600,
			RenewFraction: 0.2,
			TickInterval:  50,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: 1000,
			MaxDelay:     60000,
			Jitter:       250,
		},
		Telemetry: TelemetryConfig{
			EveryTicks: 100,
			Prefix:     "hublink message",
		},
		Outbox: OutboxConfig{
			MaxEntries: 1000,
		},
		Database: DatabaseConfig{
			Path:        "./data/hublink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Metrics: MetricsConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvConnectionString); v != "" {
		cfg.Device.ConnectionString = v
	}
	if v := os.Getenv(EnvTrustAnchor); v != "" {
		cfg.Device.TrustAnchor = v
	}
	if v := os.Getenv(EnvMQTTHost); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvMetricsToken); v != "" {
		cfg.Metrics.Token = v
	}
	if v := os.Getenv(EnvMaxMessages); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxMessages, err)
		}
		cfg.Telemetry.MaxMessages = n
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
//
// Returns:
//   - error: Description of validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ConnectionString == "" {
		errs = append(errs, "device.connection_string is required (set "+EnvConnectionString+")")
	}
	if c.MQTT.TLS && c.Device.TrustAnchor == "" {
		errs = append(errs, "device.trust_anchor is required when mqtt.tls is enabled (set "+EnvTrustAnchor+")")
	}

	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ConnectTimeout < 1 {
		errs = append(errs, "mqtt.connect_timeout must be at least 1 second")
	}
	if c.MQTT.InboundBuffer < 1 {
		errs = append(errs, "mqtt.inbound_buffer must be at least 1")
	}

	if c.Session.TokenTTL < 1 {
		errs = append(errs, "session.token_ttl must be at least 1 second")
	}
	if c.Session.RenewFraction <= 0 || c.Session.RenewFraction >= 1 {
		errs = append(errs, "session.renew_fraction must be between 0 and 1 (exclusive)")
	}
	if c.Session.TickInterval < 1 {
		errs = append(errs, "session.tick_interval must be at least 1 millisecond")
	}

	if c.Reconnect.InitialDelay < 1 {
		errs = append(errs, "reconnect.initial_delay must be at least 1 millisecond")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, "reconnect.max_delay must not be less than reconnect.initial_delay")
	}
	if c.Reconnect.Jitter < 0 {
		errs = append(errs, "reconnect.jitter must not be negative")
	}

	if c.Telemetry.EveryTicks < 1 {
		errs = append(errs, "telemetry.every_ticks must be at least 1")
	}
	if c.Telemetry.MaxMessages < 0 {
		errs = append(errs, "telemetry.max_messages must not be negative")
	}

	if c.Outbox.MaxEntries < 1 {
		errs = append(errs, "outbox.max_entries must be at least 1")
	}
	if c.Outbox.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when outbox.enabled is set")
	}

	if c.Metrics.Enabled && c.Metrics.URL == "" {
		errs = append(errs, "metrics.url is required when metrics.enabled is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetTokenTTL returns the credential lifetime as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Session.TokenTTL) * time.Second
}

// GetTickInterval returns the loop tick interval as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Session.TickInterval) * time.Millisecond
}

// GetConnectTimeout returns the MQTT handshake timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetKeepAlive returns the MQTT keepalive interval as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}
