package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Shadowbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Thing     ThingConfig     `yaml:"thing"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Adapters  []AdapterConfig `yaml:"adapters"`
}

// ThingConfig identifies the thing this bridge aggregates and the shadow
// topic namespace it reconciles against.
type ThingConfig struct {
	// Name is the thing name used in shadow topics.
	Name string `yaml:"name"`

	// TopicPrefix is the shadow topic namespace.
	// Default: "shadowbridge/things"
	TopicPrefix string `yaml:"topic_prefix"`
}

// DatabaseConfig contains SQLite settings for the diagnostics journal.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AdapterConfig describes one device adapter instance.
type AdapterConfig struct {
	// Name is the adapter instance name, unique within the bridge.
	Name string `yaml:"name"`

	// Driver selects the registered driver constructing the rule tables.
	Driver string `yaml:"driver"`

	// Connection is the device stream URL ("tcp://host:port" or
	// "unix:///path").
	Connection string `yaml:"connection"`

	// Synchronous selects strict write-then-read operation for devices
	// that never volunteer records.
	Synchronous bool `yaml:"synchronous"`

	// Terminator delimits records on the wire. Driver default when empty.
	Terminator string `yaml:"terminator"`

	// WriteTerminator is appended to outbound commands when it differs
	// from Terminator. Empty means use Terminator.
	WriteTerminator string `yaml:"write_terminator"`

	// ReadTimeout bounds one read wait. Default 2s.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// PollInterval schedules status queries. Zero disables polling.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Initial seeds property values before the device reports, replacing
	// the unknown sentinel.
	Initial map[string]any `yaml:"initial"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHADOWBRIDGE_SECTION_KEY
// For example: SHADOWBRIDGE_DATABASE_PATH, SHADOWBRIDGE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Thing: ThingConfig{
			Name:        "thing-001",
			TopicPrefix: "shadowbridge/things",
		},
		Database: DatabaseConfig{
			Path:        "./data/shadowbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "shadowbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHADOWBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHADOWBRIDGE_THING_NAME"); v != "" {
		cfg.Thing.Name = v
	}

	if v := os.Getenv("SHADOWBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SHADOWBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHADOWBRIDGE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SHADOWBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHADOWBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("SHADOWBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SHADOWBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Thing.Name == "" {
		errs = append(errs, "thing.name is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	seen := make(map[string]bool, len(c.Adapters))
	for i, a := range c.Adapters {
		prefix := fmt.Sprintf("adapters[%d]", i)
		if a.Name == "" {
			errs = append(errs, prefix+".name is required")
		} else if seen[a.Name] {
			errs = append(errs, prefix+".name duplicates "+a.Name)
		}
		seen[a.Name] = true
		if a.Driver == "" {
			errs = append(errs, prefix+".driver is required")
		}
		if a.Connection == "" {
			errs = append(errs, prefix+".connection is required")
		}
		if a.ReadTimeout < 0 {
			errs = append(errs, prefix+".read_timeout must not be negative")
		}
		if a.PollInterval < 0 {
			errs = append(errs, prefix+".poll_interval must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
