package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
thing:
  name: "avtest"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
adapters:
  - name: "avm"
    driver: "anthem-avm"
    connection: "tcp://192.168.1.40:4999"
    terminator: "\n"
    poll_interval: 5s
  - name: "projector"
    driver: "epson-projector"
    connection: "tcp://192.168.1.41:4999"
    synchronous: true
    read_timeout: 2s
    initial:
      projPower: false
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Thing.Name != "avtest" {
		t.Errorf("Thing.Name = %q, want %q", cfg.Thing.Name, "avtest")
	}

	if cfg.Thing.TopicPrefix != "shadowbridge/things" {
		t.Errorf("Thing.TopicPrefix default = %q", cfg.Thing.TopicPrefix)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if len(cfg.Adapters) != 2 {
		t.Fatalf("len(Adapters) = %d, want 2", len(cfg.Adapters))
	}

	avm := cfg.Adapters[0]
	if avm.Driver != "anthem-avm" || avm.PollInterval != 5*time.Second {
		t.Errorf("avm adapter = %+v", avm)
	}

	proj := cfg.Adapters[1]
	if !proj.Synchronous || proj.ReadTimeout != 2*time.Second {
		t.Errorf("projector adapter = %+v", proj)
	}
	if v, ok := proj.Initial["projPower"]; !ok || v != false {
		t.Errorf("projector initial = %v", proj.Initial)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Thing:    ThingConfig{Name: "thing-001"},
			Database: DatabaseConfig{Path: "/data/shadowbridge.db"},
			MQTT:     MQTTConfig{QoS: 1},
			API:      APIConfig{Port: 8080},
			Adapters: []AdapterConfig{
				{Name: "avm", Driver: "anthem-avm", Connection: "tcp://10.0.0.1:4999"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing thing name", func(c *Config) { c.Thing.Name = "" }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"adapter missing name", func(c *Config) { c.Adapters[0].Name = "" }, true},
		{"adapter missing driver", func(c *Config) { c.Adapters[0].Driver = "" }, true},
		{"adapter missing connection", func(c *Config) { c.Adapters[0].Connection = "" }, true},
		{"negative poll interval", func(c *Config) { c.Adapters[0].PollInterval = -time.Second }, true},
		{"duplicate adapter name", func(c *Config) {
			c.Adapters = append(c.Adapters, AdapterConfig{
				Name: "avm", Driver: "relay", Connection: "tcp://10.0.0.2:4999",
			})
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SHADOWBRIDGE_THING_NAME", "cinema")
	t.Setenv("SHADOWBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SHADOWBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SHADOWBRIDGE_MQTT_PORT", "8883")
	t.Setenv("SHADOWBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("SHADOWBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("SHADOWBRIDGE_API_HOST", "192.168.1.1")

	applyEnvOverrides(cfg)

	if cfg.Thing.Name != "cinema" {
		t.Errorf("Thing.Name = %q, want %q", cfg.Thing.Name, "cinema")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Thing.Name == "" {
		t.Error("defaultConfig should have non-empty Thing.Name")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
