package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Module resolution modes for the interpreter bridge.
const (
	// ModePath imports the capability module from a directory on disk.
	ModePath = "path"

	// ModeEmbedded executes the capability module bundled into the binary.
	ModeEmbedded = "embedded"
)

// Config is the root configuration structure for the Gray Logic Miio bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// BridgeConfig configures the Python interpreter host and how the
// capability module is located.
type BridgeConfig struct {
	// Python is the interpreter executable. Default: "python3"
	Python string `yaml:"python"`

	// Mode selects module resolution: "path" or "embedded".
	// Default: "embedded"
	Mode string `yaml:"mode"`

	// SourcePath is the directory holding the capability module in path mode.
	SourcePath string `yaml:"source_path"`

	// Module is the module name imported in path mode, or the synthetic
	// name the embedded source is executed under.
	Module string `yaml:"module"`

	// Env is extra environment passed to the interpreter (KEY=VALUE).
	Env []string `yaml:"env"`

	// CallTimeout bounds a single foreign call. 0 disables the bound.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// RestartOnFailure restarts the interpreter host if it exits unexpectedly.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the wait before a restart.
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// StorageConfig contains settings for persisted session files.
type StorageConfig struct {
	// Dir is where exported session files are written.
	Dir string `yaml:"dir"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
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
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	Output string        `yaml:"output"` // stdout, stderr or file
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig configures the rotating log file used when output is "file".
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_MIIO_SOURCE_PATH
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

// Default returns the built-in configuration with environment overrides
// applied. Used by tools that run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Bridge: BridgeConfig{
			Python:              "python3",
			Mode:                ModeEmbedded,
			Module:              "miio_interface",
			CallTimeout:         30 * time.Second,
			RestartOnFailure:    true,
			RestartDelaySeconds: 2,
			MaxRestartAttempts:  10,
		},
		Storage: StorageConfig{
			Dir: "./data/sessions",
		},
		Database: DatabaseConfig{
			Path:        "./data/miio.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-miio",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: LogFileConfig{
				Path:       "./data/logs/graylogic-miio.log",
				MaxSizeMB:  10,
				MaxBackups: 5,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// envOverrides maps GRAYLOGIC_* variables onto fields. Unset or
// unparsable values leave the field alone.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"GRAYLOGIC_MIIO_PYTHON", func(c *Config, v string) { c.Bridge.Python = v }},
	{"GRAYLOGIC_MIIO_MODE", func(c *Config, v string) { c.Bridge.Mode = v }},
	{"GRAYLOGIC_MIIO_SOURCE_PATH", func(c *Config, v string) { c.Bridge.SourcePath = v }},
	{"GRAYLOGIC_STORAGE_DIR", func(c *Config, v string) { c.Storage.Dir = v }},
	{"GRAYLOGIC_DATABASE_PATH", func(c *Config, v string) { c.Database.Path = v }},
	{"GRAYLOGIC_MQTT_ENABLED", func(c *Config, v string) { parseInto(&c.MQTT.Enabled, v, strconv.ParseBool) }},
	{"GRAYLOGIC_MQTT_HOST", func(c *Config, v string) { c.MQTT.Broker.Host = v }},
	{"GRAYLOGIC_MQTT_USERNAME", func(c *Config, v string) { c.MQTT.Auth.Username = v }},
	{"GRAYLOGIC_MQTT_PASSWORD", func(c *Config, v string) { c.MQTT.Auth.Password = v }},
	{"GRAYLOGIC_API_HOST", func(c *Config, v string) { c.API.Host = v }},
	{"GRAYLOGIC_API_PORT", func(c *Config, v string) { parseInto(&c.API.Port, v, strconv.Atoi) }},
	{"GRAYLOGIC_INFLUXDB_TOKEN", func(c *Config, v string) { c.InfluxDB.Token = v }},
	{"GRAYLOGIC_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = v }},
}

func parseInto[T any](dst *T, v string, parse func(string) (T, error)) {
	if parsed, err := parse(v); err == nil {
		*dst = parsed
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Site.ID != "", "site.id is required")

	check(c.Bridge.Python != "", "bridge.python is required")
	switch c.Bridge.Mode {
	case ModeEmbedded:
	case ModePath:
		check(c.Bridge.SourcePath != "", "bridge.source_path is required in path mode (set GRAYLOGIC_MIIO_SOURCE_PATH)")
	default:
		check(false, "bridge.mode %q is not %q or %q", c.Bridge.Mode, ModePath, ModeEmbedded)
	}
	check(c.Bridge.Module != "", "bridge.module is required")
	check(c.Bridge.CallTimeout >= 0, "bridge.call_timeout must not be negative")
	check(c.Bridge.MaxRestartAttempts >= 0, "bridge.max_restart_attempts must not be negative")

	check(c.Database.Path != "", "database.path is required")

	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2")
	check(!c.MQTT.Enabled || c.MQTT.Broker.Host != "", "mqtt.broker.host is required when mqtt is enabled")

	check(!c.API.Enabled || (c.API.Port >= 1 && c.API.Port <= 65535), "api.port %d is out of range", c.API.Port)

	if c.InfluxDB.Enabled {
		check(c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
		check(c.InfluxDB.Bucket != "", "influxdb.bucket is required when influxdb is enabled")
	}

	switch c.Logging.Output {
	case "", "stdout", "stderr":
	case "file":
		check(c.Logging.File.Path != "", "logging.file.path is required when logging.output is file")
	default:
		check(false, "logging.output %q is not stdout, stderr or file", c.Logging.Output)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
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

// GetRestartDelay returns the interpreter restart delay as a Duration.
func (c *Config) GetRestartDelay() time.Duration {
	return time.Duration(c.Bridge.RestartDelaySeconds) * time.Second
}
