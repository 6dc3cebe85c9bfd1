package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the SmartThings bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	SmartThings SmartThingsConfig `yaml:"smartthings"`
	Entities    EntitiesConfig    `yaml:"entities"`
	Polling     PollingConfig     `yaml:"polling"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Store       StoreConfig       `yaml:"store"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SmartThingsConfig contains cloud API connection settings.
type SmartThingsConfig struct {
	// BaseURL is the SmartThings API root. Overridable for tests.
	BaseURL string `yaml:"base_url"`

	// Token is the OAuth2 access token or personal access token used as a
	// bearer credential on every request.
	Token string `yaml:"token"`

	LocationID   string `yaml:"location_id"`
	LocationName string `yaml:"location_name"`

	// RequestTimeout is the per-request timeout in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// MaxRetries bounds retry attempts for transient failures (429, 5xx,
	// network errors). Authorization failures are never retried.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the fixed delay between retry attempts, in seconds.
	RetryDelay int `yaml:"retry_delay"`

	// CacheTTL is the device status cache time-to-live in seconds.
	CacheTTL int `yaml:"cache_ttl"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains client-side request rate limiting settings.
// SmartThings allows roughly 10 requests per 10 seconds per token; the
// defaults stay under that.
type RateLimitConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
}

// EntitiesConfig controls which entity categories are created from devices.
type EntitiesConfig struct {
	IncludeLights       bool `yaml:"include_lights"`
	IncludeSwitches     bool `yaml:"include_switches"`
	IncludeSensors      bool `yaml:"include_sensors"`
	IncludeClimate      bool `yaml:"include_climate"`
	IncludeCovers       bool `yaml:"include_covers"`
	IncludeMediaPlayers bool `yaml:"include_media_players"`
	IncludeButtons      bool `yaml:"include_buttons"`

	// DeviceAllowList restricts polling and entity creation to the listed
	// device IDs. Empty means all devices.
	DeviceAllowList []string `yaml:"device_allow_list"`
}

// PollingConfig contains status polling settings.
type PollingConfig struct {
	// Interval between poll cycles, in seconds.
	Interval int `yaml:"interval"`

	// ErrorBackoff is the fixed pause after an unexpected poll cycle
	// failure, in seconds.
	ErrorBackoff int `yaml:"error_backoff"`

	// BatchSize bounds how many device status fetches run concurrently.
	BatchSize int `yaml:"batch_size"`

	// BatchPause is the pacing delay between batches, in milliseconds.
	BatchPause int `yaml:"batch_pause"`
}

// APIConfig contains local HTTP server settings for the host-facing API.
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

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// StoreConfig contains device snapshot store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// InfluxDBConfig contains optional telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MQTTConfig contains optional MQTT state mirror settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
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
// Environment variables follow the pattern: STBRIDGE_SECTION_KEY
// For example: STBRIDGE_SMARTTHINGS_TOKEN, STBRIDGE_API_HOST
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

// Save writes the configuration back to a YAML file using an atomic
// replace-on-write: the file is written to a temporary path in the same
// directory and renamed over the target, so a crash mid-write never leaves
// a half-written config behind. Used to persist refreshed tokens and
// setup results.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing config: %w", err)
	}

	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		SmartThings: SmartThingsConfig{
			BaseURL:        "https://api.smartthings.com/v1",
			RequestTimeout: 8,
			MaxRetries:     3,
			RetryDelay:     2,
			CacheTTL:       30,
			RateLimit: RateLimitConfig{
				WindowSeconds: 10,
				MaxRequests:   8,
			},
		},
		Entities: EntitiesConfig{
			IncludeLights:       true,
			IncludeSwitches:     true,
			IncludeSensors:      false,
			IncludeClimate:      true,
			IncludeCovers:       true,
			IncludeMediaPlayers: true,
			IncludeButtons:      true,
		},
		Polling: PollingConfig{
			Interval:     10,
			ErrorBackoff: 5,
			BatchSize:    6,
			BatchPause:   100,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8780,
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
		Store: StoreConfig{
			Path: "./data/stbridge.db",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "stbridge",
			},
			QoS:         1,
			TopicPrefix: "stbridge",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: STBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// SmartThings — the token is the usual candidate for env injection so
	// it can stay out of the config file.
	if v := os.Getenv("STBRIDGE_SMARTTHINGS_TOKEN"); v != "" {
		cfg.SmartThings.Token = v
	}
	if v := os.Getenv("STBRIDGE_SMARTTHINGS_LOCATION_ID"); v != "" {
		cfg.SmartThings.LocationID = v
	}
	if v := os.Getenv("STBRIDGE_SMARTTHINGS_BASE_URL"); v != "" {
		cfg.SmartThings.BaseURL = v
	}

	// API
	if v := os.Getenv("STBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Store
	if v := os.Getenv("STBRIDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// InfluxDB
	if v := os.Getenv("STBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// MQTT
	if v := os.Getenv("STBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("STBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("STBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.SmartThings.BaseURL == "" {
		errs = append(errs, "smartthings.base_url is required")
	}
	if c.SmartThings.Token == "" {
		errs = append(errs, "smartthings.token is required (set STBRIDGE_SMARTTHINGS_TOKEN environment variable)")
	}
	if c.SmartThings.MaxRetries < 0 {
		errs = append(errs, "smartthings.max_retries must not be negative")
	}
	if c.SmartThings.CacheTTL < 1 {
		errs = append(errs, "smartthings.cache_ttl must be at least 1 second")
	}
	if c.SmartThings.RateLimit.MaxRequests < 1 {
		errs = append(errs, "smartthings.rate_limit.max_requests must be at least 1")
	}

	if c.Polling.Interval < 3 {
		errs = append(errs, "polling.interval must be at least 3 seconds")
	}
	if c.Polling.BatchSize < 1 {
		errs = append(errs, "polling.batch_size must be at least 1")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the API request timeout as a Duration.
func (c *SmartThingsConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetRetryDelay returns the fixed retry backoff as a Duration.
func (c *SmartThingsConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// GetCacheTTL returns the status cache TTL as a Duration.
func (c *SmartThingsConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// GetWindow returns the rate limit window as a Duration.
func (c *RateLimitConfig) GetWindow() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// GetInterval returns the polling interval as a Duration.
func (c *PollingConfig) GetInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// GetErrorBackoff returns the poll error backoff as a Duration.
func (c *PollingConfig) GetErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoff) * time.Second
}

// GetBatchPause returns the inter-batch pacing delay as a Duration.
func (c *PollingConfig) GetBatchPause() time.Duration {
	return time.Duration(c.BatchPause) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
