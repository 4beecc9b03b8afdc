// Package config provides YAML configuration parsing for mitemp.
//
// This package enables running the sensor monitor as a standalone binary
// with a configuration file, as an alternative to the programmatic SDK.
//
// Example configuration:
//
//	title: Living room
//	poll_interval: 60s
//	port: 8080
//
//	sensor:
//	  address: 4C:65:A8:D0:12:34
//	  backend: go-ble
//	  cache_timeout: 600s
//
//	mqtt:
//	  broker: tcp://localhost:1883
//	  topic: mitemp/${HOSTNAME:-sensor}
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minInterval is the minimum allowed for every configured duration.
const minInterval = 1 * time.Second

const (
	defaultPort         = 8080
	defaultPollInterval = 60 * time.Second
	defaultBackend      = "go-ble"
	defaultAdapter      = "hci0"
	defaultCacheTimeout = 600 * time.Second
	defaultRetries      = 3
	defaultBLETimeout   = 10 * time.Second
)

// Config is the root configuration structure for mitemp.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Mi Temperature" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080; 0 disables the server.
	Port *int `yaml:"port"`

	// PollInterval is the time between monitor queries. Queries are served
	// from the sensor cache until it expires. Defaults to 60s.
	PollInterval Duration `yaml:"poll_interval"`

	// HistorySize is the number of readings kept for the dashboard chart.
	HistorySize int `yaml:"history_size"`

	Sensor SensorConfig `yaml:"sensor"`

	// MQTT is optional; an empty broker disables publishing.
	MQTT MQTTConfig `yaml:"mqtt"`
}

// SensorConfig describes the sensor and how to reach it.
type SensorConfig struct {
	// Address is the sensor's MAC address. Required.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Address string `yaml:"address"`

	// Backend is the Bluetooth stack: "go-ble" or "tinygo". Defaults to go-ble.
	Backend string `yaml:"backend"`

	// Adapter is the local HCI adapter. Defaults to hci0.
	Adapter string `yaml:"adapter"`

	// CacheTimeout is how long a reading stays fresh. Defaults to 600s.
	CacheTimeout Duration `yaml:"cache_timeout"`

	// Retries is passed through to the poller, which reports it but does
	// not act on it. Defaults to 3 when omitted.
	Retries *int `yaml:"retries"`

	// BLETimeout bounds a single wait for a sensor notification.
	// Defaults to 10s.
	BLETimeout Duration `yaml:"ble_timeout"`
}

// MQTTConfig defines where readings are published.
type MQTTConfig struct {
	// Broker is the broker URL (tcp://, ssl://, ws://, wss://).
	Broker string `yaml:"broker"`

	// Topic receives one JSON document per poll. Required with a broker.
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// Enabled reports whether MQTT publishing is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1 is the name, group 2 the ":-default" part, group 3 the default.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}

		name := sub[1]
		hasDefault := len(sub) > 2 && sub[2] != ""

		value, ok := os.LookupEnv(name)
		if ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the sensor address and in every
// MQTT string field. Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == nil {
		port := defaultPort
		c.Port = &port
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}

	s := &c.Sensor
	if s.Backend == "" {
		s.Backend = defaultBackend
	}
	if s.Adapter == "" {
		s.Adapter = defaultAdapter
	}
	if s.CacheTimeout == 0 {
		s.CacheTimeout = Duration(defaultCacheTimeout)
	}
	if s.Retries == nil {
		retries := defaultRetries
		s.Retries = &retries
	}
	if s.BLETimeout == 0 {
		s.BLETimeout = Duration(defaultBLETimeout)
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.PollInterval.Duration() < minInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minInterval, c.PollInterval.Duration())
	}
	if *c.Port < 0 || *c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", *c.Port)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size cannot be negative, got %d", c.HistorySize)
	}

	if err := c.Sensor.expandAndValidate(); err != nil {
		return err
	}
	return c.MQTT.expandAndValidate()
}

func (s *SensorConfig) expandAndValidate() error {
	if s.Address == "" {
		return fmt.Errorf("sensor.address is required")
	}
	expanded, err := expandEnvVars(s.Address)
	if err != nil {
		return fmt.Errorf("sensor.address: %w", err)
	}
	s.Address = strings.TrimSpace(expanded)
	if _, err := net.ParseMAC(s.Address); err != nil {
		return fmt.Errorf("sensor.address: invalid MAC address %q", s.Address)
	}

	if s.Backend != "go-ble" && s.Backend != "tinygo" {
		return fmt.Errorf("sensor.backend must be go-ble or tinygo, got %q", s.Backend)
	}

	if s.CacheTimeout.Duration() < minInterval {
		return fmt.Errorf("sensor.cache_timeout must be at least %s, got %s", minInterval, s.CacheTimeout.Duration())
	}
	if s.BLETimeout.Duration() < minInterval {
		return fmt.Errorf("sensor.ble_timeout must be at least %s, got %s", minInterval, s.BLETimeout.Duration())
	}
	if *s.Retries < 0 {
		return fmt.Errorf("sensor.retries cannot be negative, got %d", *s.Retries)
	}
	return nil
}

func (m *MQTTConfig) expandAndValidate() error {
	fields := []struct {
		name string
		val  *string
	}{
		{"broker", &m.Broker},
		{"topic", &m.Topic},
		{"client_id", &m.ClientID},
		{"username", &m.Username},
		{"password", &m.Password},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.val)
		if err != nil {
			return fmt.Errorf("mqtt.%s: %w", f.name, err)
		}
		*f.val = expanded
	}

	if !m.Enabled() {
		return nil
	}

	u, err := url.Parse(m.Broker)
	if err != nil {
		return fmt.Errorf("mqtt.broker: invalid url: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	case "":
		return fmt.Errorf("mqtt.broker must have a scheme (tcp:// or ssl://)")
	default:
		return fmt.Errorf("mqtt.broker scheme %q is not supported", u.Scheme)
	}

	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt.broker is set")
	}
	if strings.ContainsAny(m.Topic, "+#") {
		return fmt.Errorf("mqtt.topic must not contain wildcards, got %q", m.Topic)
	}
	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	return nil
}
