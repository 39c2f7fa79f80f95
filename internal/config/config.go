// Package config loads and validates relay configuration from YAML files
// with environment variable expansion.
package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Room     RoomConfig     `yaml:"room"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // CORS + websocket origin allow-list
	ReadTimeout     time.Duration `yaml:"read_timeout"`    // non-upgrade requests only
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`    // HMAC secret shared with the issuer
	TokenTTL time.Duration `yaml:"token_ttl"` // TTL applied by tokengen, not checked here
}

// RoomConfig holds per-entity room settings.
type RoomConfig struct {
	ThrottleWindow  time.Duration `yaml:"throttle_window"`  // min interval between broadcasts
	SendBuffer      int           `yaml:"send_buffer"`      // per-connection outbound frames
	InboxBuffer     int           `yaml:"inbox_buffer"`     // room message queue depth
	IdleTTL         time.Duration `yaml:"idle_ttl"`         // idle time before eviction
	JanitorInterval time.Duration `yaml:"janitor_interval"` // eviction scan interval
}

// RedisConfig holds the optional last-sample cache settings.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	SampleTTL time.Duration `yaml:"sample_ttl"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
