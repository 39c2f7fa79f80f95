package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort            = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultTokenTTL        = 15 * time.Minute
	DefaultThrottleWindow  = 1 * time.Second
	DefaultSendBuffer      = 64
	DefaultInboxBuffer     = 256
	DefaultIdleTTL         = 5 * time.Minute
	DefaultJanitorInterval = 30 * time.Second
	DefaultRedisSampleTTL  = 10 * time.Minute
	DefaultMetricsPath     = "/metrics"
)

func (c *RelayConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}

	if c.Room.ThrottleWindow == 0 {
		c.Room.ThrottleWindow = DefaultThrottleWindow
	}
	if c.Room.SendBuffer == 0 {
		c.Room.SendBuffer = DefaultSendBuffer
	}
	if c.Room.InboxBuffer == 0 {
		c.Room.InboxBuffer = DefaultInboxBuffer
	}
	if c.Room.IdleTTL == 0 {
		c.Room.IdleTTL = DefaultIdleTTL
	}
	if c.Room.JanitorInterval == 0 {
		c.Room.JanitorInterval = DefaultJanitorInterval
	}

	if c.Redis.SampleTTL == 0 {
		c.Redis.SampleTTL = DefaultRedisSampleTTL
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
