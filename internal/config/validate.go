package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}

	if c.Room.ThrottleWindow <= 0 {
		return errors.New("room.throttle_window must be positive")
	}
	if c.Room.SendBuffer < 1 {
		return errors.New("room.send_buffer must be >= 1")
	}
	if c.Room.InboxBuffer < 1 {
		return errors.New("room.inbox_buffer must be >= 1")
	}
	if c.Room.IdleTTL <= 0 {
		return errors.New("room.idle_ttl must be positive")
	}
	if c.Room.JanitorInterval <= 0 {
		return errors.New("room.janitor_interval must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.enabled is true")
	}

	return nil
}
