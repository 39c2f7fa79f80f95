package room

import (
	"time"

	"github.com/openfleet/location-relay/internal/model"
)

// Sender delivers pre-serialized frames to one client connection.
// TrySend must never block: a full or closed connection returns false and
// the room responds by dropping that client only.
type Sender interface {
	// TrySend queues a frame for delivery. Returns false if the client
	// cannot accept it (slow consumer or closed connection).
	TrySend(frame []byte) bool

	// Close tears down the underlying connection. Must be idempotent.
	Close()
}

// Client is one accepted connection inside a room. Owned exclusively by
// the room that accepted it.
type Client struct {
	Info   model.ClientInfo
	Sender Sender
}

// Config holds per-room settings.
type Config struct {
	ThrottleWindow time.Duration // min interval between broadcasts
	InboxBuffer    int           // room message queue depth
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ThrottleWindow: 1 * time.Second,
		InboxBuffer:    256,
	}
}

// Stats is a point-in-time snapshot of one room.
type Stats struct {
	EntityID   string `json:"entityId"`
	Clients    int    `json:"clients"`
	Broadcasts int64  `json:"broadcasts"`
	Coalesced  int64  `json:"coalesced"`
}

// RegistryConfig holds registry and eviction settings.
type RegistryConfig struct {
	Room            Config
	IdleTTL         time.Duration // idle time before a room is evicted
	JanitorInterval time.Duration // eviction scan interval
}

// DefaultRegistryConfig returns sensible defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Room:            DefaultConfig(),
		IdleTTL:         5 * time.Minute,
		JanitorInterval: 30 * time.Second,
	}
}

// RegistryStats is a point-in-time snapshot of the registry.
type RegistryStats struct {
	Rooms   int     `json:"rooms"`
	Clients int     `json:"clients"`
	Detail  []Stats `json:"detail,omitempty"`
}
