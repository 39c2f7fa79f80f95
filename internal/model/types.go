package model

// Role identifies what a connected client is allowed to do in a room.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleAdmin      Role = "admin"
	RoleSubscriber Role = "subscriber"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePublisher, RoleAdmin, RoleSubscriber:
		return true
	}
	return false
}

// CanPublish reports whether the role may submit location samples.
// Only the publisher role may; admin and subscriber are observers.
func (r Role) CanPublish() bool {
	return r == RolePublisher
}

// LocationSample is the single most recent position report for an entity.
// Rooms retain exactly one of these per entity; there is no history.
type LocationSample struct {
	EntityID       string  `json:"entityId"`
	TripID         string  `json:"tripId,omitempty"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	SpeedMPS       float64 `json:"speedMps"` // meters/second, clamped >= 0
	HeadingDegrees float64 `json:"heading"`
	AccuracyMeters float64 `json:"accuracy"`
	ClientTS       int64   `json:"clientTs"` // ms since epoch, publisher clock
	ServerTS       int64   `json:"serverTs"` // ms since epoch, relay clock
}

// ClientInfo identifies one accepted connection within a room.
// It is owned exclusively by the room that accepted it.
type ClientInfo struct {
	ConnID   string // UUID assigned at upgrade time
	Role     Role
	Subject  string
	EntityID string
	TenantID string
}
