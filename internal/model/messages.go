package model

import "encoding/json"

// Server→client message types.
const (
	TypeConnected      = "connected"
	TypeLocationUpdate = "entity_location_update"
	TypeError          = "error"
	TypePong           = "pong"
)

// Client→server message types.
const (
	TypeDriverLocation = "driver_location"
	TypePing           = "ping"
)

// Error codes carried on error messages.
const (
	CodeUnknownType    = "unknown_type"
	CodeMalformedJSON  = "malformed_json"
	CodeRoleNotAllowed = "role_not_allowed"
)

// Envelope is the minimal parse used to dispatch an inbound message.
type Envelope struct {
	Type string `json:"type"`
}

// ConnectedMsg is sent once when a connection is accepted into a room.
type ConnectedMsg struct {
	Type        string `json:"type"` // "connected"
	Role        Role   `json:"role"`
	EntityID    string `json:"entityId"`
	ClientCount int    `json:"clientCount"`
}

// LocationUpdateMsg carries the current sample to every client in a room.
type LocationUpdateMsg struct {
	Type string `json:"type"` // "entity_location_update"
	LocationSample
}

// ErrorMsg reports a protocol violation back to the offending connection only.
type ErrorMsg struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the liveness reply to a client ping.
type PongMsg struct {
	Type string `json:"type"` // "pong"
	TS   int64  `json:"ts"`   // ms since epoch
}

// DriverLocationMsg is a position report from a publisher connection.
// Speed may arrive in either unit; meters/second wins when both are set.
type DriverLocationMsg struct {
	Type           string   `json:"type"` // "driver_location"
	TripID         string   `json:"tripId,omitempty"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	SpeedMPS       *float64 `json:"speedMps,omitempty"`
	SpeedKMH       *float64 `json:"speedKmh,omitempty"`
	HeadingDegrees float64  `json:"heading"`
	AccuracyMeters float64  `json:"accuracy"`
	ClientTS       int64    `json:"ts"` // ms since epoch, publisher clock
}

// ToSample converts the wire message into a normalized LocationSample.
// Speed falls back from m/s to km/h to zero, and is clamped at zero.
func (m DriverLocationMsg) ToSample(entityID string, serverTS int64) LocationSample {
	speed := 0.0
	switch {
	case m.SpeedMPS != nil:
		speed = *m.SpeedMPS
	case m.SpeedKMH != nil:
		speed = *m.SpeedKMH / 3.6
	}
	if speed < 0 {
		speed = 0
	}

	return LocationSample{
		EntityID:       entityID,
		TripID:         m.TripID,
		Lat:            m.Lat,
		Lng:            m.Lng,
		SpeedMPS:       speed,
		HeadingDegrees: m.HeadingDegrees,
		AccuracyMeters: m.AccuracyMeters,
		ClientTS:       m.ClientTS,
		ServerTS:       serverTS,
	}
}

// MarshalUpdate serializes a sample as an entity_location_update frame.
// Broadcasts call this once and send the identical bytes to every client.
func MarshalUpdate(s LocationSample) ([]byte, error) {
	return json.Marshal(LocationUpdateMsg{
		Type:           TypeLocationUpdate,
		LocationSample: s,
	})
}

// MarshalError serializes an error frame for a single connection.
func MarshalError(code, message string) []byte {
	data, _ := json.Marshal(ErrorMsg{Type: TypeError, Code: code, Message: message})
	return data
}
