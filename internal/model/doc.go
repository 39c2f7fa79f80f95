// Package model defines shared data types used across the location relay.
//
// Conventions:
//   - Coordinates: float64 decimal degrees (WGS 84)
//   - Speed: float64 meters per second, never negative
//   - Timestamps: int64 milliseconds since Unix epoch
//   - IDs: opaque strings for entities and tenants, UUID strings for connections
package model
