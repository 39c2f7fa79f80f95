// Package room implements the per-entity state machine of the relay.
//
// Each Room owns the connected-client set and last-known sample for one
// tracked entity. All room state is confined to a single goroutine draining
// an inbox channel, so accepts, disconnects and publisher samples for one
// entity are handled strictly in arrival order with no locking. Many rooms
// run concurrently across entities.
//
// Broadcasts are throttled to at most one per window: the first sample in a
// window goes out immediately, later samples coalesce into a single
// trailing-edge broadcast carrying the newest sample.
//
// The Registry maps entity ID to Room, creating rooms lazily and evicting
// idle ones. Eviction drops only cached last-sample state, which the
// optional shared store preserves for the plain HTTP read path.
package room
