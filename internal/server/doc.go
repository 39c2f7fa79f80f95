// Package server implements the stateless HTTP edge of the relay.
//
// It parses the entity identifier from the request path, verifies the
// signed token on upgrade requests, and hands accepted websocket
// connections to the entity's room. The plain read path serves the
// room's cached last sample without authentication. The server holds no
// per-entity state of its own; all routing is a path parse plus a
// registry lookup.
package server
