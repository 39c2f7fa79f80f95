package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openfleet/location-relay/internal/model"
	"github.com/openfleet/location-relay/internal/room"
	"github.com/openfleet/location-relay/internal/token"
	"github.com/openfleet/location-relay/internal/version"
)

// acceptRetries bounds the re-resolve loop when a room is evicted between
// lookup and accept.
const acceptRetries = 3

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":      true,
		"ts":      time.Now().UnixMilli(),
		"version": version.Version,
	}, http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.opts.Registry.Stats(), http.StatusOK)
}

// handleLiveRead serves the last-known sample without authentication.
// It exposes only the most recent, non-sensitive position data.
func (s *Server) handleLiveRead(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")

	rm := s.opts.Registry.GetOrCreate(entityID)
	sample, ok := rm.LastSample(r.Context())

	if !ok && s.opts.Cache != nil {
		// Cache miss and cache failure both degrade to no_data.
		if cached, err := s.opts.Cache.Get(r.Context(), entityID); err == nil {
			sample, ok = cached, true
		}
	}

	if !ok {
		s.writeJSON(w, map[string]string{"error": "no_data"}, http.StatusNotFound)
		return
	}

	s.writeJSON(w, sample, http.StatusOK)
}

// handleUpgrade authenticates the request, upgrades it, and hands the
// connection to the entity's room. Auth failures never touch the registry.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")

	tok := r.URL.Query().Get("token")
	if tok == "" {
		s.opts.Metrics.AuthFailure("missing_token")
		s.writeJSON(w, map[string]string{"error": "missing_token"}, http.StatusUnauthorized)
		return
	}

	payload, err := token.Verify(s.opts.Secret, tok)
	if err != nil {
		reason := authReason(err)
		s.opts.Metrics.AuthFailure(reason)
		s.logger.Debug("rejected upgrade", "entity", entityID, "reason", reason)
		s.writeJSON(w, map[string]string{"error": reason}, http.StatusUnauthorized)
		return
	}

	if !payload.Role.Valid() {
		s.opts.Metrics.AuthFailure("invalid_role")
		s.writeJSON(w, map[string]string{"error": "invalid_role"}, http.StatusUnauthorized)
		return
	}

	// An empty entityId leaves the token unconstrained; a non-empty one
	// must match the path.
	if payload.EntityID != "" && payload.EntityID != entityID {
		s.opts.Metrics.AuthFailure("entity_mismatch")
		s.logger.Debug("rejected upgrade",
			"entity", entityID,
			"token_entity", payload.EntityID,
			"reason", "entity_mismatch",
		)
		s.writeJSON(w, map[string]string{"error": "entity_mismatch"}, http.StatusForbidden)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("upgrade failed", "entity", entityID, "error", err)
		return
	}

	info := model.ClientInfo{
		ConnID:   uuid.NewString(),
		Role:     payload.Role,
		Subject:  payload.Subject,
		EntityID: entityID,
		TenantID: payload.TenantID,
	}

	conn := newWSConn(sock, s.opts.SendBuffer, writeTimeoutOrDefault(s.opts.Config.WriteTimeout),
		s.logger.With("conn", info.ConnID, "entity", entityID))
	go conn.writePump()

	rm, accepted := s.acceptIntoRoom(entityID, &room.Client{Info: info, Sender: conn})
	if !accepted {
		s.logger.Error("failed to place connection in a room", "entity", entityID)
		conn.Close()
		return
	}

	s.logger.Info("client connected",
		"entity", entityID,
		"conn", info.ConnID,
		"role", info.Role,
		"subject", info.Subject,
	)

	// Blocks until the connection dies.
	conn.readPump(rm, info)

	rm.Disconnect(info.ConnID)
	conn.Close()

	s.logger.Info("client disconnected", "entity", entityID, "conn", info.ConnID)
}

// acceptIntoRoom retries the registry lookup when eviction races the
// accept; a fresh lookup always yields a live room.
func (s *Server) acceptIntoRoom(entityID string, c *room.Client) (*room.Room, bool) {
	for i := 0; i < acceptRetries; i++ {
		rm := s.opts.Registry.GetOrCreate(entityID)
		if rm.Accept(c) {
			return rm, true
		}
	}
	return nil, false
}

func authReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed_token"
	}
}

func writeTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
