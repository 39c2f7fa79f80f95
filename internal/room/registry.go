package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openfleet/location-relay/internal/metrics"
	"github.com/openfleet/location-relay/internal/store"
)

// Registry maps entity ID to its Room, creating rooms lazily on first
// reference and evicting idle ones. Safe for concurrent use; the map is
// the only point of synchronization between router invocations.
type Registry struct {
	cfg     RegistryConfig
	cache   store.LastSampleStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a room registry. cache and m may be nil.
func NewRegistry(cfg RegistryConfig, cache store.LastSampleStore, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRegistryConfig().IdleTTL
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = DefaultRegistryConfig().JanitorInterval
	}

	return &Registry{
		cfg:     cfg,
		cache:   cache,
		metrics: m,
		logger:  logger.With("component", "registry"),
		rooms:   make(map[string]*Room),
	}
}

// Start begins the background eviction loop.
func (g *Registry) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)

	g.wg.Add(1)
	go g.janitorLoop()

	g.logger.Info("room registry started",
		"idle_ttl", g.cfg.IdleTTL,
		"janitor_interval", g.cfg.JanitorInterval,
	)
	return nil
}

// Stop shuts down the janitor and every resident room.
func (g *Registry) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		g.logger.Warn("registry stop timed out")
	}

	g.mu.Lock()
	for id, r := range g.rooms {
		r.Stop()
		delete(g.rooms, id)
		g.metrics.RoomEvicted()
	}
	g.mu.Unlock()

	g.logger.Info("room registry stopped")
	return nil
}

// GetOrCreate returns the room for an entity, creating it on first
// reference. The returned room may already be stopping if eviction races
// the lookup; callers that see Accept fail must call GetOrCreate again.
func (g *Registry) GetOrCreate(entityID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[entityID]; ok {
		return r
	}

	r := NewRoom(entityID, g.cfg.Room, g.cache, g.metrics, g.logger)
	g.rooms[entityID] = r
	g.metrics.RoomCreated()

	g.logger.Debug("room created", "entity", entityID, "rooms", len(g.rooms))
	return r
}

// Stats returns a snapshot across all resident rooms.
func (g *Registry) Stats() RegistryStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := RegistryStats{
		Rooms:  len(g.rooms),
		Detail: make([]Stats, 0, len(g.rooms)),
	}
	for _, r := range g.rooms {
		s := r.Stats()
		stats.Clients += s.Clients
		stats.Detail = append(stats.Detail, s)
	}
	return stats
}

// janitorLoop periodically evicts idle rooms.
func (g *Registry) janitorLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.evictIdle()
		}
	}
}

// evictIdle stops and removes rooms with no connections, no pending
// broadcast, and no recent activity. Reconstruction on next reference is
// transparent; only cached last-sample state is lost.
func (g *Registry) evictIdle() {
	cutoff := time.Now().Add(-g.cfg.IdleTTL)

	g.mu.Lock()
	defer g.mu.Unlock()

	for id, r := range g.rooms {
		if r.Idle() && r.LastActivity().Before(cutoff) {
			r.Stop()
			delete(g.rooms, id)
			g.metrics.RoomEvicted()
			g.logger.Debug("room evicted", "entity", id, "rooms", len(g.rooms))
		}
	}
}
