package room

import (
	"context"
	"testing"
	"time"

	"github.com/openfleet/location-relay/internal/model"
)

func testRegistry(t *testing.T, cfg RegistryConfig) *Registry {
	t.Helper()
	g := NewRegistry(cfg, nil, nil, nil)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.Stop(ctx)
	})
	return g
}

func TestRegistry_GetOrCreateReturnsSameRoom(t *testing.T) {
	g := testRegistry(t, DefaultRegistryConfig())

	a := g.GetOrCreate("bus-7")
	b := g.GetOrCreate("bus-7")
	if a != b {
		t.Error("GetOrCreate returned different rooms for the same entity")
	}

	c := g.GetOrCreate("bus-8")
	if a == c {
		t.Error("GetOrCreate returned the same room for different entities")
	}
}

func TestRegistry_EntityIsolation(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.Room.ThrottleWindow = 50 * time.Millisecond
	g := testRegistry(t, cfg)

	roomA := g.GetOrCreate("bus-a")
	roomB := g.GetOrCreate("bus-b")

	pubA := &fakeSender{}
	roomA.Accept(&Client{
		Info:   model.ClientInfo{ConnID: "pa", Role: model.RolePublisher, EntityID: "bus-a"},
		Sender: pubA,
	})

	subB := &fakeSender{}
	roomB.Accept(&Client{
		Info:   model.ClientInfo{ConnID: "sb", Role: model.RoleSubscriber, EntityID: "bus-b"},
		Sender: subB,
	})

	roomA.Publish("pa", model.LocationSample{EntityID: "bus-a", Lat: 1, Lng: 2})
	time.Sleep(50 * time.Millisecond)

	if got := len(subB.updates()); got != 0 {
		t.Errorf("room B subscriber observed %d broadcasts from room A, want 0", got)
	}
	if got := len(pubA.updates()); got != 1 {
		t.Errorf("room A publisher updates = %d, want 1", got)
	}
}

func TestRegistry_EvictsIdleRooms(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.IdleTTL = 30 * time.Millisecond
	cfg.JanitorInterval = 10 * time.Millisecond
	g := testRegistry(t, cfg)

	old := g.GetOrCreate("bus-7")

	// No connections and no pending work: the janitor should evict.
	time.Sleep(100 * time.Millisecond)

	if got := g.Stats().Rooms; got != 0 {
		t.Fatalf("Rooms = %d, want 0 after eviction", got)
	}

	// Next reference reconstructs transparently.
	fresh := g.GetOrCreate("bus-7")
	if fresh == old {
		t.Error("GetOrCreate returned evicted room")
	}

	// The evicted room refuses new connections, directing callers back
	// to the registry.
	if old.Accept(&Client{Info: model.ClientInfo{ConnID: "x"}, Sender: &fakeSender{}}) {
		t.Error("evicted room accepted a connection")
	}
}

func TestRegistry_DoesNotEvictActiveRooms(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.IdleTTL = 30 * time.Millisecond
	cfg.JanitorInterval = 10 * time.Millisecond
	g := testRegistry(t, cfg)

	r := g.GetOrCreate("bus-7")
	addClient(t, r, "s1", model.RoleSubscriber)

	time.Sleep(100 * time.Millisecond)

	if got := g.Stats().Rooms; got != 1 {
		t.Errorf("Rooms = %d, want 1 (connected room must survive)", got)
	}
}

func TestRegistry_StatsAggregatesClients(t *testing.T) {
	g := testRegistry(t, DefaultRegistryConfig())

	a := g.GetOrCreate("bus-a")
	addClient(t, a, "c1", model.RoleSubscriber)
	addClient(t, a, "c2", model.RolePublisher)

	b := g.GetOrCreate("bus-b")
	addClient(t, b, "c3", model.RoleSubscriber)

	time.Sleep(30 * time.Millisecond)

	stats := g.Stats()
	if stats.Rooms != 2 {
		t.Errorf("Rooms = %d, want 2", stats.Rooms)
	}
	if stats.Clients != 3 {
		t.Errorf("Clients = %d, want 3", stats.Clients)
	}
}
