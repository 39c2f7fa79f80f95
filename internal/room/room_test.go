package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/openfleet/location-relay/internal/model"
)

// fakeSender records frames delivered to one fake connection.
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (f *fakeSender) TrySend(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return false
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.frames = append(f.frames, cp)
	return true
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// updates returns the decoded entity_location_update frames received so far.
func (f *fakeSender) updates() []model.LocationUpdateMsg {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.LocationUpdateMsg
	for _, frame := range f.frames {
		var env model.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}
		if env.Type != model.TypeLocationUpdate {
			continue
		}
		var msg model.LocationUpdateMsg
		if err := json.Unmarshal(frame, &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// typed returns decoded frames of the given type.
func (f *fakeSender) typed(msgType string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []map[string]interface{}
	for _, frame := range f.frames {
		var m map[string]interface{}
		if err := json.Unmarshal(frame, &m); err != nil {
			continue
		}
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func testRoom(t *testing.T, window time.Duration) *Room {
	t.Helper()
	r := NewRoom("bus-7", Config{ThrottleWindow: window, InboxBuffer: 64}, nil, nil, nil)
	t.Cleanup(r.Stop)
	return r
}

func addClient(t *testing.T, r *Room, connID string, role model.Role) *fakeSender {
	t.Helper()
	s := &fakeSender{}
	ok := r.Accept(&Client{
		Info: model.ClientInfo{
			ConnID:   connID,
			Role:     role,
			Subject:  "subject-" + connID,
			EntityID: r.EntityID(),
		},
		Sender: s,
	})
	if !ok {
		t.Fatalf("Accept(%s) failed", connID)
	}
	return s
}

func sample(lat, lng float64, ts int64) model.LocationSample {
	return model.LocationSample{
		EntityID: "bus-7",
		Lat:      lat,
		Lng:      lng,
		SpeedMPS: 5,
		ClientTS: ts,
		ServerTS: ts,
	}
}

func TestRoom_FirstSampleBroadcastsImmediately(t *testing.T) {
	r := testRoom(t, time.Second)
	pub := addClient(t, r, "p1", model.RolePublisher)
	sub := addClient(t, r, "s1", model.RoleSubscriber)

	r.Publish("p1", sample(10, 20, 1000))
	time.Sleep(30 * time.Millisecond)

	subUpdates := sub.updates()
	if len(subUpdates) != 1 {
		t.Fatalf("subscriber updates = %d, want 1", len(subUpdates))
	}
	if subUpdates[0].Lat != 10 || subUpdates[0].Lng != 20 {
		t.Errorf("update = (%v, %v), want (10, 20)", subUpdates[0].Lat, subUpdates[0].Lng)
	}

	// Publisher gets the echo too.
	if got := len(pub.updates()); got != 1 {
		t.Errorf("publisher echo updates = %d, want 1", got)
	}
}

func TestRoom_ConnectedSentOnAccept(t *testing.T) {
	r := testRoom(t, time.Second)
	sub := addClient(t, r, "s1", model.RoleSubscriber)

	time.Sleep(20 * time.Millisecond)

	connected := sub.typed(model.TypeConnected)
	if len(connected) != 1 {
		t.Fatalf("connected messages = %d, want 1", len(connected))
	}
	if connected[0]["entityId"] != "bus-7" {
		t.Errorf("entityId = %v, want bus-7", connected[0]["entityId"])
	}
	if connected[0]["role"] != string(model.RoleSubscriber) {
		t.Errorf("role = %v, want subscriber", connected[0]["role"])
	}
}

func TestRoom_LateJoinerReceivesCachedSample(t *testing.T) {
	r := testRoom(t, time.Second)
	addClient(t, r, "p1", model.RolePublisher)

	r.Publish("p1", sample(10, 20, 1000))
	time.Sleep(30 * time.Millisecond)

	late := addClient(t, r, "s1", model.RoleSubscriber)
	time.Sleep(30 * time.Millisecond)

	updates := late.updates()
	if len(updates) != 1 {
		t.Fatalf("late joiner updates = %d, want 1", len(updates))
	}
	if updates[0].Lat != 10 {
		t.Errorf("Lat = %v, want 10", updates[0].Lat)
	}
}

func TestRoom_ThrottleCoalescesToTrailingEdge(t *testing.T) {
	window := 150 * time.Millisecond
	r := testRoom(t, window)
	addClient(t, r, "p1", model.RolePublisher)
	sub := addClient(t, r, "s1", model.RoleSubscriber)

	// First sample broadcasts on the leading edge.
	r.Publish("p1", sample(1, 1, 1))
	time.Sleep(20 * time.Millisecond)

	// Two more inside the window: only the newest may survive.
	r.Publish("p1", sample(2, 2, 2))
	r.Publish("p1", sample(3, 3, 3))

	time.Sleep(60 * time.Millisecond)
	if got := len(sub.updates()); got != 1 {
		t.Fatalf("updates inside window = %d, want 1", got)
	}

	// Past the window end the trailing edge must have fired exactly once
	// with the newest sample.
	time.Sleep(150 * time.Millisecond)
	updates := sub.updates()
	if len(updates) != 2 {
		t.Fatalf("updates after window = %d, want 2", len(updates))
	}
	if updates[1].Lat != 3 {
		t.Errorf("trailing update Lat = %v, want 3", updates[1].Lat)
	}

	stats := r.Stats()
	if stats.Broadcasts != 2 {
		t.Errorf("Broadcasts = %d, want 2", stats.Broadcasts)
	}
	if stats.Coalesced != 1 {
		t.Errorf("Coalesced = %d, want 1", stats.Coalesced)
	}
}

func TestRoom_RoleEnforcement(t *testing.T) {
	r := testRoom(t, time.Second)
	sub := addClient(t, r, "s1", model.RoleSubscriber)
	other := addClient(t, r, "s2", model.RoleAdmin)

	r.Publish("s1", sample(10, 20, 1000))
	time.Sleep(30 * time.Millisecond)

	errs := sub.typed(model.TypeError)
	if len(errs) != 1 {
		t.Fatalf("error messages = %d, want 1", len(errs))
	}
	if errs[0]["code"] != model.CodeRoleNotAllowed {
		t.Errorf("code = %v, want %v", errs[0]["code"], model.CodeRoleNotAllowed)
	}

	// No broadcast happened and no sample was cached.
	if got := len(other.updates()); got != 0 {
		t.Errorf("other client updates = %d, want 0", got)
	}
	if _, ok := r.LastSample(context.Background()); ok {
		t.Error("LastSample reported data after rejected publish")
	}
}

func TestRoom_PartialFailureIsolation(t *testing.T) {
	r := testRoom(t, time.Second)
	addClient(t, r, "p1", model.RolePublisher)

	c := &fakeSender{}
	d := addClient(t, r, "d", model.RoleSubscriber)
	e := addClient(t, r, "e", model.RoleSubscriber)

	// C accepts the welcome frame, then starts failing sends.
	ok := r.Accept(&Client{
		Info:   model.ClientInfo{ConnID: "c", Role: model.RoleSubscriber, EntityID: "bus-7"},
		Sender: c,
	})
	if !ok {
		t.Fatal("Accept(c) failed")
	}
	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	c.fail = true
	c.mu.Unlock()

	r.Publish("p1", sample(10, 20, 1000))
	time.Sleep(30 * time.Millisecond)

	if got := len(d.updates()); got != 1 {
		t.Errorf("d updates = %d, want 1", got)
	}
	if got := len(e.updates()); got != 1 {
		t.Errorf("e updates = %d, want 1", got)
	}
	if !c.isClosed() {
		t.Error("failed connection was not closed")
	}

	// C is gone from the client set: publisher + d + e remain.
	if got := r.Stats().Clients; got != 3 {
		t.Errorf("Clients = %d, want 3", got)
	}
}

func TestRoom_LastSampleQuery(t *testing.T) {
	r := testRoom(t, time.Second)

	if _, ok := r.LastSample(context.Background()); ok {
		t.Error("LastSample reported data for empty room")
	}

	addClient(t, r, "p1", model.RolePublisher)
	r.Publish("p1", sample(10, 20, 1000))
	time.Sleep(30 * time.Millisecond)

	got, ok := r.LastSample(context.Background())
	if !ok {
		t.Fatal("LastSample returned no data after publish")
	}
	if got.Lat != 10 || got.Lng != 20 {
		t.Errorf("sample = (%v, %v), want (10, 20)", got.Lat, got.Lng)
	}
}

func TestRoom_LastSampleReflectsNewestEvenWhilePending(t *testing.T) {
	r := testRoom(t, 500*time.Millisecond)
	addClient(t, r, "p1", model.RolePublisher)

	r.Publish("p1", sample(1, 1, 1))
	time.Sleep(20 * time.Millisecond)
	r.Publish("p1", sample(2, 2, 2)) // coalescing, not yet broadcast
	time.Sleep(20 * time.Millisecond)

	got, ok := r.LastSample(context.Background())
	if !ok {
		t.Fatal("LastSample returned no data")
	}
	if got.Lat != 2 {
		t.Errorf("Lat = %v, want 2 (newest sample)", got.Lat)
	}
}

func TestRoom_DisconnectRemovesClient(t *testing.T) {
	r := testRoom(t, time.Second)
	addClient(t, r, "p1", model.RolePublisher)
	sub := addClient(t, r, "s1", model.RoleSubscriber)

	r.Disconnect("s1")
	time.Sleep(20 * time.Millisecond)

	if got := r.Stats().Clients; got != 1 {
		t.Errorf("Clients = %d, want 1", got)
	}

	r.Publish("p1", sample(10, 20, 1000))
	time.Sleep(30 * time.Millisecond)

	if got := len(sub.updates()); got != 0 {
		t.Errorf("disconnected subscriber updates = %d, want 0", got)
	}
}

func TestRoom_AcceptAfterStop(t *testing.T) {
	r := NewRoom("bus-7", Config{ThrottleWindow: time.Second}, nil, nil, nil)
	r.Stop()

	ok := r.Accept(&Client{
		Info:   model.ClientInfo{ConnID: "x", Role: model.RoleSubscriber},
		Sender: &fakeSender{},
	})
	if ok {
		t.Error("Accept succeeded on stopped room")
	}
}

func TestRoom_StopClosesClients(t *testing.T) {
	r := NewRoom("bus-7", Config{ThrottleWindow: time.Second}, nil, nil, nil)
	s := addClient(t, r, "s1", model.RoleSubscriber)
	time.Sleep(20 * time.Millisecond)

	r.Stop()
	time.Sleep(20 * time.Millisecond)

	if !s.isClosed() {
		t.Error("client connection not closed on room stop")
	}
}
