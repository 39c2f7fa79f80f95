package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfleet/location-relay/internal/metrics"
	"github.com/openfleet/location-relay/internal/model"
	"github.com/openfleet/location-relay/internal/store"
)

const storePutTimeout = 2 * time.Second

// msgKind discriminates room inbox messages.
type msgKind int

const (
	msgAccept msgKind = iota
	msgDisconnect
	msgPublish
	msgQuery
)

// message is one unit of work on a room's inbox.
type message struct {
	kind   msgKind
	client *Client              // msgAccept
	connID string               // msgDisconnect, msgPublish
	sample model.LocationSample // msgPublish
	reply  chan queryReply      // msgQuery
}

type queryReply struct {
	sample model.LocationSample
	ok     bool
}

// Room is the actor owning all state for one tracked entity.
type Room struct {
	entityID string
	cfg      Config
	cache    store.LastSampleStore
	metrics  *metrics.Metrics
	logger   *slog.Logger

	inbox    chan message
	quit     chan struct{}
	stopOnce sync.Once

	// State below is owned by the run goroutine. No other goroutine
	// reads or writes it.
	clients         map[string]*Client
	lastSample      *model.LocationSample
	lastBroadcastAt time.Time
	pending         *model.LocationSample
	timer           *time.Timer

	// Observed by the registry janitor without entering the actor.
	clientCount  atomic.Int32
	pendingWork  atomic.Bool
	lastActivity atomic.Int64 // unix nanos

	broadcasts atomic.Int64
	coalesced  atomic.Int64
}

// NewRoom creates a room for an entity and starts its goroutine.
// cache and m may be nil.
func NewRoom(entityID string, cfg Config, cache store.LastSampleStore, m *metrics.Metrics, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultConfig().ThrottleWindow
	}
	if cfg.InboxBuffer < 1 {
		cfg.InboxBuffer = DefaultConfig().InboxBuffer
	}

	r := &Room{
		entityID: entityID,
		cfg:      cfg,
		cache:    cache,
		metrics:  m,
		logger:   logger.With("component", "room", "entity", entityID),
		inbox:    make(chan message, cfg.InboxBuffer),
		quit:     make(chan struct{}),
		clients:  make(map[string]*Client),
	}
	r.lastActivity.Store(time.Now().UnixNano())

	go r.run()
	return r
}

// EntityID returns the entity this room serves.
func (r *Room) EntityID() string {
	return r.entityID
}

// Accept adds a connection to the room. Returns false if the room has been
// stopped; callers must then re-resolve the room through the registry.
func (r *Room) Accept(c *Client) bool {
	return r.post(message{kind: msgAccept, client: c})
}

// Disconnect removes a connection from the room. No broadcast is triggered.
func (r *Room) Disconnect(connID string) {
	r.post(message{kind: msgDisconnect, connID: connID})
}

// Publish submits a location sample on behalf of a connection. Role
// enforcement happens inside the actor against the stored client info.
func (r *Room) Publish(connID string, sample model.LocationSample) {
	r.post(message{kind: msgPublish, connID: connID, sample: sample})
}

// LastSample returns the cached last-known sample, if any. Served as a
// query message so reads observe a consistent actor state.
func (r *Room) LastSample(ctx context.Context) (model.LocationSample, bool) {
	reply := make(chan queryReply, 1)

	select {
	case r.inbox <- message{kind: msgQuery, reply: reply}:
	case <-r.quit:
		return model.LocationSample{}, false
	case <-ctx.Done():
		return model.LocationSample{}, false
	}

	select {
	case res := <-reply:
		return res.sample, res.ok
	case <-r.quit:
		return model.LocationSample{}, false
	case <-ctx.Done():
		return model.LocationSample{}, false
	}
}

// Stop shuts down the room goroutine and closes remaining connections.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
}

// Idle reports whether the room has no connections and no pending
// trailing-edge broadcast.
func (r *Room) Idle() bool {
	return r.clientCount.Load() == 0 && !r.pendingWork.Load()
}

// LastActivity returns when the room last received a message.
func (r *Room) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

// Stats returns a snapshot of room counters.
func (r *Room) Stats() Stats {
	return Stats{
		EntityID:   r.entityID,
		Clients:    int(r.clientCount.Load()),
		Broadcasts: r.broadcasts.Load(),
		Coalesced:  r.coalesced.Load(),
	}
}

// post enqueues a message, failing only if the room has been stopped.
func (r *Room) post(m message) bool {
	select {
	case r.inbox <- m:
		r.lastActivity.Store(time.Now().UnixNano())
		return true
	case <-r.quit:
		return false
	}
}

// run is the actor loop. All room state is touched only here.
func (r *Room) run() {
	for {
		var fire <-chan time.Time
		if r.timer != nil {
			fire = r.timer.C
		}

		select {
		case <-r.quit:
			r.shutdown()
			return
		case m := <-r.inbox:
			r.dispatch(m)
		case <-fire:
			r.timer = nil
			r.flushPending()
		}
	}
}

func (r *Room) dispatch(m message) {
	switch m.kind {
	case msgAccept:
		r.handleAccept(m.client)
	case msgDisconnect:
		r.handleDisconnect(m.connID)
	case msgPublish:
		r.handlePublish(m.connID, m.sample)
	case msgQuery:
		r.handleQuery(m.reply)
	}
}

// handleAccept adds the client and replays the cached sample so late
// joiners see current state without waiting for the next publish.
func (r *Room) handleAccept(c *Client) {
	r.clients[c.Info.ConnID] = c
	r.clientCount.Add(1)
	r.metrics.ConnOpened(string(c.Info.Role))

	r.logger.Debug("client accepted",
		"conn", c.Info.ConnID,
		"role", c.Info.Role,
		"subject", c.Info.Subject,
		"clients", len(r.clients),
	)

	welcome, err := json.Marshal(model.ConnectedMsg{
		Type:        model.TypeConnected,
		Role:        c.Info.Role,
		EntityID:    r.entityID,
		ClientCount: len(r.clients),
	})
	if err != nil || !c.Sender.TrySend(welcome) {
		r.dropClient(c.Info.ConnID, c)
		return
	}

	if r.lastSample != nil {
		frame, err := model.MarshalUpdate(*r.lastSample)
		if err == nil && !c.Sender.TrySend(frame) {
			r.dropClient(c.Info.ConnID, c)
		}
	}
}

func (r *Room) handleDisconnect(connID string) {
	c, ok := r.clients[connID]
	if !ok {
		return
	}

	delete(r.clients, connID)
	r.clientCount.Add(-1)
	r.metrics.ConnClosed(string(c.Info.Role))
	c.Sender.Close()

	r.logger.Debug("client disconnected",
		"conn", connID,
		"clients", len(r.clients),
	)
}

// handlePublish accepts a sample from a publisher connection, updates the
// cached state and runs the throttle.
func (r *Room) handlePublish(connID string, sample model.LocationSample) {
	c, ok := r.clients[connID]
	if !ok {
		return
	}

	if !c.Info.Role.CanPublish() {
		// Reject on the offending connection only; no state change.
		frame := model.MarshalError(model.CodeRoleNotAllowed,
			fmt.Sprintf("role %q may not publish locations", c.Info.Role))
		if !c.Sender.TrySend(frame) {
			r.dropClient(connID, c)
		}
		return
	}

	r.metrics.SampleReceived()
	r.lastSample = &sample

	if r.lastBroadcastAt.IsZero() {
		r.broadcast(sample)
		return
	}

	elapsed := time.Since(r.lastBroadcastAt)
	if elapsed >= r.cfg.ThrottleWindow {
		r.clearTimer()
		r.broadcast(sample)
		return
	}

	// Inside the window: keep only the newest sample and arm one
	// trailing-edge timer for the remainder of the window.
	if r.pending != nil {
		r.coalesced.Add(1)
		r.metrics.SampleCoalesced()
	}
	r.pending = &sample
	r.pendingWork.Store(true)
	if r.timer == nil {
		r.timer = time.NewTimer(r.cfg.ThrottleWindow - elapsed)
	}
}

func (r *Room) handleQuery(reply chan queryReply) {
	if r.lastSample == nil {
		reply <- queryReply{}
		return
	}
	reply <- queryReply{sample: *r.lastSample, ok: true}
}

// flushPending performs the trailing-edge broadcast at window end.
func (r *Room) flushPending() {
	if r.pending == nil {
		r.pendingWork.Store(false)
		return
	}

	sample := *r.pending
	r.pending = nil
	r.pendingWork.Store(false)
	r.broadcast(sample)
}

// broadcast serializes the sample once and sends the identical bytes to
// every connection, publisher included. A failed send drops only that
// connection.
func (r *Room) broadcast(sample model.LocationSample) {
	frame, err := model.MarshalUpdate(sample)
	if err != nil {
		r.logger.Error("failed to marshal broadcast", "error", err)
		return
	}

	for id, c := range r.clients {
		if !c.Sender.TrySend(frame) {
			r.dropClient(id, c)
		}
	}

	r.lastBroadcastAt = time.Now()
	r.pending = nil
	r.broadcasts.Add(1)
	r.metrics.BroadcastSent()

	if r.cache != nil {
		// Write-through is best-effort and must not stall the actor.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storePutTimeout)
			defer cancel()
			if err := r.cache.Put(ctx, sample); err != nil {
				r.logger.Warn("last-sample cache write failed", "error", err)
			}
		}()
	}
}

// dropClient removes a connection after a failed send. Never aborts the
// surrounding broadcast.
func (r *Room) dropClient(connID string, c *Client) {
	if _, ok := r.clients[connID]; !ok {
		return
	}

	delete(r.clients, connID)
	r.clientCount.Add(-1)
	r.metrics.ConnClosed(string(c.Info.Role))
	r.metrics.ConnDropped()
	c.Sender.Close()

	r.logger.Warn("dropped slow or dead connection",
		"conn", connID,
		"role", c.Info.Role,
	)
}

func (r *Room) clearTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = nil
	r.pendingWork.Store(false)
}

// shutdown closes all remaining connections on stop.
func (r *Room) shutdown() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	for id, c := range r.clients {
		delete(r.clients, id)
		r.clientCount.Add(-1)
		r.metrics.ConnClosed(string(c.Info.Role))
		c.Sender.Close()
	}
}
