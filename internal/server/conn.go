package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfleet/location-relay/internal/model"
	"github.com/openfleet/location-relay/internal/room"
)

const (
	maxInboundBytes = 4096

	// pongWait bounds how long a connection may stay silent; pingPeriod
	// must be shorter so a pong arrives before the deadline.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// wsConn wraps one websocket connection with a buffered outbound queue.
// It implements room.Sender: the room hands it pre-serialized frames and
// the write pump delivers them on a dedicated goroutine, so a slow client
// never stalls a broadcast.
type wsConn struct {
	sock         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	logger       *slog.Logger
}

func newWSConn(sock *websocket.Conn, sendBuffer int, writeTimeout time.Duration, logger *slog.Logger) *wsConn {
	return &wsConn{
		sock:         sock,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// TrySend queues a frame without blocking. A full queue or closed
// connection returns false and the room drops this client.
func (c *wsConn) TrySend(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close tears down the connection. Idempotent.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.sock.Close()
	})
}

// writePump drains the outbound queue onto the socket. A write failure
// closes the connection; the read pump then unwinds and detaches the
// client from its room.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump consumes inbound messages until the connection dies. Protocol
// violations are answered with an error frame on this connection only;
// they never disconnect.
func (c *wsConn) readPump(rm *room.Room, info model.ClientInfo) {
	c.sock.SetReadLimit(maxInboundBytes)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		c.handleInbound(rm, info, data)
	}
}

func (c *wsConn) handleInbound(rm *room.Room, info model.ClientInfo, data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.TrySend(model.MarshalError(model.CodeMalformedJSON, "message is not valid JSON"))
		return
	}

	switch env.Type {
	case model.TypeDriverLocation:
		var msg model.DriverLocationMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.TrySend(model.MarshalError(model.CodeMalformedJSON, "invalid driver_location payload"))
			return
		}
		// Role enforcement happens inside the room so the check and the
		// state change are serialized together.
		rm.Publish(info.ConnID, msg.ToSample(info.EntityID, time.Now().UnixMilli()))

	case model.TypePing:
		// Liveness replies bypass the room and its throttle.
		pong, err := json.Marshal(model.PongMsg{Type: model.TypePong, TS: time.Now().UnixMilli()})
		if err == nil {
			c.TrySend(pong)
		}

	default:
		c.TrySend(model.MarshalError(model.CodeUnknownType, "unknown message type "+env.Type))
	}
}
