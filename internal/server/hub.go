package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/signsynth/internal/bus"
	"github.com/normanking/signsynth/internal/rig"
)

// EventTypeRigSnapshot carries every joint transform, keyed by joint name.
const EventTypeRigSnapshot bus.EventType = "rig.snapshot"

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Snapshotter reports the rig's current joint transforms.
type Snapshotter interface {
	Snapshot() map[string]rig.Transform
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans bus events and rig snapshots out to websocket clients. Clients
// that fall behind are disconnected.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Attach forwards every bus event to connected clients.
func (h *Hub) Attach(events *bus.EventBus) (unsubscribe func()) {
	return events.SubscribeMultiple(bus.AllEventTypes, h.Broadcast)
}

// Broadcast sends e to every client.
func (h *Hub) Broadcast(e bus.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.Warn().Err(err).Str("type", string(e.Type)).Msg("failed to encode event")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Debug().Msg("dropping slow websocket client")
		h.remove(c)
	}
}

// RunSnapshots broadcasts a rig snapshot every interval until ctx is done.
// Nothing is sent while no client is connected.
func (h *Hub) RunSnapshots(ctx context.Context, every time.Duration, src Snapshotter) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			h.Broadcast(bus.NewEvent(EventTypeRigSnapshot, map[string]any{
				"joints": src.Snapshot(),
			}))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams messages until the peer goes
// away. Anything the peer sends is ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go h.writePump(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// remove unregisters c and closes its send channel exactly once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
