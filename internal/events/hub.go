// Package events pushes receiver events to websocket clients.
package events

import (
	"encoding/json"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/strefethen/anthem-hub-go/internal/api"
	"github.com/strefethen/anthem-hub-go/internal/apperrors"
	"github.com/strefethen/anthem-hub-go/internal/auth"
)

const (
	sendBuffer     = 64
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeTimeout   = 10 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	id       string
	deviceID string
	// grant limits the stream to these receivers; empty means all.
	grant []string
	conn  *websocket.Conn
	send  chan []byte
}

func (c *client) wants(deviceID string) bool {
	if c.deviceID != "" && c.deviceID != deviceID {
		return false
	}
	return len(c.grant) == 0 || slices.Contains(c.grant, deviceID)
}

// Hub tracks connected websocket clients and broadcasts envelopes to them.
// A client whose buffer is full is disconnected rather than blocking the
// broadcaster.
type Hub struct {
	logger  *log.Logger
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub with no clients.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends env to every client subscribed to all devices or to
// env.DeviceID.
func (h *Hub) Broadcast(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Printf("EVENTS: Failed to marshal %s envelope: %v", env.Type, err)
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if !c.wants(env.DeviceID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Printf("EVENTS: Dropping slow client %s", c.id)
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and streams envelopes until the client
// goes away. The optional device_id query parameter filters by receiver;
// a token scoped to some receivers only ever sees those.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID != "" && !auth.Visible(r.Context(), deviceID) {
		api.WriteError(w, r, apperrors.NewDeviceNotFound(deviceID))
		return
	}
	var grant []string
	if caller, ok := auth.ClientFromContext(r.Context()); ok {
		grant = caller.Receivers
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("EVENTS: Failed to upgrade connection: %v", err)
		return
	}

	c := &client{
		id:       uuid.New().String(),
		deviceID: deviceID,
		grant:    grant,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("EVENTS: Client %s connected (device=%q, total=%d)", c.id, c.deviceID, count)

	welcome, _ := json.Marshal(map[string]any{
		"type":      "connected",
		"client_id": c.id,
		"device_id": c.deviceID,
	})
	h.trySend(c, welcome)

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.logger.Printf("EVENTS: Client %s disconnected (total=%d)", c.id, count)
}

// readPump only services pings and close frames; client messages other
// than {"type":"ping"} are ignored.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("EVENTS: Client %s read error: %v", c.id, err)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &msg) == nil && msg.Type == "ping" {
			h.trySend(c, []byte(`{"type":"pong"}`))
		}
	}
}

func (h *Hub) trySend(c *client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
