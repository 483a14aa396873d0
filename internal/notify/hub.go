// Package notify fans render job events out to live-progress listeners over
// websockets. The pipeline only produces on this channel; nothing here feeds
// back into job execution.
package notify

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/storyreel/backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are enforced by the CORS layer in front of the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	// projectID filters events to one project; uuid.Nil receives everything.
	projectID uuid.UUID
}

// Hub tracks connected listeners and broadcasts job events to them.
// A slow listener is dropped rather than allowed to stall the pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish sends the event to every listener subscribed to its project.
// Never blocks: events to backed-up clients are dropped with the client.
func (h *Hub) Publish(event models.JobEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Notify] Failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	var stale []*client
	for c := range h.clients {
		if c.projectID != uuid.Nil && c.projectID != event.ProjectID {
			continue
		}
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.remove(c)
	}
}

// ServeWS handles a websocket subscription. An optional project_id query
// parameter scopes the subscription to one project.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	projectID := uuid.Nil
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid project_id", http.StatusBadRequest)
			return
		}
		projectID = parsed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Notify] Upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, 64),
		projectID: projectID,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
}

// ClientCount reports connected listeners, for health introspection.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.Close()
}

// readLoop discards inbound frames but notices disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()
}
