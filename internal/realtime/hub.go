// Package realtime fans portfolio updates out to WebSocket clients.
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// client serializes writes; a websocket.Conn allows only one writer at a time.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = &client{conn: conn}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("ws client connected", "remote", conn.RemoteAddr().String(), "clients", n)
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
	if ok {
		slog.Debug("ws client disconnected", "remote", conn.RemoteAddr().String())
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send writes v to a single registered client, dropping it on failure.
func (h *Hub) Send(conn *websocket.Conn, v any) {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.writeJSON(v); err != nil {
		slog.Debug("ws write failed", "err", err)
		h.RemoveClient(conn)
	}
}

func (h *Hub) BroadcastJSON(v any) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(v); err != nil {
			slog.Debug("ws write failed", "err", err)
			h.RemoveClient(c.conn)
		}
	}
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}
