package widget

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

const clientQueueSize = 64

// client is one connected widget tab.
type client struct {
	id   int64
	conn *websocket.Conn
	send chan []byte
}

// Registry tracks live WebSocket connections per user. A user may have
// several tabs open; every tab receives the same events.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[int64]*client
	nextID int64
	logger *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		active: make(map[string]map[int64]*client),
		logger: logger,
	}
}

// Register adds conn for userID and returns its client handle.
func (r *Registry) Register(userID string, conn *websocket.Conn) *client {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	c := &client{id: r.nextID, conn: conn, send: make(chan []byte, clientQueueSize)}
	if _, ok := r.active[userID]; !ok {
		r.active[userID] = make(map[int64]*client)
	}
	r.active[userID][c.id] = c
	r.logger.Info("Widget connection registered", "user_id", userID, "conn_id", c.id)
	return c
}

// Unregister removes c. Its send queue is closed so the writer exits.
func (r *Registry) Unregister(userID string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.active[userID]
	if !ok {
		return
	}
	if current, exists := conns[c.id]; exists && current == c {
		delete(conns, c.id)
		close(c.send)
		if len(conns) == 0 {
			delete(r.active, userID)
		}
		r.logger.Info("Widget connection unregistered", "user_id", userID, "conn_id", c.id)
	}
}

// Count returns the number of live connections for userID.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active[userID])
}

// Broadcast queues v for every connection of userID. A connection whose
// queue is full misses the frame.
func (r *Registry) Broadcast(userID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("Failed to marshal widget frame", "user_id", userID, "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.active[userID] {
		select {
		case c.send <- data:
		default:
			r.logger.Warn("Widget send queue full, dropping frame", "user_id", userID, "conn_id", id)
		}
	}
}

// CloseUser terminates every connection of userID.
func (r *Registry) CloseUser(userID string) {
	r.mu.RLock()
	conns := make([]*client, 0, len(r.active[userID]))
	for _, c := range r.active[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		_ = c.conn.Close(websocket.StatusNormalClosure, "session closed")
		r.logger.Info("Widget connection closed", "user_id", userID, "conn_id", c.id)
	}
}
