// Package widget serves the support widget to browsers: one chat manager per
// anonymous user, kept in memory while the user is active and pushed to open
// tabs over WebSocket.
package widget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/chat"
	"github.com/ashureev/support-hub/internal/session"
	"github.com/containerd/errdefs"
)

type entry struct {
	mgr      *chat.Manager
	lastUsed time.Time
}

// Hub owns the chat managers of active users.
type Hub struct {
	store          *session.Store
	backend        backend.ConversationBackend
	conns          *Registry
	bannerDuration time.Duration
	now            func() time.Time
	logger         *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBannerDuration sets the switch banner duration of new managers.
func WithBannerDuration(d time.Duration) HubOption {
	return func(h *Hub) { h.bannerDuration = d }
}

// WithHubClock sets the time source for idle tracking.
func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a hub persisting through store and answering with b.
func NewHub(store *session.Store, b backend.ConversationBackend, opts ...HubOption) *Hub {
	h := &Hub{
		store:          store,
		backend:        b,
		bannerDuration: chat.DefaultBannerDuration,
		now:            time.Now,
		logger:         slog.Default(),
		entries:        make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.conns = NewRegistry(h.logger)
	return h
}

// Connections returns the hub's WebSocket registry.
func (h *Hub) Connections() *Registry {
	return h.conns
}

// Manager returns userID's manager, loading it from the store on first use.
func (h *Hub) Manager(ctx context.Context, userID string) (*chat.Manager, error) {
	if userID == "" {
		return nil, fmt.Errorf("widget manager: empty user id: %w", errdefs.ErrInvalidArgument)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, fmt.Errorf("widget hub closed: %w", errdefs.ErrUnavailable)
	}
	if e, ok := h.entries[userID]; ok {
		e.lastUsed = h.now()
		h.mu.Unlock()
		return e.mgr, nil
	}
	h.mu.Unlock()

	// Loading reads storage, so it runs without holding the hub lock.
	mgr := chat.NewManager(ctx, userID, h.store,
		chat.WithBackend(h.backend),
		chat.WithBannerDuration(h.bannerDuration),
		chat.WithLogger(h.logger),
		chat.WithListener(func(ev chat.Event) {
			h.conns.Broadcast(userID, frame{Type: frameEvent, Event: &ev})
		}),
	)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = mgr.Close()
		return nil, fmt.Errorf("widget hub closed: %w", errdefs.ErrUnavailable)
	}
	if e, ok := h.entries[userID]; ok {
		// Another request loaded the same user first.
		e.lastUsed = h.now()
		h.mu.Unlock()
		_ = mgr.Close()
		return e.mgr, nil
	}
	h.entries[userID] = &entry{mgr: mgr, lastUsed: h.now()}
	active := len(h.entries)
	h.mu.Unlock()

	h.logger.Info("Widget manager loaded", "user_id", userID, "active_managers", active)
	return mgr, nil
}

// Len returns the number of loaded managers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Sweep closes managers unused for longer than ttl. Users with an open
// connection are kept. It returns the evicted user ids.
func (h *Hub) Sweep(ttl time.Duration) []string {
	now := h.now()

	h.mu.Lock()
	var evicted []*chat.Manager
	var ids []string
	for userID, e := range h.entries {
		if h.conns.Count(userID) > 0 {
			e.lastUsed = now
			continue
		}
		if now.Sub(e.lastUsed) <= ttl {
			continue
		}
		delete(h.entries, userID)
		evicted = append(evicted, e.mgr)
		ids = append(ids, userID)
	}
	h.mu.Unlock()

	for i, mgr := range evicted {
		if err := mgr.Close(); err != nil {
			h.logger.Warn("Failed to close idle widget manager", "user_id", ids[i], "error", err)
		}
	}
	return ids
}

// Close flushes and closes every manager. Later Manager calls fail.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	entries := h.entries
	h.entries = make(map[string]*entry)
	h.mu.Unlock()

	for userID, e := range entries {
		h.conns.CloseUser(userID)
		if err := e.mgr.Close(); err != nil {
			h.logger.Warn("Failed to close widget manager", "user_id", userID, "error", err)
		}
	}
	h.logger.Info("Widget hub closed", "managers", len(entries))
	return nil
}
