// Package chat holds the in-memory state of one user's support widget: the
// active agent, a message history per agent and the switch banner. Every
// mutation is persisted asynchronously through a session.Store.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/session"
	"github.com/containerd/errdefs"
)

// DefaultBannerDuration is how long the switch banner stays visible.
const DefaultBannerDuration = 2500 * time.Millisecond

// EventType names a state change.
type EventType string

const (
	EventMessageAdded    EventType = "message_added"
	EventMessagesCleared EventType = "messages_cleared"
	EventAgentSwitched   EventType = "agent_switched"
	EventBannerCleared   EventType = "banner_cleared"
)

// Event describes a state change. Message is set for EventMessageAdded.
type Event struct {
	Type    EventType        `json:"type"`
	Agent   domain.AgentType `json:"agent"`
	Message *domain.Message  `json:"message,omitempty"`
}

// Listener observes state changes. Listeners run on the mutating goroutine
// (or the banner timer) after the state lock is released.
type Listener func(Event)

// State is a point-in-time copy of a manager's state.
type State struct {
	UserID          string                                `json:"user_id"`
	ActiveAgent     domain.AgentType                      `json:"active_agent"`
	MessagesByAgent map[domain.AgentType][]domain.Message `json:"messages_by_agent"`
	BannerVisible   bool                                  `json:"switch_banner_visible"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithBannerDuration sets how long the switch banner stays visible.
func WithBannerDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.bannerDuration = d
		}
	}
}

// WithListener registers a state change listener.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

// WithClock sets the time source used for message ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBackend sets the backend used by Send.
func WithBackend(b backend.ConversationBackend) Option {
	return func(m *Manager) { m.backend = b }
}

// Manager owns the widget state for a single user.
type Manager struct {
	userID         string
	bannerDuration time.Duration
	now            func() time.Time
	logger         *slog.Logger
	listeners      []Listener
	backend        backend.ConversationBackend
	persist        *persister

	mu            sync.Mutex
	active        domain.AgentType
	messages      map[domain.AgentType][]domain.Message
	bannerVisible bool
	bannerTimer   *time.Timer
	bannerGen     uint64
	lastID        int64
	closed        bool
}

// NewManager loads userID's histories from store and starts the persister.
// A nil store disables persistence. Call Close to stop the persister.
func NewManager(ctx context.Context, userID string, store *session.Store, opts ...Option) *Manager {
	m := &Manager{
		userID:         userID,
		bannerDuration: DefaultBannerDuration,
		now:            time.Now,
		logger:         slog.Default(),
		active:         domain.AgentKnowledge,
	}
	for _, opt := range opts {
		opt(m)
	}
	if store == nil {
		store = session.NewStore(nil, m.logger)
	}

	loaded := store.LoadAll(ctx, userID)
	m.messages = make(map[domain.AgentType][]domain.Message, len(loaded))
	for _, agent := range domain.AgentTypes() {
		msgs := loaded[agent].Clone().Messages
		m.messages[agent] = msgs
		for _, msg := range msgs {
			if msg.ID > m.lastID {
				m.lastID = msg.ID
			}
		}
	}

	m.persist = newPersister(store, userID, m.logger)
	return m
}

// UserID returns the identity the manager was created for.
func (m *Manager) UserID() string {
	return m.userID
}

// ActiveAgent returns the agent currently shown.
func (m *Manager) ActiveAgent() domain.AgentType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// BannerVisible reports whether the switch banner is showing.
func (m *Manager) BannerVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bannerVisible
}

// Messages returns a copy of agent's history.
func (m *Manager) Messages(agent domain.AgentType) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.Session{Messages: m.messages[agent]}.Clone().Messages
}

// MessagesByAgent returns a copy of every history.
func (m *Manager) MessagesByAgent() map[domain.AgentType][]domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyMessagesLocked()
}

// Snapshot returns a copy of the whole state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		UserID:          m.userID,
		ActiveAgent:     m.active,
		MessagesByAgent: m.copyMessagesLocked(),
		BannerVisible:   m.bannerVisible,
	}
}

func (m *Manager) copyMessagesLocked() map[domain.AgentType][]domain.Message {
	out := make(map[domain.AgentType][]domain.Message, len(m.messages))
	for agent, msgs := range m.messages {
		out[agent] = domain.Session{Messages: msgs}.Clone().Messages
	}
	return out
}

// NextMessageID returns a millisecond timestamp id, strictly greater than
// any id the manager has issued or loaded.
func (m *Manager) NextMessageID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextIDLocked()
}

func (m *Manager) nextIDLocked() int64 {
	id := m.now().UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	return id
}

// SwitchAgent makes agent active. Switching to a different agent shows the
// banner and (re)starts its clear timer; switching to the active agent is a
// no-op.
func (m *Manager) SwitchAgent(agent domain.AgentType) error {
	if !agent.Valid() {
		return fmt.Errorf("switch to %q: %w", agent, errdefs.ErrInvalidArgument)
	}

	m.mu.Lock()
	if agent == m.active {
		m.mu.Unlock()
		return nil
	}
	m.active = agent
	m.bannerVisible = true
	m.bannerGen++
	if m.bannerTimer != nil {
		m.bannerTimer.Stop()
		m.bannerTimer = nil
	}
	if !m.closed {
		gen := m.bannerGen
		m.bannerTimer = time.AfterFunc(m.bannerDuration, func() { m.clearBanner(gen) })
	}
	m.mu.Unlock()

	m.logger.Debug("Agent switched", "user_id", m.userID, "agent", agent)
	m.emit(Event{Type: EventAgentSwitched, Agent: agent})
	return nil
}

// clearBanner hides the banner unless a later switch superseded gen.
func (m *Manager) clearBanner(gen uint64) {
	m.mu.Lock()
	if gen != m.bannerGen || !m.bannerVisible {
		m.mu.Unlock()
		return
	}
	m.bannerVisible = false
	m.bannerTimer = nil
	agent := m.active
	m.mu.Unlock()

	m.emit(Event{Type: EventBannerCleared, Agent: agent})
}

// AddMessage appends msg to agent's history and schedules persistence.
// A zero ID is replaced with NextMessageID. The stored message is returned.
func (m *Manager) AddMessage(agent domain.AgentType, msg domain.Message) (domain.Message, error) {
	if !agent.Valid() {
		return domain.Message{}, fmt.Errorf("add message to %q: %w", agent, errdefs.ErrInvalidArgument)
	}

	m.mu.Lock()
	if msg.ID == 0 {
		msg.ID = m.nextIDLocked()
	} else if msg.ID > m.lastID {
		m.lastID = msg.ID
	}
	msg = domain.Session{Messages: []domain.Message{msg}}.Clone().Messages[0]
	m.messages[agent] = append(m.messages[agent], msg)
	// Scheduling under the lock keeps queued snapshots in append order.
	m.persist.schedule(agent, domain.Session{Messages: m.messages[agent]}.Clone())
	m.mu.Unlock()

	added := msg
	m.emit(Event{Type: EventMessageAdded, Agent: agent, Message: &added})
	return msg, nil
}

// ClearMessages empties agent's history and schedules persistence.
func (m *Manager) ClearMessages(agent domain.AgentType) error {
	if !agent.Valid() {
		return fmt.Errorf("clear messages of %q: %w", agent, errdefs.ErrInvalidArgument)
	}

	m.mu.Lock()
	m.messages[agent] = []domain.Message{}
	m.persist.schedule(agent, domain.Session{Messages: []domain.Message{}})
	m.mu.Unlock()

	m.emit(Event{Type: EventMessagesCleared, Agent: agent})
	return nil
}

// Flush waits until every write scheduled so far has been attempted.
func (m *Manager) Flush(ctx context.Context) error {
	return m.persist.flush(ctx)
}

// Close stops the banner timer and flushes pending writes. Mutations after
// Close update memory only.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	if m.bannerTimer != nil {
		m.bannerTimer.Stop()
		m.bannerTimer = nil
	}
	m.mu.Unlock()

	m.persist.close()
	return nil
}

func (m *Manager) emit(ev Event) {
	for _, l := range m.listeners {
		l(ev)
	}
}
