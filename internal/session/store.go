// Package session persists per-user, per-agent chat histories in a single
// key-value record. Storage is treated as a cache: reads never fail and
// writes are best-effort.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/store"
)

const (
	// SessionsKey is the record holding the userId -> agentType -> session blob.
	SessionsKey = "support_hub_sessions"
	// IdentityKey is the record holding the persisted device user id.
	IdentityKey = "hub_user_id"
)

// blob is the serialized form of every stored session, decoded one level
// deep. User and agent entries stay raw so a malformed pair never hides or
// destroys its siblings.
type blob map[string]json.RawMessage

// Store reads and writes chat sessions keyed by user id and agent type.
// It is safe for concurrent use; writes are serialized so a save for one
// (user, agent) pair never clobbers a sibling pair.
type Store struct {
	kv     store.KV
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a session store over kv. A nil kv behaves like disabled
// storage: loads are absent and saves are discarded.
func NewStore(kv store.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the stored session for the pair. The second result is false
// when nothing usable is stored, including when storage is unavailable or
// the pair is malformed.
func (s *Store) Load(ctx context.Context, userID string, agent domain.AgentType) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.decodePair(userID, agent, s.userEntries(s.readAll(ctx), userID))
}

// LoadAll returns a session for every known agent type. Missing or
// malformed sessions are empty.
func (s *Store) LoadAll(ctx context.Context, userID string) map[domain.AgentType]domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.userEntries(s.readAll(ctx), userID)
	out := make(map[domain.AgentType]domain.Session, len(domain.AgentTypes()))
	for _, agent := range domain.AgentTypes() {
		sess, _ := s.decodePair(userID, agent, entries)
		if sess.Messages == nil {
			sess.Messages = []domain.Message{}
		}
		out[agent] = sess
	}
	return out
}

// Save stores sess for the pair, preserving every other pair byte for byte.
// Failures are logged and discarded.
func (s *Store) Save(ctx context.Context, userID string, agent domain.AgentType, sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv == nil {
		return
	}
	if sess.Messages == nil {
		sess.Messages = []domain.Message{}
	}

	all := s.readAll(ctx)
	entries := s.userEntries(all, userID)
	if entries == nil {
		entries = make(map[string]json.RawMessage)
	}

	data, err := json.Marshal(sess)
	if err == nil {
		entries[string(agent)] = data
		all[userID], err = json.Marshal(entries)
	}
	if err == nil {
		data, err = json.Marshal(all)
	}
	if err != nil {
		s.logger.Warn("Session write discarded", "user_id", userID, "agent", agent, "error", err)
		return
	}
	if err := s.kv.PutValue(ctx, SessionsKey, string(data)); err != nil {
		s.logger.Warn("Session write discarded", "user_id", userID, "agent", agent, "error", err)
	}
}

// readAll decodes the top level of the record. An unreadable record yields
// an empty mapping.
func (s *Store) readAll(ctx context.Context) blob {
	if s.kv == nil {
		return blob{}
	}
	raw, ok, err := s.kv.GetValue(ctx, SessionsKey)
	if err != nil {
		s.logger.Debug("Session storage unavailable", "error", err)
		return blob{}
	}
	if !ok || raw == "" {
		return blob{}
	}
	var all blob
	if err := json.Unmarshal([]byte(raw), &all); err != nil || all == nil {
		s.logger.Debug("Session storage malformed, ignoring", "error", err)
		return blob{}
	}
	return all
}

// userEntries decodes userID's agent map. A missing or malformed entry
// yields nil.
func (s *Store) userEntries(all blob, userID string) map[string]json.RawMessage {
	raw, ok := all[userID]
	if !ok {
		return nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Debug("Session user entry malformed, ignoring", "user_id", userID, "error", err)
		return nil
	}
	return entries
}

func (s *Store) decodePair(userID string, agent domain.AgentType, entries map[string]json.RawMessage) (domain.Session, bool) {
	raw, ok := entries[string(agent)]
	if !ok {
		return domain.Session{}, false
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.logger.Debug("Session entry malformed, ignoring", "user_id", userID, "agent", agent, "error", err)
		return domain.Session{}, false
	}
	if sess.Messages == nil {
		sess.Messages = []domain.Message{}
	}
	return sess, true
}
