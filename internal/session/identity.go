package session

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// UserID returns the persisted device identity, generating and storing a new
// one on first use. If storage is unavailable the generated id is still
// returned; it just will not survive the process.
func (s *Store) UserID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv != nil {
		if v, ok, err := s.kv.GetValue(ctx, IdentityKey); err == nil && ok && strings.TrimSpace(v) != "" {
			return v
		}
	}

	id := uuid.NewString()
	if s.kv != nil {
		if err := s.kv.PutValue(ctx, IdentityKey, id); err != nil {
			s.logger.Warn("Failed to persist user id", "error", err)
		}
	}
	return id
}
