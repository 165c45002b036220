// Package presence implements the shared user -> connection directory.
package presence

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
)

// MemoryStore backs the directory with a guarded map. Suitable for
// single-process deployments only; it satisfies the same contract as the
// Redis store so the gateway never knows the difference.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.UserID]domain.ConnHandle
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.UserID]domain.ConnHandle)}
}

func (s *MemoryStore) Register(_ context.Context, h domain.ConnHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[h.UserID] = h
	log.Info().Str("module", "presence").Str("user", string(h.UserID)).Str("conn", h.ConnID).Msg("registered")
	return nil
}

func (s *MemoryStore) Unregister(_ context.Context, userID domain.UserID, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[userID]
	if !ok || cur.ConnID != connID {
		// Stale disconnect racing a fresh reconnect; the new entry wins.
		return nil
	}
	delete(s.entries, userID)
	log.Info().Str("module", "presence").Str("user", string(userID)).Str("conn", connID).Msg("unregistered")
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, userID domain.UserID) (domain.ConnHandle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.entries[userID]
	return h, ok, nil
}

func (s *MemoryStore) Snapshot(_ context.Context) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserID, 0, len(s.entries))
	for uid := range s.entries {
		out = append(out, uid)
	}
	return out, nil
}

var _ core.PresenceStore = (*MemoryStore)(nil)
