package settings

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]SavedSettings
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]SavedSettings{}, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, ownerID string) (SavedSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[ownerID]
	if !ok {
		return SavedSettings{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) Save(_ context.Context, ownerID string, in SavedSettings) (SavedSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.UpdatedAt = s.now().UTC()
	s.items[ownerID] = in
	return in, nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[ownerID]; !ok {
		return ErrNotFound
	}
	delete(s.items, ownerID)
	return nil
}
