package pictures

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps pictures in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	pics map[uuid.UUID]*Picture
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pics: make(map[uuid.UUID]*Picture)}
}

func (s *MemoryStore) Put(_ context.Context, pic *Picture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pic
	cp.Data = slices.Clone(pic.Data)
	s.pics[pic.MemberID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, memberID uuid.UUID) (*Picture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pics[memberID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Data = slices.Clone(p.Data)
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, memberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pics, memberID)
	return nil
}
