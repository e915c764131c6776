package cart

import (
	"context"
	"sync"
)

type MemStore struct {
	mu sync.RWMutex
	m  map[string]Record
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string]Record{}}
}

func (s *MemStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[userID]
	return rec, ok, nil
}

func (s *MemStore) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[rec.UserID] = rec
	return nil
}

func (s *MemStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
	return nil
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }
