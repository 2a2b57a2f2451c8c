package storage

import (
	"context"
	"sync"
)

// MemStore is a simple in-memory Store. It is the reference adapter,
// and what tests use in place of a real environment bridge.
type MemStore struct {
	m   map[string]string
	mMu sync.RWMutex
}

var _ Store = &MemStore{}

func (s *MemStore) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mMu.RLock()
	defer s.mMu.RUnlock()

	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemStore) SetItem(_ context.Context, key, value string) error {
	s.mMu.Lock()
	defer s.mMu.Unlock()

	if s.m == nil {
		s.m = make(map[string]string)
	}
	s.m[key] = value

	return nil
}

func (s *MemStore) RemoveItem(_ context.Context, key string) error {
	s.mMu.Lock()
	defer s.mMu.Unlock()

	delete(s.m, key)

	return nil
}
