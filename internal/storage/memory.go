package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps slots in process memory. Nothing survives a restart, so
// it is meant for tests and for running without a writable disk.
type MemoryStore struct {
	mu     sync.RWMutex
	slots  map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, slot string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	data, ok := s.slots[slot]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(data), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, slot string, data []byte) error {
	return s.SetMany(ctx, map[string][]byte{slot: data})
}

func (s *MemoryStore) SetMany(_ context.Context, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for slot, data := range values {
		s.slots[slot] = cloneBytes(data)
	}
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, slot string) error {
	return s.RemoveAll(ctx, slot)
}

func (s *MemoryStore) RemoveAll(_ context.Context, slots ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, slot := range slots {
		delete(s.slots, slot)
	}
	return nil
}

func (s *MemoryStore) Type() string {
	return TypeMemory
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
