package session

import (
	"context"
	"sync"

	"github.com/platinummonkey/warden/pkg/auth"
)

// MemoryBackend keeps sessions in process memory. It is used for development and tests.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]map[string]string)}
}

// Open returns the store for sessionID
func (b *MemoryBackend) Open(sessionID string) Store {
	return &memoryStore{backend: b, key: auth.HashSessionID(sessionID)}
}

// Close releases nothing
func (b *MemoryBackend) Close() error { return nil }

// Len reports how many sessions hold at least one key
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

type memoryStore struct {
	backend *MemoryBackend
	key     string
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()
	value, ok := s.backend.sessions[s.key][key]
	return value, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	values, ok := s.backend.sessions[s.key]
	if !ok {
		values = make(map[string]string)
		s.backend.sessions[s.key] = values
	}
	values[key] = value
	return nil
}

func (s *memoryStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	values, ok := s.backend.sessions[s.key]
	if !ok {
		return nil
	}
	delete(values, key)
	if len(values) == 0 {
		delete(s.backend.sessions, s.key)
	}
	return nil
}

func (s *memoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	delete(s.backend.sessions, s.key)
	return nil
}
