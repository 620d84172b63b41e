package keychain

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and for running the daemon
// without touching the OS credential store.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
	fail    error
}

// NewMemoryStore creates a new in-memory secret store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

// FailWith makes every subsequent operation return err. A nil err restores
// normal behaviour.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return fmt.Errorf("memory set %q: %w", key, s.fail)
	}
	s.secrets[key] = value
	return nil
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return "", fmt.Errorf("memory get %q: %w", key, s.fail)
	}
	val, ok := s.secrets[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return fmt.Errorf("memory delete %q: %w", key, s.fail)
	}
	delete(s.secrets, key)
	return nil
}
