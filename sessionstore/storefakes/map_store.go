package storefakes

import (
	"sync"

	"github.com/jrsteele09/sso-hub/sessionstore"
)

// MapStore is a sessionstore.Store held in process memory.
type MapStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ sessionstore.Store = (*MapStore)(nil)

func NewMapStore() *MapStore {
	return &MapStore{values: map[string]string{}}
}

func (s *MapStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MapStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MapStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
