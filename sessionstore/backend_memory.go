package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is an in-memory Backend with per-entry expiry.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]map[string]memoryEntry // namespace -> key -> entry
	now     func() time.Time
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry.
func (b *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	b.now = now
	return b
}

func (b *MemoryBackend) Get(_ context.Context, namespace, key string) (string, bool, error) {
	if namespace == "" || key == "" {
		return "", false, fmt.Errorf("namespace and key are required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[namespace][key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, namespace, key, value string, ttl time.Duration) error {
	if namespace == "" || key == "" {
		return fmt.Errorf("namespace and key are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[namespace]; !ok {
		b.entries[namespace] = make(map[string]memoryEntry)
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = b.now().Add(ttl)
	}
	b.entries[namespace][key] = entry
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, namespace, key string) error {
	if namespace == "" || key == "" {
		return fmt.Errorf("namespace and key are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ns, ok := b.entries[namespace]
	if !ok {
		return nil
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(b.entries, namespace)
	}
	return nil
}
