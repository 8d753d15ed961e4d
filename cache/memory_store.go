package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with FIFO eviction. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	order   []string
	opts    Options
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store and starts its cleanup loop
// when a cleanup interval is configured.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		opts:    applyOptions(opts...),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if s.opts.CleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

// Read retrieves a value.
func (s *MemoryStore) Read(ctx context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Write stores a value with the default TTL.
func (s *MemoryStore) Write(ctx context.Context, key string, value []byte) error {
	return s.WriteWithTTL(ctx, key, value, s.opts.TTL)
}

// WriteWithTTL stores a value with a custom TTL.
func (s *MemoryStore) WriteWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}

	if s.opts.MaxEntries > 0 {
		for len(s.entries) > s.opts.MaxEntries && len(s.order) > 0 {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.entries, oldest)
		}
	}
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	s.removeFromOrder(key)
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]memoryEntry)
	s.order = nil
	return nil
}

// Exist reports whether key is present and not expired.
func (s *MemoryStore) Exist(ctx context.Context, key string) bool {
	_, ok := s.Read(ctx, key)
	return ok
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup loop.
func (s *MemoryStore) Close() error {
	s.stopped.Do(func() { close(s.stopCh) })
	return nil
}

func (s *MemoryStore) removeFromOrder(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes expired entries.
func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			s.removeFromOrder(key)
		}
	}
}
