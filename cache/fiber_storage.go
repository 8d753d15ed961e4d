package cache

import (
	"context"
	"time"
)

// FiberStorage adapts a Store to fiber.Storage so Fiber middleware such as
// the rate limiter can share it.
type FiberStorage struct {
	store Store
}

// NewFiberStorage wraps store.
func NewFiberStorage(store Store) *FiberStorage {
	return &FiberStorage{store: store}
}

// Get returns the value for key, or nil when missing.
func (f *FiberStorage) Get(key string) ([]byte, error) {
	value, ok := f.store.Read(context.Background(), key)
	if !ok {
		return nil, nil
	}
	return value, nil
}

// Set stores value. A zero expiration means no expiry.
func (f *FiberStorage) Set(key string, value []byte, exp time.Duration) error {
	if exp <= 0 {
		exp = 100 * 365 * 24 * time.Hour
	}
	return f.store.WriteWithTTL(context.Background(), key, value, exp)
}

// Delete removes key.
func (f *FiberStorage) Delete(key string) error {
	return f.store.Delete(context.Background(), key)
}

// Reset clears the store.
func (f *FiberStorage) Reset() error {
	return f.store.Clear(context.Background())
}

// Close is a no-op; the owner of the store closes it.
func (f *FiberStorage) Close() error {
	return nil
}
