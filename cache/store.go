// Package cache provides the short-lived key/value store used for throttling
// password reset requests and login attempts.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key/value store.
type Store interface {
	// Read retrieves a value. Returns nil, false if missing or expired.
	Read(ctx context.Context, key string) ([]byte, bool)

	// Write stores a value with the default TTL.
	Write(ctx context.Context, key string, value []byte) error

	// WriteWithTTL stores a value with a custom TTL.
	WriteWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Exist reports whether key is present and not expired.
	Exist(ctx context.Context, key string) bool
}

// Options configures a store.
type Options struct {
	// TTL is the default time-to-live. Default: 1 hour.
	TTL time.Duration

	// MaxEntries limits the number of entries, evicting the oldest first.
	// 0 means unlimited.
	MaxEntries int

	// CleanupInterval is how often expired entries are swept. Default: 1 minute.
	// 0 disables background cleanup.
	CleanupInterval time.Duration
}

// DefaultOptions returns the defaults used by the admin panel.
func DefaultOptions() Options {
	return Options{
		TTL:             time.Hour,
		MaxEntries:      10000,
		CleanupInterval: time.Minute,
	}
}

// Option is a functional option for configuring a store.
type Option func(*Options)

// WithTTL sets the default TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.TTL = ttl
	}
}

// WithMaxEntries caps the number of entries.
func WithMaxEntries(max int) Option {
	return func(o *Options) {
		o.MaxEntries = max
	}
}

// WithCleanupInterval sets the sweep interval.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.CleanupInterval = interval
	}
}

func applyOptions(opts ...Option) Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
