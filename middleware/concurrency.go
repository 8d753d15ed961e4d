package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/semaphore"
)

// ErrLimiterBusy is returned when no slot frees up before the timeout.
var ErrLimiterBusy = errors.New("middleware: concurrency limit reached")

// ConcurrencyLimiter bounds concurrent reads and writes. SQLite allows a
// single writer, so CRUD writes queue here instead of piling up on
// busy_timeout.
type ConcurrencyLimiter struct {
	read    *semaphore.Weighted
	write   *semaphore.Weighted
	timeout time.Duration
	logger  Logger
}

// NewConcurrencyLimiter creates a limiter. A non-positive timeout waits
// as long as the request context allows.
func NewConcurrencyLimiter(readLimit, writeLimit int64, timeout time.Duration, logger Logger) *ConcurrencyLimiter {
	if readLimit < 1 {
		readLimit = 1
	}
	if writeLimit < 1 {
		writeLimit = 1
	}
	return &ConcurrencyLimiter{
		read:    semaphore.NewWeighted(readLimit),
		write:   semaphore.NewWeighted(writeLimit),
		timeout: timeout,
		logger:  logger,
	}
}

// AcquireRead blocks until a read slot is free.
func (l *ConcurrencyLimiter) AcquireRead(ctx context.Context) error {
	return l.acquire(ctx, l.read, "read")
}

// ReleaseRead frees a read slot.
func (l *ConcurrencyLimiter) ReleaseRead() {
	l.read.Release(1)
}

// AcquireWrite blocks until a write slot is free.
func (l *ConcurrencyLimiter) AcquireWrite(ctx context.Context) error {
	return l.acquire(ctx, l.write, "write")
}

// ReleaseWrite frees a write slot.
func (l *ConcurrencyLimiter) ReleaseWrite() {
	l.write.Release(1)
}

// Write runs fn while holding a write slot.
func (l *ConcurrencyLimiter) Write(ctx context.Context, fn func() error) error {
	if err := l.AcquireWrite(ctx); err != nil {
		return err
	}
	defer l.ReleaseWrite()
	return fn()
}

func (l *ConcurrencyLimiter) acquire(ctx context.Context, sem *semaphore.Weighted, kind string) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		if l.logger != nil {
			l.logger.Warn("concurrency slot unavailable", "kind", kind, "waited", time.Since(start), "error", err)
		}
		return fmt.Errorf("%w: %s: %v", ErrLimiterBusy, kind, err)
	}
	return nil
}

// WriteConcurrencyLimitMiddleware serializes state-changing requests
// through the limiter. Safe methods pass through untouched.
func WriteConcurrencyLimitMiddleware(limiter *ConcurrencyLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		if err := limiter.AcquireWrite(c.UserContext()); err != nil {
			c.Set(fiber.HeaderRetryAfter, "1")
			return fiber.NewError(fiber.StatusServiceUnavailable, "server busy, try again")
		}
		defer limiter.ReleaseWrite()
		return c.Next()
	}
}
