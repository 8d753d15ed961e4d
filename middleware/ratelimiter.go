package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/utils"
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Max      int
	Duration time.Duration
	Skip     func(*fiber.Ctx) bool
	Storage  fiber.Storage
}

// RateLimiterOption defines a function to modify RateLimiterConfig.
type RateLimiterOption func(*RateLimiterConfig)

// WithMax sets the maximum number of requests allowed within the window.
func WithMax(max int) RateLimiterOption {
	return func(cfg *RateLimiterConfig) {
		cfg.Max = max
	}
}

// WithDuration sets the window length.
func WithDuration(duration time.Duration) RateLimiterOption {
	return func(cfg *RateLimiterConfig) {
		cfg.Duration = duration
	}
}

// WithSkip skips limiting when skip returns true.
func WithSkip(skip func(*fiber.Ctx) bool) RateLimiterOption {
	return func(cfg *RateLimiterConfig) {
		cfg.Skip = skip
	}
}

// WithStorage stores hit counters in storage, typically a
// cache.FiberStorage shared with the rest of the panel.
func WithStorage(storage fiber.Storage) RateLimiterOption {
	return func(cfg *RateLimiterConfig) {
		cfg.Storage = storage
	}
}

// RateLimiter limits requests per client IP and route. It guards the
// login and password reset endpoints against credential stuffing.
// Defaults to 5 requests per minute.
func RateLimiter(options ...RateLimiterOption) fiber.Handler {
	cfg := RateLimiterConfig{
		Max:      5,
		Duration: time.Minute,
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.Max <= 0 {
		cfg.Max = 5
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Minute
	}

	retryAfter := strconv.Itoa(int(cfg.Duration.Seconds()))

	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Duration,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return utils.CopyString(c.IP() + "|" + c.Path())
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, retryAfter)
			c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			c.Set("X-RateLimit-Remaining", "0")
			return fiber.NewError(fiber.StatusTooManyRequests, "too many attempts, try again later")
		},
		Next: cfg.Skip,
	})
}
