package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"gorm.io/gorm"
)

// RetryConfig controls how PerformWrite retries busy errors.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig relies on busy_timeout and _txlock=immediate for
// queuing and only retries what slips through.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 10,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// PerformWrite runs f inside a transaction, retrying with exponential
// backoff when the database reports it is busy or locked.
func PerformWrite(ctx context.Context, logger *slog.Logger, db *gorm.DB, f func(tx *gorm.DB) error) error {
	return PerformWriteWithConfig(ctx, logger, db, f, DefaultRetryConfig())
}

// PerformWriteWithConfig is PerformWrite with a custom retry policy.
func PerformWriteWithConfig(ctx context.Context, logger *slog.Logger, db *gorm.DB, f func(tx *gorm.DB) error, cfg RetryConfig) error {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	var err error
	for i := 0; i < cfg.MaxRetries; i++ {
		if i > 0 {
			delay := retryDelay(i, cfg.BaseDelay, cfg.MaxDelay)
			logger.Info("retrying transaction",
				slog.Int("attempt", i+1),
				slog.Duration("delay", delay),
				slog.Any("error", err))

			select {
			case <-ctx.Done():
				return fmt.Errorf("database: write cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		err = db.WithContext(ctx).Session(&gorm.Session{SkipDefaultTransaction: true}).Transaction(f)
		if err == nil {
			return nil
		}
		if !IsBusyError(err) {
			return err
		}
		logger.Debug("write hit a busy database", slog.Any("error", err))
	}
	return fmt.Errorf("database: transaction failed after %d retries: %w", cfg.MaxRetries, err)
}

func retryDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if max > 0 && delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Float64() * 0.2 * float64(delay))
	return delay + jitter
}

// IsBusyError reports whether err is a SQLite busy or locked error.
func IsBusyError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database is busy") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQL statements in progress")
}
