package backpack

import (
	"context"

	"gorm.io/gorm"
)

// Logger abstracts logging operations. *slog.Logger satisfies it.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// DBManager abstracts database connection management.
type DBManager interface {
	// GetConnection returns a GORM database connection.
	// Returns nil if the connection is unavailable.
	GetConnection() *gorm.DB
}

// Migrator is implemented by components that own database tables.
type Migrator interface {
	Migrate(ctx context.Context) error
}
