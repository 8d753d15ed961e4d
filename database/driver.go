package database

import (
	"log/slog"

	"gorm.io/gorm"
)

// Driver adapts a database engine to the Manager.
type Driver interface {
	// Name returns the driver name, matching the DATABASE_DRIVER setting.
	Name() string

	// Dialector returns the gorm dialector for dsn with driver options applied.
	Dialector(cfg *Config) gorm.Dialector

	// AfterConnect runs once the connection is open.
	AfterConnect(db *gorm.DB, cfg *Config, logger *slog.Logger) error

	// BeforeClose runs before the pool is closed.
	BeforeClose(db *gorm.DB, logger *slog.Logger) error
}
