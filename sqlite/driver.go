// Package sqlite is the default database driver for the admin panel.
package sqlite

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/karloscodes/backpack/database"
)

// Driver implements database.Driver for SQLite.
type Driver struct{}

// NewDriver creates a new SQLite driver.
func NewDriver() *Driver {
	return &Driver{}
}

// Name returns "sqlite".
func (d *Driver) Name() string {
	return "sqlite"
}

// Dialector returns a gorm SQLite dialector for cfg.DSN.
func (d *Driver) Dialector(cfg *database.Config) gorm.Dialector {
	return sqlite.Open(ConfigureDSN(cfg.DSN, cfg.SQLite))
}

// ConfigureDSN appends the transaction lock mode to a file DSN.
func ConfigureDSN(dsn string, opts database.SQLiteOptions) string {
	if !opts.TxImmediate || dsn == ":memory:" || strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate"
}

// AfterConnect applies SQLite pragmas.
func (d *Driver) AfterConnect(db *gorm.DB, cfg *database.Config, logger *slog.Logger) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if cfg.SQLite.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.SQLite.BusyTimeout))
	}
	if cfg.SQLite.EnableWAL && cfg.DSN != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			logger.Error("failed to apply pragma", slog.String("pragma", pragma), slog.Any("error", err))
			return fmt.Errorf("sqlite: apply pragma %s: %w", pragma, err)
		}
	}
	return nil
}

// BeforeClose checkpoints the WAL so the database file is self-contained.
func (d *Driver) BeforeClose(db *gorm.DB, logger *slog.Logger) error {
	logger.Debug("performing WAL checkpoint before close")
	return db.Exec("PRAGMA wal_checkpoint(PASSIVE);").Error
}

var _ database.Driver = (*Driver)(nil)
