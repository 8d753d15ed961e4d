// Package postgres is the PostgreSQL database driver.
package postgres

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/karloscodes/backpack/database"
)

// Driver implements database.Driver for PostgreSQL.
type Driver struct{}

// NewDriver creates a new PostgreSQL driver.
func NewDriver() *Driver {
	return &Driver{}
}

// Name returns "postgres".
func (d *Driver) Name() string {
	return "postgres"
}

// Dialector returns a gorm PostgreSQL dialector for cfg.DSN.
func (d *Driver) Dialector(cfg *database.Config) gorm.Dialector {
	return postgres.Open(ConfigureDSN(cfg.DSN, cfg.Postgres))
}

// ConfigureDSN adds sslmode and TimeZone unless the DSN already sets them.
func ConfigureDSN(dsn string, opts database.PostgresOptions) string {
	var params []string
	if opts.SSLMode != "" && !strings.Contains(dsn, "sslmode=") {
		params = append(params, "sslmode="+opts.SSLMode)
	}
	if opts.Timezone != "" && !strings.Contains(dsn, "TimeZone=") {
		params = append(params, "TimeZone="+opts.Timezone)
	}
	if len(params) == 0 {
		return dsn
	}

	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + strings.Join(params, "&")
	}
	// key=value form
	return strings.TrimSpace(dsn + " " + strings.Join(params, " "))
}

// AfterConnect sets the search path if one is configured.
func (d *Driver) AfterConnect(db *gorm.DB, cfg *database.Config, logger *slog.Logger) error {
	if cfg.Postgres.SearchPath == "" {
		return nil
	}
	if err := db.Exec(fmt.Sprintf("SET search_path TO %s", cfg.Postgres.SearchPath)).Error; err != nil {
		logger.Error("failed to set search_path", slog.String("search_path", cfg.Postgres.SearchPath), slog.Any("error", err))
		return fmt.Errorf("postgres: set search_path: %w", err)
	}
	return nil
}

// BeforeClose is a no-op for PostgreSQL.
func (d *Driver) BeforeClose(db *gorm.DB, logger *slog.Logger) error {
	return nil
}

var _ database.Driver = (*Driver)(nil)
