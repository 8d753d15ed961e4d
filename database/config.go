// Package database opens and manages the gorm connection shared by the
// admin panel: CRUD repositories, the user provider and the password
// reset broker.
package database

import "time"

// Config provides database configuration.
type Config struct {
	// DSN is a sqlite file path or a postgres connection URL.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime. Default: 10 minutes.
	ConnMaxLifetime time.Duration

	// SlowThreshold marks queries logged as slow. Default: 200ms.
	SlowThreshold time.Duration

	// LogQueries logs every statement at debug level.
	LogQueries bool

	SQLite   SQLiteOptions
	Postgres PostgresOptions
}

// SQLiteOptions contains SQLite-specific configuration.
type SQLiteOptions struct {
	// BusyTimeout in milliseconds. Default: 5000.
	BusyTimeout int

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// TxImmediate takes the write lock when a transaction begins, which
	// avoids SQLITE_BUSY on lock upgrades.
	TxImmediate bool
}

// PostgresOptions contains PostgreSQL-specific configuration.
type PostgresOptions struct {
	SSLMode    string
	Timezone   string
	SearchPath string
}

// DefaultConfig returns the settings used when the application supplies
// only a DSN.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 10 * time.Minute,
		SlowThreshold:   200 * time.Millisecond,
		SQLite: SQLiteOptions{
			BusyTimeout: 5000,
			EnableWAL:   true,
			TxImmediate: true,
		},
		Postgres: PostgresOptions{
			SSLMode:  "prefer",
			Timezone: "UTC",
		},
	}
}
