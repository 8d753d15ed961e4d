package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrNotConnected is returned by Ping and Migrate before Connect succeeds.
var ErrNotConnected = errors.New("database: not connected")

// Manager owns the gorm connection for one driver.
type Manager struct {
	driver Driver
	cfg    *Config
	logger *slog.Logger

	mu sync.Mutex
	db *gorm.DB
}

// NewManager creates a database manager with the given driver and config.
func NewManager(driver Driver, cfg *Config, logger *slog.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		driver: driver,
		cfg:    cfg,
		logger: logger,
	}
}

// Connect opens the connection on first use and returns a fresh session.
// A failed open is retried on the next call.
func (m *Manager) Connect() (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		db, err := m.open()
		if err != nil {
			return nil, err
		}
		m.db = db
	}
	return m.db.Session(&gorm.Session{}), nil
}

// GetConnection returns nil if the connection cannot be opened.
func (m *Manager) GetConnection() *gorm.DB {
	db, err := m.Connect()
	if err != nil {
		m.logger.Error("failed to get database connection", slog.Any("error", err))
		return nil
	}
	return db
}

// Ping verifies the pool can reach the database.
func (m *Manager) Ping(ctx context.Context) error {
	db, err := m.Connect()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database: access sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: ping: %w", err)
	}
	return nil
}

// Migrate auto-migrates the given models.
func (m *Manager) Migrate(ctx context.Context, models ...any) error {
	if len(models) == 0 {
		return nil
	}
	db, err := m.Connect()
	if err != nil {
		return err
	}
	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	m.logger.Info("database migrated", slog.Int("models", len(models)))
	return nil
}

// Close closes the connection. Connect may be called again afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}

	if err := m.driver.BeforeClose(m.db, m.logger); err != nil {
		m.logger.Warn("driver cleanup error", slog.Any("error", err))
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("database: access sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}

	m.db = nil
	m.logger.Info("database connection closed", slog.String("driver", m.driver.Name()))
	return nil
}

// Driver returns the underlying driver.
func (m *Manager) Driver() Driver {
	return m.driver
}

// Config returns the manager configuration.
func (m *Manager) Config() *Config {
	return m.cfg
}

func (m *Manager) open() (*gorm.DB, error) {
	gormLogger := NewGormLogger(m.logger.With(slog.String("component", "gorm")), &GormLoggerOptions{
		SlowThreshold: m.cfg.SlowThreshold,
		LogQueries:    m.cfg.LogQueries,
	})

	db, err := gorm.Open(m.driver.Dialector(m.cfg), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", m.driver.Name(), err)
	}

	if err := m.driver.AfterConnect(db, m.cfg, m.logger); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: access sql.DB: %w", err)
	}
	if m.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(m.cfg.MaxOpenConns)
	}
	if m.cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(m.cfg.MaxIdleConns)
	}
	if m.cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
	}

	m.logger.Info("database connection established",
		slog.String("driver", m.driver.Name()),
		slog.Int("max_open", m.cfg.MaxOpenConns),
		slog.Int("max_idle", m.cfg.MaxIdleConns),
	)
	return db, nil
}
