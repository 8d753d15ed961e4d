package testsupport

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDBOptions configures test database creation.
type TestDBOptions struct {
	// Models to auto-migrate
	Models []any

	// Enable SQL logging (default: silent)
	Verbose bool
}

// SetupTestDB creates an in-memory SQLite database for testing and
// optionally migrates the provided models.
//
// The pool is capped at one connection: every new connection to
// ":memory:" would otherwise see its own empty database.
func SetupTestDB(t testing.TB, opts ...TestDBOptions) *gorm.DB {
	t.Helper()

	var options TestDBOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	logMode := logger.Silent
	if options.Verbose {
		logMode = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		t.Fatalf("testsupport: open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("testsupport: enable foreign keys: %v", err)
	}

	if len(options.Models) > 0 {
		if err := db.AutoMigrate(options.Models...); err != nil {
			t.Fatalf("testsupport: migrate models: %v", err)
		}
	}

	return db
}

// TestDBManager implements backpack.DBManager over a test database.
type TestDBManager struct {
	db *gorm.DB
}

// NewTestDBManager wraps db.
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{db: db}
}

// GetConnection returns the test database connection.
func (m *TestDBManager) GetConnection() *gorm.DB {
	return m.db
}
