package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	db *gorm.DB
}

func (d testDB) GetConnection() *gorm.DB { return d.db }

func newTestDB(t *testing.T) testDB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return testDB{db: db}
}

func createUser(t *testing.T, db testDB, email, password string) *User {
	t.Helper()
	user, err := NewGormProvider(db).CreateUser(context.Background(), "Admin", email, password)
	require.NoError(t, err)
	return user
}
