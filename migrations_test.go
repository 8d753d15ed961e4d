package backpack

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   uint `gorm:"primarykey"`
	Body string
}

type migratorFunc func(context.Context) error

func (f migratorFunc) Migrate(ctx context.Context) error { return f(ctx) }

func TestAutoMigrator(t *testing.T) {
	db := newMemDB(t)

	require.NoError(t, NewAutoMigrator(db).Migrate(context.Background()))
	require.NoError(t, NewAutoMigrator(db, &note{}).Migrate(context.Background()))
	assert.True(t, db.GetConnection().Migrator().HasTable(&note{}))
}

func TestRunMigrations_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	err := RunMigrations(context.Background(),
		migratorFunc(func(context.Context) error { ran = append(ran, "a"); return nil }),
		migratorFunc(func(context.Context) error { ran = append(ran, "b"); return boom }),
		migratorFunc(func(context.Context) error { ran = append(ran, "c"); return nil }),
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestProviderMigrate_CreatesAuthTables(t *testing.T) {
	f := newFixture(t)
	m := f.db.GetConnection().Migrator()
	assert.True(t, m.HasTable("users"))
	assert.True(t, m.HasTable("password_resets"))
}
