package backpack

import (
	"context"
	"fmt"
)

// AutoMigrator runs GORM AutoMigrate for application models.
type AutoMigrator struct {
	db     DBManager
	models []any
}

// NewAutoMigrator creates a migrator for models.
func NewAutoMigrator(db DBManager, models ...any) *AutoMigrator {
	return &AutoMigrator{db: db, models: models}
}

// Migrate creates or updates the tables of every model.
func (m *AutoMigrator) Migrate(ctx context.Context) error {
	if len(m.models) == 0 {
		return nil
	}
	db := m.db.GetConnection()
	if db == nil {
		return fmt.Errorf("backpack: migrate: no database connection")
	}
	if err := db.WithContext(ctx).AutoMigrate(m.models...); err != nil {
		return fmt.Errorf("backpack: migrate models: %w", err)
	}
	return nil
}

// RunMigrations runs migrators in order and stops at the first failure.
func RunMigrations(ctx context.Context, migrators ...Migrator) error {
	for _, m := range migrators {
		if err := m.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}
