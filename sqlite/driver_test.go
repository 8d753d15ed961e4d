package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/backpack/database"
)

func TestConfigureDSN(t *testing.T) {
	opts := database.SQLiteOptions{TxImmediate: true}

	assert.Equal(t, "app.db?_txlock=immediate", ConfigureDSN("app.db", opts))
	assert.Equal(t, "app.db?cache=shared&_txlock=immediate", ConfigureDSN("app.db?cache=shared", opts))
	assert.Equal(t, ":memory:", ConfigureDSN(":memory:", opts))
	assert.Equal(t, "app.db", ConfigureDSN("app.db", database.SQLiteOptions{}))
}

func TestDriver_ConnectsWithPragmas(t *testing.T) {
	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "app.db"))
	m := database.NewManager(NewDriver(), cfg, nil)
	t.Cleanup(func() { _ = m.Close() })

	db, err := m.Connect()
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)
}
