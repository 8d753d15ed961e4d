package testsupport

import (
	"io"
	"log/slog"
	"testing"

	"github.com/karloscodes/backpack/config"
)

// NewTestConfig returns a test-environment configuration rooted in a
// temporary directory, so no config files or published overrides leak in.
func NewTestConfig(t testing.TB) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AppName:         "backpack-test",
		Environment:     config.Test,
		BasePath:        dir,
		ConfigDirectory: dir,
		ResourcesPath:   "resources",
		SessionSecret:   "testsupport-secret",
		SessionTimeout:  3600,
		DatabaseDriver:  config.DriverSQLite,
	}
}

// NewTestLogger creates a slog.Logger that discards all output.
// Use this for tests where you don't need to verify log messages.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
