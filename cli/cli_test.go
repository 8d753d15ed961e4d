package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/backpack/routing"
)

// testEnv points the "clitest" application at temporary directories.
func testEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CLITEST_ENV", "test")
	t.Setenv("CLITEST_DATA_DIR", dir)
	t.Setenv("CLITEST_LOGS_DIR", dir)
	t.Setenv("CLITEST_BASE_PATH", dir)
	t.Setenv("CLITEST_CONFIG_DIR", dir)
	t.Setenv("CLITEST_SESSION_SECRET", "cli-secret")
	t.Setenv("CLITEST_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := New("clitest")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Go version:")
}

func TestRoutes_JSON(t *testing.T) {
	testEnv(t)

	out, err := run(t, "routes", "--json", "--sort")
	require.NoError(t, err)

	var routes []routing.Route
	require.NoError(t, json.Unmarshal([]byte(out), &routes))

	names := map[string]string{}
	for _, r := range routes {
		if r.Name != "" {
			names[r.Name] = r.Method + " " + r.Path
		}
	}
	assert.Equal(t, "GET /admin/login", names["backpack.auth.login"])
	assert.Equal(t, "POST /admin/logout", names["backpack.auth.logout"])
	assert.Equal(t, "POST /admin/password/email", names["backpack.auth.password.email"])
	assert.Equal(t, "GET /admin/dashboard", names["backpack.dashboard"])
	assert.Equal(t, "GET /metrics", names["backpack.metrics"])
}

func TestRoutes_Table(t *testing.T) {
	testEnv(t)

	out, err := run(t, "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "METHOD")
	assert.Regexp(t, `GET\s+/admin/login\s+backpack\.auth\.login`, out)
}

func TestMigrateAndClearResets(t *testing.T) {
	testEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated")

	out, err = run(t, "auth:clear-resets")
	require.NoError(t, err)
	assert.Contains(t, out, "Expired reset tokens cleared: 0")
}

func TestUnknownEnvironmentFails(t *testing.T) {
	testEnv(t)
	t.Setenv("CLITEST_ENV", "staging")

	_, err := run(t, "routes")
	assert.Error(t, err)
}

func TestExecute_ExitCode(t *testing.T) {
	root := New("clitest")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"no-such-command"})
	assert.Equal(t, 1, Execute(root))
	assert.Contains(t, out.String(), "Error:")
}
