// Package cli provides the backpack command line: serve the admin panel,
// list its routes, run migrations and prune password reset tokens.
//
// Applications embed it to get the same commands with their own
// controllers and routes:
//
//	root := cli.New("shop", backpack.WithControllers(registry), backpack.WithRoutes(mount))
//	os.Exit(cli.Execute(root))
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/karloscodes/backpack"
)

// Version information set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// builder creates the application for one command invocation.
type builder func(cmd *cobra.Command) (*backpack.Application, error)

// New returns the root command. appName selects the environment variable
// prefix unless --app overrides it; opts are passed to every application
// the commands build.
func New(appName string, opts ...backpack.Option) *cobra.Command {
	root := &cobra.Command{
		Use:   "backpack",
		Short: "Admin panel for Fiber applications",
		Long: `Backpack serves a CRUD admin panel with login, password reset and a
dashboard on top of a Fiber server.

Configuration is read from <APP>_* environment variables and the
config directory (backpack/crud, backpack/base, auth, filesystems).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("app", appName, "application name, used as the environment variable prefix")

	build := func(cmd *cobra.Command) (*backpack.Application, error) {
		name, err := cmd.Flags().GetString("app")
		if err != nil {
			return nil, err
		}
		return backpack.NewApplication(name, opts...)
	}

	root.AddCommand(
		serveCmd(build),
		routesCmd(build),
		migrateCmd(build),
		clearResetsCmd(build),
		versionCmd(),
	)
	return root
}

// Execute runs root and returns the process exit code.
func Execute(root *cobra.Command) int {
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %s\n", err)
		return 1
	}
	return 0
}

// withApp builds the application, runs fn and closes the database.
func withApp(cmd *cobra.Command, build builder, fn func(ctx context.Context, app *backpack.Application) error) error {
	app, err := build(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("close database", "error", err)
		}
	}()
	return fn(cmd.Context(), app)
}

func printf(w io.Writer, format string, args ...any) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, format, args...)
}
