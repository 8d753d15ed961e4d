package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func serveCmd(build builder) *cobra.Command {
	var (
		migrate bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the admin panel and the background jobs. The server stops
gracefully on SIGINT or SIGTERM.

Examples:
  backpack serve
  backpack serve --migrate
  SHOP_PORT=9000 backpack serve --app shop`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := build(cmd)
			if err != nil {
				return err
			}
			if migrate {
				if err := app.Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			app.Logger.Info("starting server", "port", app.Config.App().GetPort(), "prefix", app.Config.RoutePrefix())
			return app.RunWithTimeout(timeout)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "run migrations before serving")
	cmd.Flags().DurationVar(&timeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	return cmd
}
