package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/karloscodes/backpack"
)

func migrateCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the admin and application tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, app *backpack.Application) error {
				if err := app.Migrate(ctx); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Migrated %s\n", app.Config.App().DatabaseDSN())
				return nil
			})
		},
	}
}

func clearResetsCmd(build builder) *cobra.Command {
	return &cobra.Command{
		Use:   "auth:clear-resets",
		Short: "Delete expired password reset tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, app *backpack.Application) error {
				n, err := app.Provider.Auth().PruneResets(ctx)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Expired reset tokens cleared: %d\n", n)
				return nil
			})
		},
	}
}
