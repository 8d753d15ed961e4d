package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/karloscodes/backpack"
)

func routesCmd(build builder) *cobra.Command {
	var (
		asJSON bool
		sorted bool
	)

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the registered routes",
		Long:  `List every route the application registers, with its method, path and name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(_ context.Context, app *backpack.Application) error {
				routes := app.Server.Routes()
				if sorted {
					sort.SliceStable(routes, func(i, j int) bool {
						if routes[i].Path != routes[j].Path {
							return routes[i].Path < routes[j].Path
						}
						return routes[i].Method < routes[j].Method
					})
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(routes)
				}

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "METHOD\tPATH\tNAME")
				for _, r := range routes {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Method, r.Path, r.Name)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print routes as JSON")
	cmd.Flags().BoolVar(&sorted, "sort", false, "sort by path and method")
	return cmd
}
