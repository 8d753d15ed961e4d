package cli

import (
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				printf(out, "%s\n", Version)
				return
			}
			printf(out, "  Version:    %s\n", Version)
			printf(out, "  Commit:     %s\n", Commit)
			printf(out, "  Built:      %s\n", Date)
			printf(out, "  Go version: %s\n", runtime.Version())
			printf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	return cmd
}
