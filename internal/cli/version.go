package cli

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"

	"gasflow/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s, %s)\n",
			version.Name, version.Version, version.Commit, version.BuildDate, goruntime.Version())
	},
}
