package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/torkjacobs/tork-guardian/internal/client"
)

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print Tork Guardian version",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if jsonOutput() {
			_ = writeJSON(out, map[string]string{
				"version": client.Version,
				"commit":  GitCommit,
				"built":   BuildDate,
			})
			return
		}
		fmt.Fprintf(out, "Tork Guardian %s\n", client.Version)
		fmt.Fprintf(out, "  Commit: %s\n", GitCommit)
		fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
