package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// These will be set by the linker during build
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		short, _ := cmd.Flags().GetBool("short")
		if short {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "habitcoach %s (commit: %s, built: %s, %s)\n", Version, Commit, Date, runtime.Version())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("short", "s", false, "Show only version number")
}
