package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

// SetVersionInfo records build metadata passed in from main.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = version
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]string{
				"version": buildVersion,
				"commit":  buildCommit,
				"date":    buildDate,
				"go":      runtime.Version(),
			})
		}
		fmt.Printf("berth %s (commit: %s, built: %s, %s)\n", buildVersion, buildCommit, buildDate, runtime.Version())
		return nil
	},
}
