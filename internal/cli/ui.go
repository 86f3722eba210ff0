package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/berth-sh/berth/internal/statusui"
)

func init() {
	rootCmd.AddCommand(uiCmd)
}

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the status dashboard",
	Long:  "Launch the interactive terminal dashboard showing node state, uptime, and daemon logs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDashboard()
	},
}

func runDashboard() error {
	if IsNonInteractive() {
		return &PreflightError{
			Message:  "the dashboard requires an interactive terminal",
			Hint:     "Run without --non-interactive and with a TTY",
			NextStep: "berth ps",
		}
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	cfg := GetConfig()
	return statusui.Run(database, statusui.Config{
		AppConfig:       cfg,
		RefreshInterval: cfg.UI.RefreshInterval,
		LogLines:        cfg.UI.LogLines,
	})
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
