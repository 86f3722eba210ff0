package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <name> [node]",
	Short: "Resolve an IPNS name through a node's daemon",
	Long: `Resolve an IPNS name (or /ipns/ path) to its current IPFS path using
a node's running daemon.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()
		name := args[0]

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		node, err := resolveNodeByRef(ctx, nodeRepo, nodeRefFromArgs(args[1:]))
		if err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg)
		if !sup.Alive(node) {
			return &PreflightError{
				Message:  fmt.Sprintf("node %q is not running", node.Name),
				Hint:     "name resolution goes through the daemon",
				NextStep: fmt.Sprintf("berth up %s", node.Name),
			}
		}

		path, err := daemon.ResolveName(ctx, sup.Binary(node), node.RepoDir, name)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]string{"name": name, "path": path})
		}

		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}
