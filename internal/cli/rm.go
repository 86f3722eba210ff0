package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

var rmForce bool

func init() {
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().BoolVar(&rmForce, "force", false, "stop a running daemon and skip confirmation")
}

var rmCmd = &cobra.Command{
	Use:     "rm <node>",
	Aliases: []string{"remove"},
	Short:   "Remove a node from the registry",
	Long: `Remove a node from the registry.

The IPFS repository and log files stay on disk; only the registry
entry goes away. A running node is refused unless --force is given,
which stops the daemon first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		eventRepo := db.NewEventRepository(database)

		node, err := resolveNodeByRef(ctx, nodeRepo, args[0])
		if err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg)
		alive := sup.Alive(node)

		if alive && !rmForce {
			return fmt.Errorf("node %q is running; stop it first or pass --force", node.Name)
		}

		if !rmForce {
			impact := fmt.Sprintf("The repository at %s and any logs stay on disk.", node.RepoDir)
			if !ConfirmDestructiveAction("node", node.Name, impact) {
				fmt.Fprintln(os.Stderr, "Cancelled.")
				return nil
			}
		}

		if alive {
			if _, err := stopNode(ctx, database, sup, nodeRepo, eventRepo, node, cfg.NodeDefaults.ShutdownTimeout); err != nil {
				return fmt.Errorf("failed to stop node before removal: %w", err)
			}
		}

		if err := nodeRepo.Delete(ctx, node.ID); err != nil {
			return err
		}

		recordEvent(ctx, eventRepo, &models.Event{
			Type:       models.EventTypeNodeRemoved,
			EntityType: models.EntityTypeNode,
			EntityID:   node.ID,
			Metadata:   map[string]string{"name": node.Name},
		})

		// Drop the context if it pointed at the removed node.
		if current, cerr := contextStore().Load(); cerr == nil && current.NodeID == node.ID {
			if err := contextStore().Clear(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to clear node context: %v\n", err)
			}
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"node_id": node.ID,
				"name":    node.Name,
				"removed": true,
			})
		}

		if IsQuiet() {
			return nil
		}

		fmt.Fprintf(os.Stdout, "Node %q removed (repository kept at %s)\n", node.Name, node.RepoDir)
		PrintNextSteps(HintContext{Action: "rm", NodeName: node.Name, NodeID: node.ID})
		return nil
	},
}
