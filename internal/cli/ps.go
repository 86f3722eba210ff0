package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

var psState string

func init() {
	rootCmd.AddCommand(psCmd)

	psCmd.Flags().StringVar(&psState, "state", "", "filter by state (stopped, starting, running, error)")
}

var psCmd = &cobra.Command{
	Use:     "ps",
	Aliases: []string{"ls", "status"},
	Short:   "List nodes and their daemon state",
	Long: `List registered nodes with their live daemon state.

Registry entries are reconciled against the actual processes first, so
a node whose daemon died shows up as stopped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := MustBeJSONLForWatch(); err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg := GetConfig()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		eventRepo := db.NewEventRepository(database)

		var nodes []*models.Node
		if psState != "" {
			state := models.NodeState(psState)
			if !state.IsValid() {
				return fmt.Errorf("unknown state %q (valid: stopped, starting, running, error)", psState)
			}
			nodes, err = nodeRepo.ListByState(ctx, state)
		} else {
			nodes, err = nodeRepo.List(ctx)
		}
		if err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg)
		if _, err := reconcileNodeLiveness(ctx, sup, nodeRepo, eventRepo, nodes); err != nil {
			return err
		}

		// Reconciliation may have moved nodes out of the requested state.
		if psState != "" {
			filtered := nodes[:0]
			for _, node := range nodes {
				if node.State == models.NodeState(psState) {
					filtered = append(filtered, node)
				}
			}
			nodes = filtered
		}

		if IsJSONOutput() || IsJSONLOutput() {
			if err := WriteOutput(os.Stdout, nodes); err != nil {
				return err
			}
			// In watch mode, keep streaming node events after the
			// initial listing.
			return WatchHelper(ctx, eventRepo, models.EntityTypeNode, "")
		}

		if len(nodes) == 0 {
			if !IsQuiet() {
				if psState != "" {
					fmt.Fprintf(os.Stdout, "No nodes in state %q\n", psState)
				} else {
					fmt.Fprintln(os.Stdout, "No nodes registered yet. Run 'berth up' to start one.")
				}
			}
			return nil
		}

		now := time.Now()
		headers := []string{"NAME", "ID", "STATE", "PID", "UPTIME", "INIT", "API"}
		rows := make([][]string, 0, len(nodes))
		for _, node := range nodes {
			pid := "-"
			if node.PID > 0 {
				pid = fmt.Sprintf("%d", node.PID)
			}
			api := node.APIAddress
			if api == "" {
				api = "-"
			}
			rows = append(rows, []string{
				node.Name,
				nodeShortID(node),
				string(node.State),
				pid,
				formatDuration(node.Uptime(now)),
				formatYesNo(daemon.IsInitialized(node.RepoDir)),
				api,
			})
		}

		return writeTable(os.Stdout, headers, rows)
	},
}
