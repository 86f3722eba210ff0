package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

var (
	downTimeout string
	downAll     bool
)

func init() {
	rootCmd.AddCommand(downCmd)

	downCmd.Flags().StringVarP(&downTimeout, "timeout", "t", "", "graceful shutdown timeout before escalating (e.g. 15s)")
	downCmd.Flags().BoolVar(&downAll, "all", false, "stop every running node")
}

var downCmd = &cobra.Command{
	Use:     "down [node]",
	Aliases: []string{"stop"},
	Short:   "Stop a node's IPFS daemon",
	Long: `Stop the IPFS daemon for a node.

The daemon gets SIGTERM first and is escalated up to SIGKILL when the
graceful timeout passes. A registry entry whose process already died
is reconciled to stopped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		graceful, err := parseDuration(downTimeout, cfg.NodeDefaults.ShutdownTimeout)
		if err != nil {
			return err
		}
		if graceful < time.Second {
			return fmt.Errorf("timeout must be at least 1s")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		eventRepo := db.NewEventRepository(database)
		sup := daemon.NewSupervisor(cfg)

		if downAll {
			if len(args) > 0 {
				return fmt.Errorf("--all takes no node argument")
			}
			return stopAllNodes(ctx, database, sup, nodeRepo, eventRepo, graceful)
		}

		node, err := resolveNodeByRef(ctx, nodeRepo, nodeRefFromArgs(args))
		if err != nil {
			return err
		}

		result, err := stopNode(ctx, database, sup, nodeRepo, eventRepo, node, graceful)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"node":   node.Name,
				"pid":    result.PID,
				"stale":  result.Stale,
				"forced": result.Forced,
			})
		}

		if IsQuiet() {
			return nil
		}

		switch {
		case result.Stale:
			fmt.Fprintf(os.Stdout, "Node %q was already down (stale pid %d cleaned up)\n", node.Name, result.PID)
		case result.Forced:
			fmt.Fprintf(os.Stdout, "Node %q stopped (forced after %s)\n", node.Name, graceful)
		default:
			fmt.Fprintf(os.Stdout, "Node %q stopped\n", node.Name)
		}
		return nil
	},
}

func stopAllNodes(ctx context.Context, database *db.DB, sup *daemon.Supervisor, nodeRepo *db.NodeRepository, eventRepo *db.EventRepository, graceful time.Duration) error {
	nodes, err := nodeRepo.List(ctx)
	if err != nil {
		return err
	}

	stopped := 0
	var failures []string
	for _, node := range nodes {
		if !node.IsRunning() && !sup.Alive(node) {
			continue
		}
		if _, err := stopNode(ctx, database, sup, nodeRepo, eventRepo, node, graceful); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", node.Name, err))
			continue
		}
		stopped++
	}

	if IsJSONOutput() || IsJSONLOutput() {
		out := map[string]any{"stopped": stopped}
		if len(failures) > 0 {
			out["failures"] = failures
		}
		return WriteOutput(os.Stdout, out)
	}

	if !IsQuiet() {
		fmt.Fprintf(os.Stdout, "Stopped %d node%s\n", stopped, plural(stopped, "", "s"))
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "Failed: %s\n", failure)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d node(s) failed to stop", len(failures))
	}
	return nil
}

func stopNode(ctx context.Context, database *db.DB, sup *daemon.Supervisor, nodeRepo *db.NodeRepository, eventRepo *db.EventRepository, node *models.Node, graceful time.Duration) (*daemon.StopResult, error) {
	result, err := sup.Stop(ctx, node, graceful)
	if err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			// Reconcile a registry that still believes otherwise.
			if node.IsRunning() {
				if merr := markNodeStale(ctx, nodeRepo, eventRepo, node); merr != nil {
					return nil, merr
				}
			}
			return nil, fmt.Errorf("node %q is not running", node.Name)
		}
		return nil, err
	}

	now := time.Now().UTC()
	node.State = models.NodeStateStopped
	node.PID = 0
	node.StoppedAt = &now
	node.LastError = ""
	if result.Stale {
		node.LastError = nodeStaleReason
	}

	reason := "stopped"
	if result.Forced {
		reason = "killed after graceful timeout"
	}
	if result.Stale {
		reason = nodeStaleReason
	}
	payload, _ := json.Marshal(models.DaemonStoppedPayload{PID: result.PID, Reason: reason})

	err = database.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if err := nodeRepo.UpdateWithTx(ctx, tx, node); err != nil {
			return err
		}
		eventType := models.EventTypeDaemonStopped
		if result.Stale {
			eventType = models.EventTypeDaemonDied
		}
		return eventRepo.CreateWithTx(ctx, tx, &models.Event{
			Type:       eventType,
			EntityType: models.EntityTypeNode,
			EntityID:   node.ID,
			Payload:    payload,
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
