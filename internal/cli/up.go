package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/logging"
	"github.com/berth-sh/berth/internal/models"
	"github.com/berth-sh/berth/internal/procutil"
)

var (
	upBinary    string
	upRepoDir   string
	upAPI       string
	upExtraArgs string
	upTimeout   string
	upSkipPeers bool
)

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().StringVar(&upBinary, "binary", "", "ipfs binary path for this node")
	upCmd.Flags().StringVar(&upRepoDir, "repo", "", "IPFS repository directory")
	upCmd.Flags().StringVar(&upAPI, "api", "", "API multiaddr the daemon should listen on")
	upCmd.Flags().StringVar(&upExtraArgs, "extra-args", "", "extra daemon arguments (shell-style quoted)")
	upCmd.Flags().StringVarP(&upTimeout, "timeout", "t", "", "startup timeout (e.g. 30s, 2m)")
	upCmd.Flags().BoolVar(&upSkipPeers, "skip-peers", false, "skip registry peer auto-connect")
}

var upCmd = &cobra.Command{
	Use:     "up [node]",
	Aliases: []string{"start"},
	Short:   "Start a node's IPFS daemon",
	Long: `Start the IPFS daemon for a node, registering and initializing it
first when needed.

The repository is initialized if missing, the API address is written to
the repo config when it differs, and startup blocks until the daemon
API answers (or the startup timeout passes). Unless disabled, peers
from the configured registry are connected afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		startupTimeout, err := parseDuration(upTimeout, cfg.NodeDefaults.StartupTimeout)
		if err != nil {
			return err
		}
		if startupTimeout < time.Second {
			return fmt.Errorf("timeout must be at least 1s")
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		eventRepo := db.NewEventRepository(database)

		node, created, err := getOrCreateNode(ctx, nodeRepo, eventRepo, nodeRefFromArgs(args))
		if err != nil {
			return err
		}

		if err := applyNodeOverrides(node, upBinary, upRepoDir, upAPI, upExtraArgs); err != nil {
			return err
		}
		if err := nodeRepo.Update(ctx, node); err != nil {
			return err
		}

		// The --timeout flag overrides the configured startup timeout
		// for this invocation only.
		supCfg := *cfg
		supCfg.NodeDefaults.StartupTimeout = startupTimeout
		sup := daemon.NewSupervisor(&supCfg)

		if sup.Alive(node) {
			return fmt.Errorf("node %q is already running (pid %d)", node.Name, node.PID)
		}

		bin := sup.Binary(node)

		ranInit, err := daemon.EnsureInitialized(ctx, bin, node.RepoDir)
		if err != nil {
			markNodeError(ctx, nodeRepo, eventRepo, node, err)
			return err
		}
		if ranInit {
			payload, _ := json.Marshal(map[string]string{"repo_dir": node.RepoDir, "binary": bin})
			recordEvent(ctx, eventRepo, &models.Event{
				Type:       models.EventTypeRepoInitialized,
				EntityType: models.EntityTypeNode,
				EntityID:   node.ID,
				Payload:    payload,
			})
		}

		if err := configureAPIAddress(ctx, bin, node, eventRepo); err != nil {
			markNodeError(ctx, nodeRepo, eventRepo, node, err)
			return err
		}

		node.State = models.NodeStateStarting
		node.LastError = ""
		if err := nodeRepo.Update(ctx, node); err != nil {
			return err
		}

		result, err := sup.Start(node)
		if err != nil {
			markNodeError(ctx, nodeRepo, eventRepo, node, err)
			return err
		}

		// Record the PID before waiting so a crash of berth itself
		// leaves a reconcilable registry.
		now := time.Now().UTC()
		node.PID = result.PID
		node.LogPath = result.LogPath
		node.StartedAt = &now
		node.StoppedAt = nil
		if err := nodeRepo.Update(ctx, node); err != nil {
			return err
		}

		if err := sup.WaitReady(ctx, node, result.PID); err != nil {
			// ctx may already be cancelled (Ctrl-C); the registry
			// still needs the failure recorded.
			markStartupFailure(context.Background(), nodeRepo, eventRepo, node, result.PID, err)
			return err
		}

		node.State = models.NodeStateRunning
		startedPayload, _ := json.Marshal(models.DaemonStartedPayload{
			PID:        result.PID,
			BinaryPath: result.Binary,
			RepoDir:    node.RepoDir,
			LogPath:    result.LogPath,
		})
		err = database.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
			if err := nodeRepo.UpdateWithTx(ctx, tx, node); err != nil {
				return err
			}
			return eventRepo.CreateWithTx(ctx, tx, &models.Event{
				Type:       models.EventTypeDaemonStarted,
				EntityType: models.EntityTypeNode,
				EntityID:   node.ID,
				Payload:    startedPayload,
			})
		})
		if err != nil {
			return err
		}

		var peerOutcome *peerConnectOutcome
		if !upSkipPeers && cfg.Peers.AutoConnect && cfg.Peers.RegistryURL != "" {
			peerOutcome = connectRegistryPeers(ctx, cfg, bin, node, eventRepo)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			out := map[string]any{
				"node":    node,
				"created": created,
			}
			if ranInit {
				out["repo_initialized"] = true
			}
			if peerOutcome != nil {
				out["peers"] = peerOutcome
			}
			return WriteOutput(os.Stdout, out)
		}

		if IsQuiet() {
			return nil
		}

		fmt.Fprintf(os.Stdout, "Node %q started (pid %d)\n", node.Name, node.PID)
		if node.APIAddress != "" {
			fmt.Fprintf(os.Stdout, "API: %s\n", node.APIAddress)
		}
		if peerOutcome != nil {
			fmt.Fprintf(os.Stdout, "Peers: connected %d/%d from registry\n",
				peerOutcome.Connected, peerOutcome.Total)
		}

		PrintNextSteps(HintContext{Action: "up", NodeName: node.Name, NodeID: node.ID})
		return nil
	},
}

// configureAPIAddress writes the node's API multiaddr to the repo
// config when it differs from what the repo already has.
func configureAPIAddress(ctx context.Context, bin string, node *models.Node, events *db.EventRepository) error {
	if node.APIAddress == "" {
		return nil
	}

	current, err := daemon.ConfigValue(ctx, bin, node.RepoDir, "Addresses.API")
	if err == nil && current == node.APIAddress {
		return nil
	}

	if err := daemon.SetAPIAddress(ctx, bin, node.RepoDir, node.APIAddress); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"api_address": node.APIAddress})
	recordEvent(ctx, events, &models.Event{
		Type:       models.EventTypeAPIConfigured,
		EntityType: models.EntityTypeNode,
		EntityID:   node.ID,
		Payload:    payload,
	})
	return nil
}

func markNodeError(ctx context.Context, nodeRepo *db.NodeRepository, events *db.EventRepository, node *models.Node, cause error) {
	node.State = models.NodeStateError
	node.LastError = cause.Error()
	if err := nodeRepo.Update(ctx, node); err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).Str("node", node.Name).Msg("failed to record node error state")
	}

	payload, _ := json.Marshal(models.ErrorPayload{Error: cause.Error()})
	recordEvent(ctx, events, &models.Event{
		Type:       models.EventTypeError,
		EntityType: models.EntityTypeNode,
		EntityID:   node.ID,
		Payload:    payload,
	})
}

// markStartupFailure records why a started daemon never became ready.
// A dead process is a death event; a live-but-unready one stays error.
func markStartupFailure(ctx context.Context, nodeRepo *db.NodeRepository, events *db.EventRepository, node *models.Node, pid int, cause error) {
	if !procutil.IsProcessAlive(pid) {
		now := time.Now().UTC()
		node.State = models.NodeStateError
		node.LastError = cause.Error()
		node.StoppedAt = &now
		node.PID = 0
		if err := nodeRepo.Update(ctx, node); err != nil {
			logger := logging.Component("cli")
			logger.Warn().Err(err).Str("node", node.Name).Msg("failed to record startup failure")
		}
		payload, _ := json.Marshal(models.DaemonStoppedPayload{PID: pid, Reason: cause.Error()})
		recordEvent(ctx, events, &models.Event{
			Type:       models.EventTypeDaemonDied,
			EntityType: models.EntityTypeNode,
			EntityID:   node.ID,
			Payload:    payload,
		})
		return
	}

	markNodeError(ctx, nodeRepo, events, node, cause)
}
