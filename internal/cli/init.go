package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

var (
	initBinary    string
	initRepoDir   string
	initAPI       string
	initExtraArgs string
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initBinary, "binary", "", "ipfs binary path for this node")
	initCmd.Flags().StringVar(&initRepoDir, "repo", "", "IPFS repository directory")
	initCmd.Flags().StringVar(&initAPI, "api", "", "API multiaddr (e.g. /ip4/127.0.0.1/tcp/5001)")
	initCmd.Flags().StringVar(&initExtraArgs, "extra-args", "", "extra daemon arguments (shell-style quoted)")
}

var initCmd = &cobra.Command{
	Use:   "init [node]",
	Short: "Register a node and initialize its repository",
	Long: `Register a node in the registry and run ipfs init for its repository.

Without an argument the node from 'berth use' is targeted, then 'main'.
An already-initialized repository (one with a config file) is left
alone.`,
	Args: cobra.MaximumNArgs(1),
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

		node, created, err := getOrCreateNode(ctx, nodeRepo, eventRepo, nodeRefFromArgs(args))
		if err != nil {
			return err
		}

		if err := applyNodeOverrides(node, initBinary, initRepoDir, initAPI, initExtraArgs); err != nil {
			return err
		}
		if err := nodeRepo.Update(ctx, node); err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg)
		bin := sup.Binary(node)

		ranInit, err := daemon.EnsureInitialized(ctx, bin, node.RepoDir)
		if err != nil {
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

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"node":             node,
				"created":          created,
				"repo_initialized": ranInit,
			})
		}

		if IsQuiet() {
			return nil
		}

		if created {
			fmt.Fprintf(os.Stdout, "Node %q registered (%s)\n", node.Name, nodeShortID(node))
		}
		if ranInit {
			fmt.Fprintf(os.Stdout, "Repository initialized at %s\n", node.RepoDir)
		} else {
			fmt.Fprintf(os.Stdout, "Repository at %s already initialized\n", node.RepoDir)
		}

		PrintNextSteps(HintContext{Action: "init", NodeName: node.Name, NodeID: node.ID})
		return nil
	},
}

// applyNodeOverrides writes non-empty flag values onto the node.
func applyNodeOverrides(node *models.Node, binary, repoDir, api, extraArgs string) error {
	if binary != "" {
		node.BinaryPath = binary
	}
	if repoDir != "" {
		node.RepoDir = repoDir
	}
	if api != "" {
		node.APIAddress = api
	}
	if strings.TrimSpace(extraArgs) != "" {
		parsed, err := parseExtraArgs(extraArgs)
		if err != nil {
			return err
		}
		node.ExtraArgs = parsed
	}
	return nil
}
