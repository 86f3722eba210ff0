package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configAPICmd)
	configCmd.AddCommand(configShowCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change configuration",
}

var configAPICmd = &cobra.Command{
	Use:   "api <addr> [node]",
	Short: "Set the API address a node's daemon listens on",
	Long: `Write Addresses.API in the node's repository config and remember the
address in the registry.

A running daemon keeps its old address until restarted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()
		addr := args[0]

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		eventRepo := db.NewEventRepository(database)

		node, err := resolveNodeByRef(ctx, nodeRepo, nodeRefFromArgs(args[1:]))
		if err != nil {
			return err
		}

		sup := daemon.NewSupervisor(cfg)
		bin := sup.Binary(node)

		if !daemon.IsInitialized(node.RepoDir) {
			return &PreflightError{
				Message:  fmt.Sprintf("repository for node %q is not initialized", node.Name),
				Hint:     "the repo config does not exist yet",
				NextStep: fmt.Sprintf("berth init %s", node.Name),
			}
		}

		if err := daemon.SetAPIAddress(ctx, bin, node.RepoDir, addr); err != nil {
			return err
		}

		node.APIAddress = addr
		if err := nodeRepo.Update(ctx, node); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]string{"api_address": addr})
		recordEvent(ctx, eventRepo, &models.Event{
			Type:       models.EventTypeAPIConfigured,
			EntityType: models.EntityTypeNode,
			EntityID:   node.ID,
			Payload:    payload,
		})

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]string{"node": node.Name, "api_address": addr})
		}

		if IsQuiet() {
			return nil
		}

		fmt.Fprintf(os.Stdout, "API address for node %q set to %s\n", node.Name, addr)
		if sup.Alive(node) {
			fmt.Fprintf(os.Stdout, "Restart to apply: berth down %s && berth up %s\n", node.Name, node.Name)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective berth configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, cfg)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}
