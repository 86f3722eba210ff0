package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/db"
)

var useClear bool

func init() {
	rootCmd.AddCommand(useCmd)
	useCmd.Flags().BoolVar(&useClear, "clear", false, "Clear the current node context")
}

var useCmd = &cobra.Command{
	Use:   "use [node]",
	Short: "Set the default node for commands",
	Long: `Set the default node for commands.

Commands that take an optional node argument fall back to the node set
here, then to the built-in default. Run without arguments to show the
current context.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store := contextStore()

		if useClear {
			if len(args) > 0 {
				return fmt.Errorf("--clear takes no node argument")
			}
			if err := store.Clear(); err != nil {
				return fmt.Errorf("failed to clear context: %w", err)
			}
			if IsJSONOutput() || IsJSONLOutput() {
				return WriteOutput(os.Stdout, map[string]any{"cleared": true})
			}
			if !IsQuiet() {
				fmt.Println("Context cleared")
			}
			return nil
		}

		if len(args) == 0 {
			current, err := store.Load()
			if err != nil {
				return fmt.Errorf("failed to load context: %w", err)
			}
			if IsJSONOutput() || IsJSONLOutput() {
				return WriteOutput(os.Stdout, current)
			}
			if current.IsEmpty() {
				fmt.Printf("No node selected (using %q). Run 'berth use <node>' to pick one.\n", DefaultNodeName)
			} else {
				fmt.Printf("Current node: %s\n", current.String())
			}
			return nil
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		nodeRepo := db.NewNodeRepository(database)
		node, err := resolveNodeByRef(ctx, nodeRepo, args[0])
		if err != nil {
			return err
		}

		current, err := store.Load()
		if err != nil {
			return fmt.Errorf("failed to load context: %w", err)
		}
		current.SetNode(node.ID, node.Name)
		if err := store.Save(current); err != nil {
			return fmt.Errorf("failed to save context: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, current)
		}
		if !IsQuiet() {
			fmt.Printf("Using node %q (%s)\n", node.Name, nodeShortID(node))
		}
		return nil
	},
}
