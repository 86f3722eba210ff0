package cli

import (
	"fmt"
	"os"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g., "up", "init")
	Action string

	// NodeID is the node involved (if any)
	NodeID string

	// NodeName is the node name (for display)
	NodeName string

	// Extra is any additional context
	Extra map[string]any
}

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing if JSON output is enabled.
func PrintNextSteps(ctx HintContext) {
	if IsJSONOutput() || IsJSONLOutput() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(os.Stdout, "  %s\n", hint)
	}
}

// generateHints generates context-aware hints for the given action.
func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "init":
		return hintsForInit(ctx)
	case "up":
		return hintsForUp(ctx)
	case "rm":
		return hintsForRemove(ctx)
	default:
		return nil
	}
}

func hintsForInit(ctx HintContext) []string {
	name := hintNodeName(ctx)

	return []string{
		fmt.Sprintf("berth up %s                  # Start the daemon", name),
		fmt.Sprintf("berth config api <addr> %s   # Change the API address", name),
	}
}

func hintsForUp(ctx HintContext) []string {
	name := hintNodeName(ctx)

	return []string{
		fmt.Sprintf("berth logs %s -f             # Follow the daemon log", name),
		fmt.Sprintf("berth peers connect %s       # Connect registry peers", name),
		"berth ps                        # List all nodes",
		fmt.Sprintf("berth down %s                # Stop the daemon", name),
	}
}

func hintsForRemove(ctx HintContext) []string {
	return []string{
		"berth ps                        # List remaining nodes",
		"berth up <name>                 # Register and start a new node",
	}
}

func hintNodeName(ctx HintContext) string {
	if ctx.NodeName != "" {
		return ctx.NodeName
	}
	return shortID(ctx.NodeID)
}
