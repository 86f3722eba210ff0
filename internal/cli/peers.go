package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/daemon"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/logging"
	"github.com/berth-sh/berth/internal/models"
	"github.com/berth-sh/berth/internal/peers"
)

var (
	peersFetchURL     string
	peersFetchTimeout string
)

func init() {
	rootCmd.AddCommand(peersCmd)
	peersCmd.AddCommand(peersFetchCmd)
	peersCmd.AddCommand(peersConnectCmd)
	peersCmd.AddCommand(peersBootstrapCmd)

	peersFetchCmd.Flags().StringVar(&peersFetchURL, "url", "", "registry URL (default: peers.registry_url)")
	peersFetchCmd.Flags().StringVar(&peersFetchTimeout, "timeout", "", "fetch timeout (e.g. 10s)")
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Fetch and connect registry peers",
}

var peersFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the peer list from the registry",
	Long: `Fetch the peer list from the registry over HTTP.

The registry serves one multiaddr per line; blank lines are dropped.
Lines that do not parse as multiaddrs are reported but kept out of the
peer list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		url := peersFetchURL
		if url == "" {
			url = cfg.Peers.RegistryURL
		}
		if url == "" {
			return fmt.Errorf("no registry URL configured (set peers.registry_url or pass --url)")
		}

		timeout, err := parseDuration(peersFetchTimeout, cfg.Peers.FetchTimeout)
		if err != nil {
			return err
		}

		client := peers.NewClient(timeout)
		lines, err := client.Fetch(ctx, url)
		if err != nil {
			return err
		}

		valid, invalid := peers.ValidAddrs(lines)

		if IsJSONOutput() || IsJSONLOutput() {
			out := map[string]any{"url": url, "peers": valid}
			if len(invalid) > 0 {
				out["invalid"] = invalid
			}
			return WriteOutput(os.Stdout, out)
		}

		for _, addr := range valid {
			fmt.Fprintln(os.Stdout, addr)
		}
		if len(invalid) > 0 && !IsQuiet() {
			fmt.Fprintf(os.Stderr, "Skipped %d invalid entr%s\n", len(invalid), plural(len(invalid), "y", "ies"))
		}
		return nil
	},
}

var peersConnectCmd = &cobra.Command{
	Use:   "connect [addr] [node]",
	Short: "Connect a node to peers",
	Long: `Connect a node's daemon to a peer via ipfs swarm connect.

Without an address, every peer from the configured registry is
connected. Multiaddrs start with '/', so a single argument that does
not is taken as the node reference.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeerCommand(cmd, args, peerActionConnect)
	},
}

var peersBootstrapCmd = &cobra.Command{
	Use:   "bootstrap [addr] [node]",
	Short: "Add peers to a node's bootstrap list",
	Long: `Add a peer to a node's bootstrap list via ipfs bootstrap add, so the
daemon redials it on every start.

Without an address, every peer from the configured registry is added.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPeerCommand(cmd, args, peerActionBootstrap)
	},
}

type peerAction int

const (
	peerActionConnect peerAction = iota
	peerActionBootstrap
)

func runPeerCommand(cmd *cobra.Command, args []string, action peerAction) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	addr, nodeArgs := splitPeerArgs(args)

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	nodeRepo := db.NewNodeRepository(database)
	eventRepo := db.NewEventRepository(database)

	node, err := resolveNodeByRef(ctx, nodeRepo, nodeRefFromArgs(nodeArgs))
	if err != nil {
		return err
	}

	sup := daemon.NewSupervisor(cfg)
	bin := sup.Binary(node)

	// swarm connect needs a live daemon; bootstrap add only edits the
	// repo config.
	if action == peerActionConnect && !sup.Alive(node) {
		return &PreflightError{
			Message:  fmt.Sprintf("node %q is not running", node.Name),
			Hint:     "swarm connect requires a running daemon",
			NextStep: fmt.Sprintf("berth up %s", node.Name),
		}
	}

	var addrs []string
	if addr != "" {
		addrs = []string{addr}
	} else {
		if cfg.Peers.RegistryURL == "" {
			return fmt.Errorf("no address given and no registry URL configured")
		}
		client := peers.NewClient(cfg.Peers.FetchTimeout)
		lines, err := client.Fetch(ctx, cfg.Peers.RegistryURL)
		if err != nil {
			return err
		}
		valid, invalid := peers.ValidAddrs(lines)
		if len(invalid) > 0 && !IsQuiet() {
			fmt.Fprintf(os.Stderr, "Skipped %d invalid registry entr%s\n", len(invalid), plural(len(invalid), "y", "ies"))
		}
		if len(valid) == 0 {
			return fmt.Errorf("registry returned no usable peers")
		}
		addrs = valid
	}

	succeeded := make([]string, 0, len(addrs))
	failed := make([]string, 0)
	for _, peerAddr := range addrs {
		var actErr error
		switch action {
		case peerActionConnect:
			actErr = daemon.ConnectPeer(ctx, bin, node.RepoDir, peerAddr)
		case peerActionBootstrap:
			actErr = daemon.AddBootstrapPeer(ctx, bin, node.RepoDir, peerAddr)
		}
		if actErr != nil {
			// A single peer is an error; a batch keeps going.
			if len(addrs) == 1 {
				return actErr
			}
			failed = append(failed, peerAddr)
			continue
		}
		succeeded = append(succeeded, peerAddr)
		recordPeerEvent(ctx, eventRepo, node, peerAddr, action)
	}

	verb := "Connected"
	if action == peerActionBootstrap {
		verb = "Bootstrapped"
	}

	if IsJSONOutput() || IsJSONLOutput() {
		out := map[string]any{
			"node":  node.Name,
			"peers": succeeded,
		}
		if len(failed) > 0 {
			out["failed"] = failed
		}
		return WriteOutput(os.Stdout, out)
	}

	if IsQuiet() {
		return nil
	}

	fmt.Fprintf(os.Stdout, "%s %d peer%s on node %q\n", verb, len(succeeded), plural(len(succeeded), "", "s"), node.Name)
	if len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "Failed: %s\n", strings.Join(failed, ", "))
	}
	return nil
}

// splitPeerArgs separates an optional multiaddr from an optional node
// reference. Multiaddrs always start with '/'.
func splitPeerArgs(args []string) (addr string, nodeArgs []string) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		if strings.HasPrefix(args[0], "/") {
			return args[0], nil
		}
		return "", args
	default:
		return args[0], args[1:]
	}
}

func recordPeerEvent(ctx context.Context, events *db.EventRepository, node *models.Node, addr string, action peerAction) {
	eventType := models.EventTypePeerConnected
	if action == peerActionBootstrap {
		eventType = models.EventTypeBootstrapAdded
	}
	payload, _ := json.Marshal(models.PeerPayload{Addr: addr})
	recordEvent(ctx, events, &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeNode,
		EntityID:   node.ID,
		Payload:    payload,
	})
}

// peerConnectOutcome summarizes a registry auto-connect pass.
type peerConnectOutcome struct {
	URL          string   `json:"url"`
	Total        int      `json:"total"`
	Invalid      int      `json:"invalid,omitempty"`
	Connected    int      `json:"connected"`
	Bootstrapped int      `json:"bootstrapped,omitempty"`
	Failed       []string `json:"failed,omitempty"`
}

// connectRegistryPeers fetches the registry list and connects every
// peer to the node, optionally adding them to the bootstrap list. It
// never fails the caller: a dead registry must not take down startup.
func connectRegistryPeers(ctx context.Context, cfg *config.Config, bin string, node *models.Node, events *db.EventRepository) *peerConnectOutcome {
	logger := logging.Component("peers")

	client := peers.NewClient(cfg.Peers.FetchTimeout)
	lines, err := client.Fetch(ctx, cfg.Peers.RegistryURL)
	if err != nil {
		logger.Warn().Err(err).
			Str("url", logging.RedactURL(cfg.Peers.RegistryURL)).
			Msg("peer registry fetch failed; continuing without registry peers")
		payload, _ := json.Marshal(models.ErrorPayload{
			Error:   err.Error(),
			Context: "peer registry fetch",
		})
		recordEvent(ctx, events, &models.Event{
			Type:       models.EventTypeWarning,
			EntityType: models.EntityTypeNode,
			EntityID:   node.ID,
			Payload:    payload,
		})
		return nil
	}

	valid, invalid := peers.ValidAddrs(lines)
	outcome := &peerConnectOutcome{
		URL:     cfg.Peers.RegistryURL,
		Total:   len(valid),
		Invalid: len(invalid),
	}

	fetchedPayload, _ := json.Marshal(models.PeerListFetchedPayload{
		URL:     cfg.Peers.RegistryURL,
		Total:   len(valid),
		Invalid: len(invalid),
	})
	recordEvent(ctx, events, &models.Event{
		Type:       models.EventTypePeerListFetched,
		EntityType: models.EntityTypeNode,
		EntityID:   node.ID,
		Payload:    fetchedPayload,
	})

	for _, addr := range valid {
		if err := daemon.ConnectPeer(ctx, bin, node.RepoDir, addr); err != nil {
			logger.Warn().Err(err).Str("peer", addr).Str("node", node.Name).Msg("peer connect failed")
			outcome.Failed = append(outcome.Failed, addr)
			continue
		}
		outcome.Connected++
		recordPeerEvent(ctx, events, node, addr, peerActionConnect)
	}

	if cfg.Peers.BootstrapAdd {
		for _, addr := range valid {
			if err := daemon.AddBootstrapPeer(ctx, bin, node.RepoDir, addr); err != nil {
				logger.Warn().Err(err).Str("peer", addr).Str("node", node.Name).Msg("bootstrap add failed")
				continue
			}
			outcome.Bootstrapped++
			recordPeerEvent(ctx, events, node, addr, peerActionBootstrap)
		}
	}

	return outcome
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
