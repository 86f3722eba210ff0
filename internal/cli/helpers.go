package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/logging"
	"github.com/berth-sh/berth/internal/models"
)

// DefaultNodeName is the node commands operate on when no node is
// named and no context is set.
const DefaultNodeName = "main"

const maxSuggestions = 5

// openDatabase opens the registry database and applies migrations.
func openDatabase() (*db.DB, error) {
	cfg := GetConfig()
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DatabasePath(), db.Options{
		MaxConnections: cfg.Database.MaxConnections,
		BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

// contextStore returns the store backing `berth use`.
func contextStore() *config.ContextStore {
	return config.NewContextStore(filepath.Join(GetConfig().Global.ConfigDir, "context.yaml"))
}

// nodeRefFromArgs returns the node reference a command should operate
// on: the explicit argument when given, then the `berth use` context,
// then DefaultNodeName.
func nodeRefFromArgs(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}

	if current, err := contextStore().Load(); err == nil && !current.IsEmpty() {
		if current.NodeName != "" {
			return current.NodeName
		}
		return current.NodeID
	}

	return DefaultNodeName
}

func resolveNodeByRef(ctx context.Context, repo *db.NodeRepository, ref string) (*models.Node, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("node name or ID required")
	}

	node, err := repo.GetByShortID(ctx, strings.ToLower(ref))
	if err == nil {
		return node, nil
	}
	if !errors.Is(err, db.ErrNodeNotFound) {
		return nil, fmt.Errorf("failed to get node by short ID: %w", err)
	}

	node, err = repo.Get(ctx, ref)
	if err == nil {
		return node, nil
	}
	if !errors.Is(err, db.ErrNodeNotFound) {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	node, err = repo.GetByName(ctx, ref)
	if err == nil {
		return node, nil
	}
	if !errors.Is(err, db.ErrNodeNotFound) {
		return nil, fmt.Errorf("failed to get node by name: %w", err)
	}

	nodes, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	matches, err := matchNodeRef(nodes, ref)
	if err != nil {
		return nil, err
	}
	return matches[0], nil
}

func matchNodeRef(nodes []*models.Node, ref string) ([]*models.Node, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("node name or ID required")
	}
	normalized := strings.ToLower(ref)

	for _, node := range nodes {
		if node == nil {
			continue
		}
		if strings.EqualFold(node.ShortID, ref) {
			return []*models.Node{node}, nil
		}
	}

	for _, node := range nodes {
		if node == nil {
			continue
		}
		if node.ID == ref {
			return []*models.Node{node}, nil
		}
	}

	for _, node := range nodes {
		if node == nil {
			continue
		}
		if node.Name == ref {
			return []*models.Node{node}, nil
		}
	}

	matches := make([]*models.Node, 0)
	seen := make(map[string]struct{})
	for _, node := range nodes {
		if node == nil {
			continue
		}
		sid := strings.ToLower(node.ShortID)
		if sid != "" && strings.HasPrefix(sid, normalized) {
			if _, ok := seen[node.ID]; !ok {
				matches = append(matches, node)
				seen[node.ID] = struct{}{}
			}
			continue
		}
		if node.ID != "" && strings.HasPrefix(node.ID, ref) {
			if _, ok := seen[node.ID]; !ok {
				matches = append(matches, node)
				seen[node.ID] = struct{}{}
			}
		}
	}

	if len(matches) == 1 {
		return matches, nil
	}
	if len(matches) > 1 {
		sort.Slice(matches, func(i, j int) bool {
			left := strings.ToLower(matches[i].Name)
			right := strings.ToLower(matches[j].Name)
			if left == right {
				return nodeShortID(matches[i]) < nodeShortID(matches[j])
			}
			return left < right
		})
		return nil, fmt.Errorf("node '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", ref, formatNodeMatches(matches))
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("node '%s' not found (no nodes registered yet)", ref)
	}

	example := fmt.Sprintf("Example input: '%s' or '%s'", nodes[0].Name, nodeShortID(nodes[0]))
	return nil, fmt.Errorf("node '%s' not found. %s", ref, example)
}

func nodeShortID(node *models.Node) string {
	if node == nil {
		return ""
	}
	if node.ShortID != "" {
		return node.ShortID
	}
	return shortID(node.ID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatNodeMatches(nodes []*models.Node) string {
	parts := make([]string, 0, len(nodes))
	for i, node := range nodes {
		if node == nil {
			continue
		}
		if i >= maxSuggestions {
			parts = append(parts, fmt.Sprintf("and %d more", len(nodes)-maxSuggestions))
			break
		}
		label := nodeShortID(node)
		if node.Name != "" {
			label = fmt.Sprintf("%s (%s)", node.Name, label)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}

// defaultRepoDir returns where a new node's IPFS repository lives. The
// default node keeps the conventional ~/.ipfs location; other nodes
// get a repo under their own state directory.
func defaultRepoDir(cfg *config.Config, name string) string {
	if name == DefaultNodeName && cfg.NodeDefaults.RepoDir != "" {
		return cfg.NodeDefaults.RepoDir
	}
	return filepath.Join(cfg.NodeDir(name), "repo")
}

// newNodeFromDefaults builds an unregistered node named name with the
// configured defaults applied.
func newNodeFromDefaults(cfg *config.Config, name string) (*models.Node, error) {
	extraArgs, err := parseExtraArgs(cfg.NodeDefaults.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid node_defaults.extra_args: %w", err)
	}

	return &models.Node{
		Name:       name,
		RepoDir:    defaultRepoDir(cfg, name),
		APIAddress: cfg.NodeDefaults.APIAddress,
		ExtraArgs:  extraArgs,
		State:      models.NodeStateStopped,
	}, nil
}

// getOrCreateNode resolves ref against the registry, registering a
// node with that name and the configured defaults when nothing
// matches. Ambiguous references stay errors; they never create nodes.
func getOrCreateNode(ctx context.Context, nodeRepo *db.NodeRepository, eventRepo *db.EventRepository, ref string) (*models.Node, bool, error) {
	node, err := nodeRepo.GetByName(ctx, ref)
	if err == nil {
		return node, false, nil
	}
	if !errors.Is(err, db.ErrNodeNotFound) {
		return nil, false, fmt.Errorf("failed to get node by name: %w", err)
	}

	// The ref may still be an ID or ID prefix of an existing node.
	node, rerr := resolveNodeByRef(ctx, nodeRepo, ref)
	if rerr == nil {
		return node, false, nil
	}
	if !strings.Contains(rerr.Error(), "not found") {
		return nil, false, rerr
	}

	node, err = newNodeFromDefaults(GetConfig(), ref)
	if err != nil {
		return nil, false, err
	}
	if err := nodeRepo.Create(ctx, node); err != nil {
		return nil, false, err
	}

	recordEvent(ctx, eventRepo, &models.Event{
		Type:       models.EventTypeNodeCreated,
		EntityType: models.EntityTypeNode,
		EntityID:   node.ID,
		Metadata:   map[string]string{"name": node.Name},
	})

	return node, true, nil
}

// parseExtraArgs splits a shell-style quoted argument string.
func parseExtraArgs(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments %q: %w", value, err)
	}
	return args, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return parsed, nil
}

func exists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return false
}

// recordEvent appends an event to the log, logging but not failing on
// error. Registry writes must not fail because the audit trail did.
func recordEvent(ctx context.Context, events *db.EventRepository, event *models.Event) {
	if err := events.Append(ctx, event); err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).
			Str("event_type", string(event.Type)).
			Msg("failed to record event")
	}
}
