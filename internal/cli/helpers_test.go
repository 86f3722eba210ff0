package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/db"
	"github.com/berth-sh/berth/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	base := t.TempDir()
	cfg.Global.DataDir = filepath.Join(base, "data")
	cfg.Global.ConfigDir = filepath.Join(base, "config")
	cfg.Database.Path = filepath.Join(base, "data", "berth.db")
	return cfg
}

func withTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testConfig(t)
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })
	return cfg
}

func makeNode(id, name string) *models.Node {
	return &models.Node{
		ID:      id,
		ShortID: id[:8],
		Name:    name,
		RepoDir: "/tmp/" + name,
		State:   models.NodeStateStopped,
	}
}

func TestMatchNodeRef(t *testing.T) {
	nodes := []*models.Node{
		makeNode("aabbccdd-0000-4000-8000-000000000001", "main"),
		makeNode("aabbef00-0000-4000-8000-000000000002", "worker"),
		makeNode("ffee0011-0000-4000-8000-000000000003", "gateway"),
	}

	tests := []struct {
		name     string
		ref      string
		wantName string
		wantErr  string
	}{
		{"exact short id", "aabbccdd", "main", ""},
		{"short id case insensitive", "AABBCCDD", "main", ""},
		{"exact full id", "aabbef00-0000-4000-8000-000000000002", "worker", ""},
		{"exact name", "gateway", "gateway", ""},
		{"unambiguous prefix", "ff", "gateway", ""},
		{"unambiguous longer prefix", "aabbe", "worker", ""},
		{"ambiguous prefix", "aabb", "", "ambiguous"},
		{"not found", "zzz", "", "not found"},
		{"empty ref", "", "", "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := matchNodeRef(nodes, tt.ref)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("matchNodeRef(%q) expected error containing %q, got nil", tt.ref, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("matchNodeRef(%q) error = %q, want substring %q", tt.ref, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("matchNodeRef(%q) unexpected error: %v", tt.ref, err)
			}
			if len(matches) != 1 {
				t.Fatalf("matchNodeRef(%q) returned %d matches, want 1", tt.ref, len(matches))
			}
			if matches[0].Name != tt.wantName {
				t.Fatalf("matchNodeRef(%q) = %q, want %q", tt.ref, matches[0].Name, tt.wantName)
			}
		})
	}
}

func TestMatchNodeRefAmbiguousListsCandidates(t *testing.T) {
	nodes := []*models.Node{
		makeNode("aabbccdd-0000-4000-8000-000000000001", "main"),
		makeNode("aabbef00-0000-4000-8000-000000000002", "worker"),
	}

	_, err := matchNodeRef(nodes, "aabb")
	if err == nil {
		t.Fatal("expected ambiguity error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "main") || !strings.Contains(msg, "worker") {
		t.Fatalf("ambiguity error should list candidates, got %q", msg)
	}
	if !strings.Contains(msg, "longer prefix") {
		t.Fatalf("ambiguity error should suggest a longer prefix, got %q", msg)
	}
}

func TestMatchNodeRefEmptyRegistry(t *testing.T) {
	_, err := matchNodeRef(nil, "main")
	if err == nil {
		t.Fatal("expected error for empty registry")
	}
	if !strings.Contains(err.Error(), "no nodes registered") {
		t.Fatalf("expected empty-registry hint, got %q", err)
	}
}

func TestMatchNodeRefNotFoundShowsExample(t *testing.T) {
	nodes := []*models.Node{
		makeNode("aabbccdd-0000-4000-8000-000000000001", "main"),
	}

	_, err := matchNodeRef(nodes, "nope")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if !strings.Contains(err.Error(), "Example input") {
		t.Fatalf("expected example hint in error, got %q", err)
	}
}

func TestNodeRefFromArgs(t *testing.T) {
	withTestConfig(t)

	if got := nodeRefFromArgs([]string{"alpha"}); got != "alpha" {
		t.Fatalf("explicit arg: got %q, want alpha", got)
	}
	if got := nodeRefFromArgs([]string{"  alpha  "}); got != "alpha" {
		t.Fatalf("expected trimmed arg, got %q", got)
	}
	if got := nodeRefFromArgs(nil); got != DefaultNodeName {
		t.Fatalf("no args, no context: got %q, want %q", got, DefaultNodeName)
	}
}

func TestNodeRefFromArgsUsesContext(t *testing.T) {
	cfg := withTestConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store := contextStore()
	current, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	current.SetNode("aabbccdd-0000-4000-8000-000000000001", "worker")
	if err := store.Save(current); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := nodeRefFromArgs(nil); got != "worker" {
		t.Fatalf("context fallback: got %q, want worker", got)
	}
	// Explicit argument still wins over the context.
	if got := nodeRefFromArgs([]string{"main"}); got != "main" {
		t.Fatalf("explicit arg should beat context, got %q", got)
	}
}

func TestResolveNodeByRef(t *testing.T) {
	withTestConfig(t)
	database := setupTestDB(t)
	defer database.Close()

	ctx := context.Background()
	repo := db.NewNodeRepository(database)

	node := &models.Node{Name: "alpha", RepoDir: t.TempDir()}
	if err := repo.Create(ctx, node); err != nil {
		t.Fatalf("Create: %v", err)
	}

	byName, err := resolveNodeByRef(ctx, repo, "alpha")
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	if byName.ID != node.ID {
		t.Fatalf("resolve by name returned wrong node: %s", byName.ID)
	}

	byShort, err := resolveNodeByRef(ctx, repo, node.ShortID)
	if err != nil {
		t.Fatalf("resolve by short id: %v", err)
	}
	if byShort.ID != node.ID {
		t.Fatalf("resolve by short id returned wrong node: %s", byShort.ID)
	}

	byPrefix, err := resolveNodeByRef(ctx, repo, node.ID[:4])
	if err != nil {
		t.Fatalf("resolve by prefix: %v", err)
	}
	if byPrefix.ID != node.ID {
		t.Fatalf("resolve by prefix returned wrong node: %s", byPrefix.ID)
	}

	if _, err := resolveNodeByRef(ctx, repo, "missing"); err == nil {
		t.Fatal("expected error for unknown ref")
	}
}

func TestGetOrCreateNode(t *testing.T) {
	withTestConfig(t)
	database := setupTestDB(t)
	defer database.Close()

	ctx := context.Background()
	nodeRepo := db.NewNodeRepository(database)
	eventRepo := db.NewEventRepository(database)

	node, created, err := getOrCreateNode(ctx, nodeRepo, eventRepo, "alpha")
	if err != nil {
		t.Fatalf("getOrCreateNode: %v", err)
	}
	if !created {
		t.Fatal("expected node to be created")
	}
	if node.Name != "alpha" {
		t.Fatalf("expected name alpha, got %q", node.Name)
	}
	if node.State != models.NodeStateStopped {
		t.Fatalf("new node should be stopped, got %s", node.State)
	}
	if node.RepoDir == "" {
		t.Fatal("new node should get a default repo dir")
	}

	again, created, err := getOrCreateNode(ctx, nodeRepo, eventRepo, "alpha")
	if err != nil {
		t.Fatalf("getOrCreateNode second call: %v", err)
	}
	if created {
		t.Fatal("second call should not create a new node")
	}
	if again.ID != node.ID {
		t.Fatalf("second call returned a different node: %s vs %s", again.ID, node.ID)
	}

	events, err := eventRepo.ListByEntity(ctx, models.EntityTypeNode, node.ID, 10)
	if err != nil {
		t.Fatalf("ListByEntity: %v", err)
	}
	found := false
	for _, event := range events {
		if event.Type == models.EventTypeNodeCreated {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a node.created event for the new node")
	}
}

func TestGetOrCreateNodeResolvesShortID(t *testing.T) {
	withTestConfig(t)
	database := setupTestDB(t)
	defer database.Close()

	ctx := context.Background()
	nodeRepo := db.NewNodeRepository(database)
	eventRepo := db.NewEventRepository(database)

	node := &models.Node{Name: "alpha", RepoDir: t.TempDir()}
	if err := nodeRepo.Create(ctx, node); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A short ID must resolve to the existing node, not register a
	// node named after the hex prefix.
	got, created, err := getOrCreateNode(ctx, nodeRepo, eventRepo, node.ShortID)
	if err != nil {
		t.Fatalf("getOrCreateNode: %v", err)
	}
	if created {
		t.Fatal("short ID lookup should not create a node")
	}
	if got.ID != node.ID {
		t.Fatalf("resolved wrong node: %s", got.ID)
	}
}

func TestDefaultRepoDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.NodeDefaults.RepoDir = "/home/u/.ipfs"

	if got := defaultRepoDir(cfg, DefaultNodeName); got != "/home/u/.ipfs" {
		t.Fatalf("default node should keep the conventional repo dir, got %q", got)
	}

	got := defaultRepoDir(cfg, "gateway")
	want := filepath.Join(cfg.NodeDir("gateway"), "repo")
	if got != want {
		t.Fatalf("named node repo dir = %q, want %q", got, want)
	}
}

func TestParseExtraArgs(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"--routing dhtclient", []string{"--routing", "dhtclient"}, false},
		{`--announce "/dns4/gw.example.com/tcp/4001"`, []string{"--announce", "/dns4/gw.example.com/tcp/4001"}, false},
		{`"unterminated`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseExtraArgs(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseExtraArgs(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExtraArgs(%q) error: %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseExtraArgs(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("parseExtraArgs(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	fallback := 45 * time.Second

	if got, err := parseDuration("", fallback); err != nil || got != fallback {
		t.Fatalf("empty value should return fallback, got %v, %v", got, err)
	}
	if got, err := parseDuration("5s", fallback); err != nil || got != 5*time.Second {
		t.Fatalf("parseDuration(5s) = %v, %v", got, err)
	}
	if _, err := parseDuration("bogus", fallback); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("aabbccdd-0000-4000"); got != "aabbccdd" {
		t.Fatalf("shortID = %q, want aabbccdd", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID should keep short inputs, got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{-time.Second, "-"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
		{26 * time.Hour, "1d2h"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
