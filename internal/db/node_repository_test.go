package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berth-sh/berth/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := database.Migrate(context.Background()); err != nil {
		database.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	return database
}

func TestNodeRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewNodeRepository(db)
	ctx := context.Background()

	node := &models.Node{
		Name:       "main",
		RepoDir:    "/home/user/.ipfs",
		APIAddress: "/ip4/127.0.0.1/tcp/5001",
		ExtraArgs:  []string{"--enable-pubsub-experiment"},
		Metadata:   map[string]string{"origin": "test"},
	}

	if err := repo.Create(ctx, node); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if node.ID == "" {
		t.Fatal("expected ID to be assigned")
	}
	if node.ShortID != node.ID[:8] {
		t.Fatalf("expected short ID %s, got %s", node.ID[:8], node.ShortID)
	}
	if node.State != models.NodeStateStopped {
		t.Fatalf("expected new node to be stopped, got %s", node.State)
	}

	got, err := repo.Get(ctx, node.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "main" {
		t.Fatalf("unexpected name: %s", got.Name)
	}
	if got.RepoDir != "/home/user/.ipfs" {
		t.Fatalf("unexpected repo dir: %s", got.RepoDir)
	}
	if len(got.ExtraArgs) != 1 || got.ExtraArgs[0] != "--enable-pubsub-experiment" {
		t.Fatalf("unexpected extra args: %v", got.ExtraArgs)
	}
	if got.Metadata["origin"] != "test" {
		t.Fatalf("unexpected metadata: %v", got.Metadata)
	}
	if got.StartedAt != nil || got.StoppedAt != nil {
		t.Fatal("expected nil started/stopped times")
	}

	byName, err := repo.GetByName(ctx, "main")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if byName.ID != node.ID {
		t.Fatalf("GetByName returned wrong node: %s", byName.ID)
	}

	byShort, err := repo.GetByShortID(ctx, node.ShortID)
	if err != nil {
		t.Fatalf("GetByShortID failed: %v", err)
	}
	if byShort.ID != node.ID {
		t.Fatalf("GetByShortID returned wrong node: %s", byShort.ID)
	}
}

func TestNodeRepository_DuplicateName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewNodeRepository(db)
	ctx := context.Background()

	first := &models.Node{Name: "main", RepoDir: "/a"}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := &models.Node{Name: "main", RepoDir: "/b"}
	err := repo.Create(ctx, dup)
	if !errors.Is(err, ErrNodeAlreadyExists) {
		t.Fatalf("expected ErrNodeAlreadyExists, got %v", err)
	}
}

func TestNodeRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewNodeRepository(db)
	ctx := context.Background()

	node := &models.Node{Name: "main", RepoDir: "/home/user/.ipfs"}
	if err := repo.Create(ctx, node); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Second)
	node.State = models.NodeStateRunning
	node.PID = 4242
	node.LogPath = "/var/log/berth/main/daemon.log"
	node.StartedAt = &started

	if err := repo.Update(ctx, node); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.Get(ctx, node.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != models.NodeStateRunning {
		t.Fatalf("unexpected state: %s", got.State)
	}
	if got.PID != 4242 {
		t.Fatalf("unexpected pid: %d", got.PID)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Fatalf("unexpected started at: %v", got.StartedAt)
	}

	// Stop transition clears the pid and records the stop time.
	stopped := started.Add(time.Minute)
	got.State = models.NodeStateStopped
	got.PID = 0
	got.StoppedAt = &stopped
	got.LastError = "terminated by user"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	final, err := repo.Get(ctx, node.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if final.State != models.NodeStateStopped || final.PID != 0 {
		t.Fatalf("unexpected final state: %s pid=%d", final.State, final.PID)
	}
	if final.LastError != "terminated by user" {
		t.Fatalf("unexpected last error: %s", final.LastError)
	}
}

func TestNodeRepository_UpdateMissing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewNodeRepository(db)
	ctx := context.Background()

	ghost := &models.Node{ID: "does-not-exist", Name: "ghost", RepoDir: "/x"}
	err := repo.Update(ctx, ghost)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestNodeRepository_ListAndDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewNodeRepository(db)
	ctx := context.Background()

	names := []string{"charlie", "alpha", "bravo"}
	for _, name := range names {
		node := &models.Node{Name: name, RepoDir: "/repos/" + name}
		if err := repo.Create(ctx, node); err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
	}

	nodes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	// Ordered by name
	if nodes[0].Name != "alpha" || nodes[1].Name != "bravo" || nodes[2].Name != "charlie" {
		t.Fatalf("unexpected order: %s %s %s", nodes[0].Name, nodes[1].Name, nodes[2].Name)
	}

	if err := repo.Delete(ctx, nodes[0].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := repo.Get(ctx, nodes[0].ID); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound after delete, got %v", err)
	}

	if err := repo.Delete(ctx, nodes[0].ID); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound on second delete, got %v", err)
	}
}

func TestNodeRepository_ListByState(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewNodeRepository(db)
	ctx := context.Background()

	running := &models.Node{Name: "up", RepoDir: "/a", State: models.NodeStateRunning, PID: 100}
	stopped := &models.Node{Name: "down", RepoDir: "/b"}

	if err := repo.Create(ctx, running); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, stopped); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.ListByState(ctx, models.NodeStateRunning)
	if err != nil {
		t.Fatalf("ListByState failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "up" {
		t.Fatalf("unexpected running nodes: %+v", got)
	}
}
