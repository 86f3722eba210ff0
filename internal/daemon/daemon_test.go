package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/models"
)

func testSupervisor(t *testing.T) (*Supervisor, *models.Node) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Global.DataDir = t.TempDir()
	cfg.NodeDefaults.StartupTimeout = 5 * time.Second
	cfg.NodeDefaults.ShutdownTimeout = 5 * time.Second

	node := &models.Node{
		ID:      "5ff49a71-0000-4000-8000-000000000000",
		ShortID: "5ff49a71",
		Name:    "testnode",
		RepoDir: filepath.Join(cfg.Global.DataDir, "repo"),
		State:   models.NodeStateStopped,
	}
	return NewSupervisor(cfg), node
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestSupervisorStartStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	sup, node := testSupervisor(t)
	node.BinaryPath = writeScript(t, t.TempDir(), "ipfs",
		`echo "daemon up $*"
exec sleep 60`)

	res, err := sup.Start(node)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.PID <= 0 {
		t.Fatalf("Start() pid = %d, want > 0", res.PID)
	}
	if !sup.Alive(node) {
		t.Fatal("Alive() = false right after start")
	}

	if _, err := sup.Start(node); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	stop, err := sup.Stop(context.Background(), node, 3*time.Second)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stop.Stale || stop.Forced {
		t.Fatalf("Stop() result = %+v, want a graceful stop", stop)
	}
	if sup.Alive(node) {
		t.Fatal("Alive() = true after stop")
	}
	if _, err := os.Stat(filepath.Join(sup.NodeDir(node), pidFileName)); !os.IsNotExist(err) {
		t.Fatalf("pid file still present after stop (stat err = %v)", err)
	}

	data, err := os.ReadFile(res.LogPath)
	if err != nil {
		t.Fatalf("failed to read daemon log: %v", err)
	}
	if !strings.Contains(string(data), "daemon up daemon") {
		t.Fatalf("daemon log = %q, want the daemon banner with its args", string(data))
	}
}

func TestSupervisorStartMissingBinary(t *testing.T) {
	sup, node := testSupervisor(t)
	node.BinaryPath = filepath.Join(t.TempDir(), "no-such-ipfs")

	_, err := sup.Start(node)
	if err == nil {
		t.Fatal("Start() with a missing binary should fail")
	}
	if !strings.Contains(err.Error(), "no-such-ipfs") {
		t.Fatalf("Start() error = %v, want the binary path in the message", err)
	}
}

func TestSupervisorStopCleansStalePidFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	sup, node := testSupervisor(t)
	dir := sup.NodeDir(node)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create node dir: %v", err)
	}

	// A spawned-and-reaped process gives us a pid that is known dead.
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run true: %v", err)
	}
	deadPID := cmd.Process.Pid
	pidPath := filepath.Join(dir, pidFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(deadPID)), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	res, err := sup.Stop(context.Background(), node, time.Second)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !res.Stale {
		t.Fatalf("Stop() result = %+v, want Stale", res)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("stale pid file not removed (stat err = %v)", err)
	}
}

func TestSupervisorStopNotRunning(t *testing.T) {
	sup, node := testSupervisor(t)

	_, err := sup.Stop(context.Background(), node, time.Second)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop() error = %v, want ErrNotRunning", err)
	}
}

func TestSupervisorBinaryPrefersNodePath(t *testing.T) {
	sup, node := testSupervisor(t)
	node.BinaryPath = filepath.Join("opt", "kubo", "ipfs")

	if got := sup.Binary(node); got != node.BinaryPath {
		t.Fatalf("Binary() = %q, want the node's own path %q", got, node.BinaryPath)
	}
}

func TestSupervisorLogPathPrefersRecorded(t *testing.T) {
	sup, node := testSupervisor(t)

	want := filepath.Join(sup.NodeDir(node), logFileName)
	if got := sup.LogPath(node); got != want {
		t.Fatalf("LogPath() = %q, want %q", got, want)
	}

	node.LogPath = filepath.Join("elsewhere", "daemon.log")
	if got := sup.LogPath(node); got != node.LogPath {
		t.Fatalf("LogPath() = %q, want recorded %q", got, node.LogPath)
	}
}
